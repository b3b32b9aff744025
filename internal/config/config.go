package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config структура конфигурации
type Config struct {
	Port             string
	WSPort           string
	TelegramBotToken string
	JWTSecret        string
	DatabaseURL      string
	DatabaseConfig   DatabaseConfig
	AppEnv           string

	// Если true, для одного объявления допускается только одна живая встреча
	// (pending/accepted). По умолчанию выключено для совместимости со старым
	// поведением — см. DESIGN.md.
	StrictMeetupExclusivity bool
}

// DatabaseConfig содержит конфигурацию базы данных
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// LoadConfig загружает переменные из .env
func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("⚠️ .env файл не найден, используем переменные окружения")
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("PGHOST", "localhost"),
		Port:     getEnv("PGPORT", "5432"),
		User:     getEnv("PGUSER", "baraholka_user"),
		Password: getEnv("PGPASSWORD", "baraholka_pass"),
		Name:     getEnv("PGDATABASE", "baraholka"),
		SSLMode:  getEnv("PGSSLMODE", "disable"),
	}

	// Формируем строку подключения к базе данных
	dbURL := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbConfig.User, dbConfig.Password, dbConfig.Host, dbConfig.Port, dbConfig.Name, dbConfig.SSLMode)

	cfg := &Config{
		Port:                    getEnv("PORT", "8080"),
		WSPort:                  getEnv("WS_PORT", "8081"),
		TelegramBotToken:        getEnv("TELEGRAM_BOT_TOKEN", ""),
		JWTSecret:               getEnv("JWT_SECRET", ""),
		DatabaseURL:             dbURL,
		DatabaseConfig:          dbConfig,
		AppEnv:                  getEnv("APP_ENV", "production"),
		StrictMeetupExclusivity: getEnv("STRICT_MEETUP_EXCLUSIVITY", "") == "true",
	}

	if cfg.TelegramBotToken == "" || cfg.JWTSecret == "" {
		log.Fatal("❌ Ошибка: Не заданы обязательные переменные окружения")
	}

	return cfg
}

// getEnv получает переменную окружения или использует дефолтное значение
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
