package main

import (
	"log"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/rmakarov/baraholka-api/internal/config"
	"github.com/rmakarov/baraholka-api/internal/db"
	"github.com/rmakarov/baraholka-api/internal/services/auth"
	"github.com/rmakarov/baraholka-api/internal/services/chat"
	"github.com/rmakarov/baraholka-api/internal/services/confirm"
	"github.com/rmakarov/baraholka-api/internal/services/listing"
	"github.com/rmakarov/baraholka-api/internal/services/meetup"
	"github.com/rmakarov/baraholka-api/internal/services/purchase"
	"github.com/rmakarov/baraholka-api/internal/settlement"
	"github.com/rmakarov/baraholka-api/internal/storage"
	ws "github.com/rmakarov/baraholka-api/internal/websocket"
)

func main() {
	// Загружаем конфигурацию
	cfg := config.LoadConfig()

	// Инициализируем базу данных
	if err := db.InitDB(cfg); err != nil {
		log.Fatalf("❌ Ошибка при инициализации базы данных: %v", err)
	}
	defer db.CloseDB()

	// Менеджер WebSocket соединений
	hub := ws.NewManager()
	defer hub.Shutdown()

	// Хранилища
	userStore := storage.NewUserStore(db.Pool)
	listingStore := storage.NewListingStore(db.Pool)
	chatStore := storage.NewChatStore(db.Pool, hub)
	meetupStore := storage.NewMeetupStore(db.Pool)
	confirmStore := storage.NewConfirmStore(db.Pool)
	purchaseStore := storage.NewPurchaseStore(db.Pool)

	// Движок подтверждения сделок и его побочные эффекты
	fx := settlement.NewEffects(chatStore, listingStore, purchaseStore)
	engine := settlement.NewEngine(confirmStore, meetupStore, listingStore, fx)

	// Создаём экземпляр Fiber
	app := fiber.New(fiber.Config{
		AppName:      "Baraholka API",
		ErrorHandler: errorHandler,
	})

	// Добавляем middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowCredentials: false,
	}))

	// Создаём сервисы
	authService := auth.NewAuthService(cfg, userStore)
	listingService := listing.NewListingService(cfg, listingStore)
	chatService := chat.NewChatService(cfg, chatStore)
	meetupService := meetup.NewMeetupService(cfg, meetupStore, listingStore, chatStore, fx)
	confirmService := confirm.NewConfirmService(cfg, engine)
	purchaseService := purchase.NewPurchaseService(cfg, purchaseStore)

	// Регистрируем маршруты
	authService.SetupRoutes(app)
	listingService.SetupRoutes(app)
	chatService.SetupRoutes(app)
	meetupService.SetupRoutes(app)
	confirmService.SetupRoutes(app)
	purchaseService.SetupRoutes(app)

	// WebSocket живет на отдельном листенере (Fiber поверх fasthttp)
	go func() {
		if err := ws.ListenAndServe(":"+cfg.WSPort, hub, authService.GetJWTService()); err != nil {
			log.Fatalf("❌ Ошибка WebSocket сервера: %v", err)
		}
	}()

	// Запускаем сервер
	log.Printf("✅ Baraholka API запущен на порту %s", cfg.Port)
	log.Fatal(app.Listen(":" + cfg.Port))
}

// errorHandler обрабатывает ошибки Fiber
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	// Проверяем, является ли ошибка из Fiber
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	// Отправляем ошибку в JSON
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
