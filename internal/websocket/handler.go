package websocket

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rmakarov/baraholka-api/internal/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Токен уже проверяется в обработчике, origin не ограничиваем:
	// клиент — Telegram Mini App с переменным origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler обслуживает WebSocket-подключения. Авторизация через JWT в
// query-параметре token, т.к. браузерный WebSocket не умеет заголовки.
func Handler(manager *Manager, jwtService *utils.JWTService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "Отсутствует токен авторизации", http.StatusUnauthorized)
			return
		}

		userID, err := jwtService.ExtractUserID(token)
		if err != nil {
			http.Error(w, "Недействительный токен", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("Ошибка апгрейда WebSocket: %v", err)
			return
		}

		client := NewClient(userID, conn, manager)
		client.Start()

		// Подтверждаем подключение
		manager.SendToUser(userID, Event{
			Type:      EventConnected,
			Timestamp: time.Now(),
		})
	}
}

// ListenAndServe поднимает отдельный HTTP-сервер для WebSocket.
// Fiber работает поверх fasthttp, поэтому gorilla/websocket живет
// на своем листенере.
func ListenAndServe(addr string, manager *Manager, jwtService *utils.JWTService) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", Handler(manager, jwtService))

	log.Printf("WebSocket сервер запущен на %s", addr)
	return http.ListenAndServe(addr, mux)
}
