package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"transfer-backend/internal/models"
	"transfer-backend/internal/notify"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// ErrHubStopped хаб остановлен и не принимает сообщения
var ErrHubStopped = errors.New("websocket hub stopped")

// Client одно WebSocket соединение водителя или оператора
type Client struct {
	conn     *websocket.Conn
	userID   uint
	role     string
	channels []string
	send     chan []byte
	quit     chan struct{}
}

// Hub держит соединения по логическим каналам. Водитель подписан на
// свой канал и общий канал водителей, оператор на канал операторов.
type Hub struct {
	channels   map[string]map[*Client]bool
	drivers    map[uint]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
	mutex      sync.RWMutex
	log        *slog.Logger
	upgrader   websocket.Upgrader
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		channels:   make(map[string]map[*Client]bool),
		drivers:    make(map[uint]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        logger.With("component", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Клиенты мобильные, CORS проверяется на уровне API
			},
		},
	}
}

// Start запускает обработку регистраций
func (h *Hub) Start() {
	h.log.Info("запуск WebSocket хаба")
	go h.run()
}

// Stop закрывает все соединения
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			for _, ch := range client.channels {
				if _, ok := h.channels[ch]; !ok {
					h.channels[ch] = make(map[*Client]bool)
				}
				h.channels[ch][client] = true
			}
			if client.role == models.RoleDriver {
				if _, ok := h.drivers[client.userID]; !ok {
					h.drivers[client.userID] = make(map[*Client]bool)
				}
				h.drivers[client.userID][client] = true
			}
			h.mutex.Unlock()
			h.log.Info("клиент подключен", "user_id", client.userID, "role", client.role)

		case client := <-h.unregister:
			h.mutex.Lock()
			h.remove(client)
			h.mutex.Unlock()

		case <-h.done:
			h.mutex.Lock()
			for _, clients := range h.channels {
				for client := range clients {
					h.remove(client)
				}
			}
			h.mutex.Unlock()
			h.log.Info("WebSocket хаб остановлен")
			return
		}
	}
}

// remove вызывается под h.mutex
func (h *Hub) remove(client *Client) {
	removed := false
	for _, ch := range client.channels {
		if clients, ok := h.channels[ch]; ok && clients[client] {
			delete(clients, client)
			removed = true
			if len(clients) == 0 {
				delete(h.channels, ch)
			}
		}
	}
	if conns, ok := h.drivers[client.userID]; ok && client.role == models.RoleDriver {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.drivers, client.userID)
		}
	}
	if removed {
		close(client.quit)
		h.log.Info("клиент отключен", "user_id", client.userID, "role", client.role)
	}
}

// Publish отправляет конверт всем соединениям канала. Водителям
// широковещательного канала уходит только то, что адресовано им.
// Медленные соединения отключаются, публикация не ждет клиентов.
func (h *Hub) Publish(ctx context.Context, env notify.Envelope) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}

	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	var slow []*Client
	h.mutex.RLock()
	for client := range h.channels[env.Channel] {
		if client.role == models.RoleDriver && !env.Delivers(client.userID) {
			continue
		}
		select {
		case client.send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mutex.RUnlock()

	for _, client := range slow {
		h.log.Warn("буфер клиента переполнен, соединение закрывается", "user_id", client.userID)
		select {
		case h.unregister <- client:
		case <-h.done:
		}
	}
	return nil
}

// OnlineDrivers ID водителей с хотя бы одним открытым соединением
// на этом экземпляре
func (h *Hub) OnlineDrivers(ctx context.Context) ([]uint, error) {
	return h.online(), nil
}

func (h *Hub) online() []uint {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	ids := make([]uint, 0, len(h.drivers))
	for id := range h.drivers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Handler поднимает WebSocket соединение. user_id и role кладет в
// контекст middleware авторизации.
func (h *Hub) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("role")
		userID := c.GetUint("user_id")

		var channels []string
		switch role {
		case models.RoleAdmin:
			channels = []string{notify.ChannelAdmin}
		case models.RoleDriver:
			if userID == 0 {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Недействительный ID пользователя"})
				return
			}
			channels = []string{notify.DriverChannel(userID), notify.ChannelDrivers}
		default:
			c.JSON(http.StatusForbidden, gin.H{"error": "Недостаточно прав"})
			return
		}

		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.log.Error("ошибка обновления соединения до WebSocket", "error", err)
			return
		}

		client := &Client{
			conn:     conn,
			userID:   userID,
			role:     role,
			channels: channels,
			send:     make(chan []byte, sendBuffer),
			quit:     make(chan struct{}),
		}

		select {
		case h.register <- client:
		case <-h.done:
			conn.Close()
			return
		}

		go h.writePump(client)
		go h.readPump(client)
	}
}

// readPump читает входящие сообщения. Клиент шлет только ping.
func (h *Hub) readPump(client *Client) {
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
	}()

	client.conn.SetReadLimit(4096)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("ошибка чтения WebSocket", "user_id", client.userID, "error", err)
			}
			return
		}

		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			pong, _ := json.Marshal(map[string]interface{}{"type": "pong", "time": time.Now().Unix()})
			select {
			case client.send <- pong:
			default:
			}
		}
	}
}

func (h *Hub) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case <-client.quit:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.log.Warn("ошибка отправки WebSocket сообщения", "user_id", client.userID, "error", err)
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
