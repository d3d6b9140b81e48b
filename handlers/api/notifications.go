package api

import (
	"bufio"
	"encoding/json"
	"sync"
	"time"

	"mailbridge/middleware"
	"mailbridge/models"
	"mailbridge/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

// NotificationHub fans notifications out to each user's open SSE and
// websocket connections. It implements service.Notifier.
type NotificationHub struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan models.Notification // user id -> subscriber id
	keepAlive   time.Duration
}

// NewNotificationHub creates an empty hub
func NewNotificationHub() *NotificationHub {
	return &NotificationHub{
		subscribers: make(map[string]map[string]chan models.Notification),
		keepAlive:   30 * time.Second,
	}
}

// Subscribe registers a buffered channel for userID. The returned function
// unregisters and closes it.
func (h *NotificationHub) Subscribe(userID string) (<-chan models.Notification, func()) {
	id := uuid.NewString()
	ch := make(chan models.Notification, 10)

	h.mu.Lock()
	if h.subscribers[userID] == nil {
		h.subscribers[userID] = make(map[string]chan models.Notification)
	}
	h.subscribers[userID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers[userID], id)
			if len(h.subscribers[userID]) == 0 {
				delete(h.subscribers, userID)
			}
			close(ch)
			h.mu.Unlock()
		})
	}
}

// Notify sends n to every connection userID has open. Subscribers whose
// buffer is full miss the notification.
func (h *NotificationHub) Notify(userID string, n models.Notification) {
	n.ID = uuid.NewString()
	n.Time = time.Now()

	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := h.subscribers[userID]
	utils.Log.Debug("Notifying user %s: type=%s to %d subscribers", userID, n.Type, len(subs))

	for id, ch := range subs {
		select {
		case ch <- n:
		default:
			utils.Log.Warn("Notification channel full for subscriber %s", id)
		}
	}
}

// HandleSSE streams the caller's notifications as Server-Sent Events
func (h *NotificationHub) HandleSSE(c *fiber.Ctx) error {
	userID, err := authorizedUser(c, "")
	if err != nil {
		return err
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")

	ch, unsubscribe := h.Subscribe(userID)
	done := c.Context().Done()
	keepAlive := h.keepAlive

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()
		utils.Log.Info("SSE subscriber connected for user %s", userID)

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		for {
			select {
			case n, ok := <-ch:
				if !ok {
					return
				}
				data, err := json.Marshal(n)
				if err != nil {
					continue
				}
				w.WriteString("data: " + string(data) + "\n\n")
			case <-ticker.C:
				w.WriteString(": keepalive\n\n")
			case <-done:
				return
			}
			if err := w.Flush(); err != nil {
				utils.Log.Info("SSE subscriber disconnected for user %s", userID)
				return
			}
		}
	}))

	return nil
}

// RequireUpgrade rejects plain HTTP requests to the websocket endpoint
func (h *NotificationHub) RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// HandleWebSocket pushes the caller's notifications over a websocket.
// BearerAuth must run before the upgrade so the user id is in Locals.
func (h *NotificationHub) HandleWebSocket(c *websocket.Conn) {
	userID, _ := c.Locals(middleware.UserIDKey).(string)
	if userID == "" {
		c.Close()
		return
	}

	ch, unsubscribe := h.Subscribe(userID)
	defer func() {
		unsubscribe()
		c.Close()
		utils.Log.Info("WebSocket subscriber disconnected for user %s", userID)
	}()

	utils.Log.Info("WebSocket subscriber connected for user %s", userID)

	// Reads only detect the client going away.
	go func() {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				unsubscribe()
				return
			}
		}
	}()

	for n := range ch {
		if err := c.WriteJSON(n); err != nil {
			utils.Log.Error("Failed to send WebSocket notification: %v", err)
			break
		}
	}
}
