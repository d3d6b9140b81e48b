package middleware

import (
	"context"
	"sync"
	"time"

	"mailbridge/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/time/rate"
)

// RateLimiter limits each client IP to requests per window. Idle clients
// are forgotten by a janitor that stops when ctx is done.
func RateLimiter(ctx context.Context, requests int, window time.Duration) fiber.Handler {
	if requests < 1 {
		requests = 1
	}
	type client struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	var (
		clients = make(map[string]*client)
		mu      sync.Mutex
	)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			mu.Lock()
			for ip, c := range clients {
				if time.Since(c.lastSeen) > 10*time.Minute {
					delete(clients, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *fiber.Ctx) error {
		ip := c.IP()

		mu.Lock()
		cl, exists := clients[ip]
		if !exists {
			limiter := rate.NewLimiter(rate.Every(window/time.Duration(requests)), requests)
			cl = &client{limiter: limiter}
			clients[ip] = cl
		}
		cl.lastSeen = time.Now()
		mu.Unlock()

		if !cl.limiter.Allow() {
			localizer, _ := c.Locals("localizer").(*i18n.Localizer)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": utils.T(localizer, "error_rate_limit"),
			})
		}

		return c.Next()
	}
}
