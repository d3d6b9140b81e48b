package api

import (
	"time"

	"mailbridge/auth"
	"mailbridge/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Deps are the collaborators the API routes are built from
type Deps struct {
	Verifier auth.Verifier
	Syncer   Syncer
	Sender   Sender
	Accounts AccountManager
	Mailbox  Mailbox
	Hub      *NotificationHub
}

// Register mounts every route on app. Global middleware is the caller's.
func Register(app *fiber.App, d Deps) {
	i18nHandler := &I18nHandler{}
	syncHandler := NewSyncHandler(d.Syncer)
	sendHandler := NewSendHandler(d.Sender)
	accountHandler := NewAccountHandler(d.Accounts)
	emailHandler := NewEmailHandler(d.Mailbox)

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	app.Get("/api/i18n/:lang", i18nHandler.GetTranslations)

	apiRoutes := app.Group("/api", middleware.BearerAuth(d.Verifier))
	{
		apiRoutes.Post("/sync", syncHandler.HandleSync)
		apiRoutes.Post("/send", sendHandler.HandleSend)

		apiRoutes.Get("/accounts", accountHandler.GetAccounts)
		apiRoutes.Post("/accounts", accountHandler.CreateAccount)
		apiRoutes.Delete("/accounts/:id", accountHandler.DeleteAccount)
		apiRoutes.Post("/accounts/:id/test", accountHandler.TestConnection)

		apiRoutes.Get("/emails", emailHandler.ListEmails)
		apiRoutes.Post("/emails/select", emailHandler.SelectEmails)

		apiRoutes.Get("/notifications/stream", d.Hub.HandleSSE)
		apiRoutes.Get("/notifications/ws", d.Hub.RequireUpgrade, websocket.New(d.Hub.HandleWebSocket))
	}

	app.Use(NotFound)
}
