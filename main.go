package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mailbridge/auth"
	"mailbridge/config"
	"mailbridge/credentials"
	"mailbridge/handlers/api"
	"mailbridge/middleware"
	"mailbridge/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "mailbridge",
		Short:        "Mailbox sync and send service for IMAP/SMTP accounts",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.toml", "path to the TOML configuration file")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(cmd.Context(), configPath)
			},
		},
		syncCommand(&configPath),
		tokenCommand(&configPath),
		encryptCommand(&configPath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	c, err := build(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	app := fiber.New(fiber.Config{
		AppName:      "mailbridge",
		BodyLimit:    cfg.Server.BodyLimitMB * 1024 * 1024,
		ErrorHandler: api.ErrorHandler,
	})

	// Add global middleware
	app.Use(recover.New())  // Recover from panics
	app.Use(logger.New())   // Request logging
	app.Use(compress.New()) // Response compression

	// Security headers
	app.Use(helmet.New(helmet.Config{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'",
	}))
	if headers := cfg.GetSecurityHeaders(); len(headers) > 0 {
		app.Use(func(c *fiber.Ctx) error {
			for k, v := range headers {
				c.Set(k, v)
			}
			return c.Next()
		})
	}
	app.Use(middleware.LocaleMiddleware())
	app.Use(middleware.RateLimiter(ctx, cfg.RateLimit.Requests, time.Duration(cfg.RateLimit.WindowSeconds)*time.Second))

	api.Register(app, api.Deps{
		Verifier: c.verifier,
		Syncer:   c.sync,
		Sender:   c.send,
		Accounts: c.accounts,
		Mailbox:  c.mailbox,
		Hub:      c.hub,
	})

	go func() {
		<-ctx.Done()
		utils.Log.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			utils.Log.Error("Shutdown failed: %v", err)
		}
	}()

	if cfg.SSL.Enabled {
		addr := fmt.Sprintf(":%d", cfg.SSL.Port)
		utils.Log.Info("Starting HTTPS server on %s...", addr)
		return app.ListenTLS(addr, cfg.SSL.CertFile, cfg.SSL.KeyFile)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	utils.Log.Info("Starting server on %s...", addr)
	return app.Listen(addr)
}

func syncCommand(configPath *string) *cobra.Command {
	var userID, accountID string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync one account once and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			c, err := build(cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			result, err := c.sync.Sync(cmd.Context(), userID, accountID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owning user id")
	cmd.Flags().StringVar(&accountID, "account", "", "account id")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("account")
	return cmd
}

func tokenCommand(configPath *string) *cobra.Command {
	var userID string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			verifier, err := auth.NewJWTVerifier(cfg.JWT.Secret, cfg.JWT.Issuer)
			if err != nil {
				return err
			}

			if ttl <= 0 {
				ttl = time.Duration(cfg.JWT.TokenTTLHours) * time.Hour
			}
			token, err := verifier.Issue(userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to put in the token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to jwt.token_ttl_hours)")
	cmd.MarkFlagRequired("user")
	return cmd
}

func encryptCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a mail password read from stdin with the configured key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			cipher, err := credentials.NewCipher(cfg.Encryption.Key)
			if err != nil {
				return err
			}

			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			sealed, err := cipher.Encrypt(strings.TrimRight(line, "\r\n"))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
}
