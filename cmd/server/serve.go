package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sudo-init-do/handyhub/internal/admin"
	"github.com/sudo-init-do/handyhub/internal/alerts"
	"github.com/sudo-init-do/handyhub/internal/auth"
	"github.com/sudo-init-do/handyhub/internal/marketplace"
	"github.com/sudo-init-do/handyhub/internal/messaging"
	mware "github.com/sudo-init-do/handyhub/internal/middleware"
	"github.com/sudo-init-do/handyhub/internal/realtime"
	"github.com/sudo-init-do/handyhub/internal/user"
	"github.com/sudo-init-do/handyhub/internal/worker"
)

func serveCmd() *cobra.Command {
	var withWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is required")
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			authn := &auth.Authenticator{Verifier: auth.NewVerifier(cfg.JWTSecret), Users: a.store, Log: log.Logger}
			tickets := auth.NewTickets(cfg.WSTicketTTL)
			chat := messaging.NewService(a.store, a.registry, a.rooms, a.notifier, log.Logger)
			gateway := realtime.NewGateway(authn, tickets, a.registry, a.rooms, chat, a.market, log.Logger)

			e := newEcho(a, authn, tickets, chat, gateway)

			go tickets.Run(ctx, cfg.WSTicketTTL)
			go a.market.RunSweeper(ctx, cfg.SweepInterval)

			if withWorker {
				if cfg.RedisAddr == "" {
					return errors.New("--with-worker needs REDIS_ADDR")
				}
				w := worker.New(worker.Config{RedisAddr: cfg.RedisAddr, SweepInterval: cfg.SweepInterval},
					worker.NewMux(&alerts.Processor{Users: a.store, Mailer: alerts.NewMailer(mailConfig(cfg)), Log: log.Logger}, a.market, log.Logger),
					log.Logger)
				if err := w.Start(); err != nil {
					return err
				}
				defer w.Shutdown()
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := e.Shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("shutdown")
				}
			}()

			log.Info().Str("port", cfg.Port).Str("db", cfg.DBDriver).Msg("handyhub listening")
			if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also run the asynq worker in this process")
	return cmd
}

func newEcho(a *app, authn *auth.Authenticator, tickets *auth.Tickets, chat *messaging.Service, gateway *realtime.Gateway) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := a.store.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready", "connections": a.registry.Online()})
	})

	// The socket authenticates itself from the query string.
	e.GET("/ws", gateway.Handle)

	// JWT is attached per route; a root group Use would also guard unknown paths.
	api := e.Group("")
	jwt := mware.JWTMiddleware(authn)

	authH := &auth.Handler{Users: a.store, Tickets: tickets}
	api.GET("/me", authH.Me, jwt)
	api.POST("/realtime/ticket", authH.IssueTicket, jwt, middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(20)))

	(&marketplace.Handler{Service: a.market}).Register(api, jwt)
	(&messaging.Handler{Service: chat}).Register(api, jwt)
	(&alerts.Handler{Store: a.store}).Register(api, jwt)
	(&user.Handler{Users: a.store}).Register(api, jwt)

	adminGroup := e.Group("/admin")
	adminGroup.Use(mware.JWTMiddleware(authn))
	adminGroup.Use(mware.AdminGuard)
	(&admin.Handler{Market: a.market, Users: a.store, Presence: a.registry}).Register(adminGroup)

	return e
}
