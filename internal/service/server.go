package service

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/Bessima/gift-fulfillment/internal/handlers"
	middleware "github.com/Bessima/gift-fulfillment/internal/middlewares"
	"github.com/Bessima/gift-fulfillment/internal/middlewares/logger"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ServerService struct {
	Server       *http.Server
	services     *Services
	webhookToken string
}

func NewServerService(rootContext context.Context, address string, services *Services, webhookToken string) ServerService {
	server := &http.Server{
		Addr: address,
		BaseContext: func(_ net.Listener) context.Context {
			return rootContext
		},
	}
	return ServerService{Server: server, services: services, webhookToken: webhookToken}
}

func (serverService *ServerService) SetRouter(jwtConfig *handlers.JWTConfig) {
	serverService.Server.Handler = serverService.getRouter(jwtConfig)
}

func (serverService *ServerService) getRouter(jwtConfig *handlers.JWTConfig) chi.Router {
	router := chi.NewRouter()
	router.Use(logger.RequestLogger)

	repos := serverService.services.Repositories
	authHandler := handlers.NewAuthHandler(jwtConfig, repos.Operators)
	authenticated := middleware.AuthMiddleware(authHandler)
	operators := middleware.RequireRole(models.RoleService, models.RoleAdmin)

	router.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		if err := repos.Health.Ping(r.Context()); err != nil {
			logger.Log.Error("storage ping failed", zap.Error(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	router.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", authHandler.LoginHandler)
		r.Post("/refresh", authHandler.RefreshHandler)
		r.With(authenticated).Post("/logout", authHandler.LogoutHandler)
		r.With(authenticated, middleware.RequireRole(models.RoleAdmin)).Post("/operators", authHandler.CreateOperatorHandler)
	})

	paymentsHandler := handlers.NewPaymentsHandler(serverService.services.Capture)
	orderHandler := handlers.NewOrderHandler(serverService.services.Ledger)
	router.Group(func(r chi.Router) {
		r.Use(authenticated, operators)
		r.Post("/api/payments/confirm", paymentsHandler.Confirm)
		r.Post("/api/group-gifts/{projectID}/contributions", paymentsHandler.RegisterContribution)
		r.Post("/api/group-gifts/{projectID}/capture", paymentsHandler.CaptureGroupGift)
		r.Get("/api/orders/{orderID}", orderHandler.Get)
	})

	webhookHandler := handlers.NewWebhookHandler(serverService.services.Reconciler, serverService.webhookToken)
	router.Post("/api/webhooks/fulfillment", webhookHandler.Handle)

	// Роль проверяет AdminService, чтобы отказ тоже попал в аудит.
	adminHandler := handlers.NewAdminHandler(serverService.services.Admin)
	router.Route("/api/admin", func(r chi.Router) {
		r.Use(authenticated)
		r.Post("/orders", adminHandler.Execute)
		r.Post("/funds/retry", adminHandler.RetryFunds)
		r.With(middleware.RequireRole(models.RoleAdmin)).Get("/funds", adminHandler.GetFunds)
		r.With(middleware.RequireRole(models.RoleAdmin)).Get("/audit", adminHandler.GetAudit)
	})

	return router
}

func (serverService *ServerService) RunServer(serverErr *chan error) {
	if err := serverService.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		*serverErr <- err
	} else {
		*serverErr <- nil
	}
}

func (serverService *ServerService) Shutdown() error {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if shutdownErr := serverService.Server.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	return nil
}
