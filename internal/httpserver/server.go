package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gearshare/gearshare/internal/catalog"
	"github.com/gearshare/gearshare/internal/message"
	"github.com/gearshare/gearshare/internal/notify"
	"github.com/gearshare/gearshare/pkg/rental"
)

// Dependencies are the wired services the facade exposes.
type Dependencies struct {
	Logger        *zap.Logger
	Rentals       *rental.Workflow
	Availability  *rental.Service
	Catalog       *catalog.Catalog
	Notifications *notify.Service
	Messages      *message.Service
}

func (deps Dependencies) validate() error {
	if deps.Rentals == nil || deps.Availability == nil || deps.Catalog == nil || deps.Notifications == nil || deps.Messages == nil {
		return fmt.Errorf("%w: http facade requires every service", rental.ErrInvalidServiceConfig)
	}
	return nil
}

// Run boots the HTTP facade and blocks until ctx is cancelled or the
// listener fails.
func Run(ctx context.Context, cfg Config, deps Dependencies) error {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	router, err := NewRouter(cfg, deps)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		deps.Logger.Info("rentald listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			deps.Logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter assembles the gin engine with CORS, auth and all routes.
func NewRouter(cfg Config, deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	handler := &httpHandler{
		logger:        deps.Logger,
		rentals:       deps.Rentals,
		availability:  deps.Availability,
		catalog:       deps.Catalog,
		notifications: deps.Notifications,
		messages:      deps.Messages,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(identityMiddleware([]byte(cfg.SessionSigningKey), cfg.SessionIssuer))

	api.POST("/rentals", handler.handleCreateRental)
	api.GET("/rentals", handler.handleListRentals)
	api.GET("/rentals/:id", handler.handleGetRental)
	api.PUT("/rentals/:id/confirm", handler.handleConfirmRental)
	api.PUT("/rentals/:id/complete", handler.handleCompleteRental)

	api.POST("/items", handler.handleCreateItem)
	api.GET("/items", handler.handleSearchItems)
	api.GET("/items/my", handler.handleMyItems)
	api.GET("/items/:id", handler.handleGetItem)
	api.GET("/items/:id/availability", handler.handleItemAvailability)
	api.PUT("/items/:id", handler.handleUpdateItem)
	api.DELETE("/items/:id", handler.handleDeleteItem)

	api.GET("/notifications", handler.handleListNotifications)
	api.GET("/notifications/unread-count", handler.handleUnreadCount)
	api.PUT("/notifications/read-all", handler.handleMarkAllNotificationsRead)
	api.PUT("/notifications/:id/read", handler.handleMarkNotificationRead)

	api.POST("/messages", handler.handleSendMessage)
	api.GET("/messages/booking/:id", handler.handleBookingThread)
	api.GET("/messages/conversations", handler.handleConversations)
	api.PUT("/messages/:id/read", handler.handleMarkMessageRead)

	return router, nil
}
