// Package api serves the dashboard's read endpoints and push subscription
// registration over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sdis/opsdash/internal/model"
	"github.com/sdis/opsdash/internal/sync"
)

// PowerLister exposes the power classifier history.
type PowerLister interface {
	ListEvents() []model.PowerEvent
}

// OperationLister exposes the operation classifier history.
type OperationLister interface {
	ListEvents() []model.OperationEvent
}

// Scheduler is the part of the poller the API drives.
type Scheduler interface {
	TriggerNow()
	Statuses() []sync.SyncStatus
}

// Subscriptions persists browser push subscriptions.
type Subscriptions interface {
	UpsertSubscriber(ctx context.Context, sub model.Subscriber) (model.Subscriber, error)
	DeleteSubscriberByEndpoint(ctx context.Context, endpoint string) error
}

// Deps groups the collaborators behind the routes.
type Deps struct {
	Power          PowerLister
	Operations     OperationLister
	Scheduler      Scheduler
	Subscriptions  Subscriptions
	VAPIDPublicKey string
}

// Server is the HTTP front of the service.
type Server struct {
	deps   Deps
	engine *gin.Engine
	http   *http.Server
	logger *zap.Logger
}

// NewServer builds the router for cfg.Listen.
func NewServer(cfg model.HTTPConfig, deps Deps, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		deps:   deps,
		engine: gin.New(),
		logger: logger.Named("http"),
	}
	s.engine.Use(gin.Recovery(), requestLogger(s.logger))
	s.routes()

	s.http = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	emails := s.engine.Group("/api/emails")
	{
		emails.GET("/power", s.handleListPower)
		emails.GET("/operations", s.handleListOperations)
		emails.POST("/refresh", s.handleRefresh)
		emails.GET("/status", s.handleStatus)
	}

	push := s.engine.Group("/api/push")
	{
		push.GET("/vapid-public-key", s.handleVAPIDKey)
		push.POST("/subscriptions", s.handleSubscribe)
		push.DELETE("/subscriptions", s.handleUnsubscribe)
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and drains in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}
