package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sdis/opsdash/internal/model"
	"github.com/sdis/opsdash/internal/store"
)

func (s *Server) handleListPower(c *gin.Context) {
	events := s.deps.Power.ListEvents()

	if t := c.Query("type"); t != "" {
		filtered := make([]model.PowerEvent, 0, len(events))
		for _, e := range events {
			if string(e.Type) == t {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	c.JSON(http.StatusOK, events)
}

func (s *Server) handleListOperations(c *gin.Context) {
	events := s.deps.Operations.ListEvents()

	kind := c.Query("kind")
	status := c.Query("status")
	if kind != "" || status != "" {
		filtered := make([]model.OperationEvent, 0, len(events))
		for _, e := range events {
			if kind != "" && string(e.Kind) != kind {
				continue
			}
			if status != "" && string(e.Status) != status {
				continue
			}
			filtered = append(filtered, e)
		}
		events = filtered
	}

	c.JSON(http.StatusOK, events)
}

func (s *Server) handleRefresh(c *gin.Context) {
	s.deps.Scheduler.TriggerNow()
	c.JSON(http.StatusAccepted, gin.H{"status": "scan requested"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Scheduler.Statuses())
}

func (s *Server) handleVAPIDKey(c *gin.Context) {
	if s.deps.VAPIDPublicKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "push notifications are not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"publicKey": s.deps.VAPIDPublicKey})
}

// subscribeRequest mirrors the browser PushSubscription JSON plus the kind
// of notifications wanted.
type subscribeRequest struct {
	Kind     model.SubscriptionKind `json:"kind" binding:"required"`
	Endpoint string                 `json:"endpoint" binding:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys"`
}

func (s *Server) handleSubscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be ticket or email"})
		return
	}

	sub, err := s.deps.Subscriptions.UpsertSubscriber(c.Request.Context(), model.Subscriber{
		Kind:     req.Kind,
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	})
	if err != nil {
		s.logger.Error("saving push subscription failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save subscription"})
		return
	}

	c.JSON(http.StatusCreated, sub)
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

func (s *Server) handleUnsubscribe(c *gin.Context) {
	var req unsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := s.deps.Subscriptions.DeleteSubscriberByEndpoint(c.Request.Context(), req.Endpoint)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
	case err != nil:
		s.logger.Error("deleting push subscription failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete subscription"})
	default:
		c.Status(http.StatusNoContent)
	}
}
