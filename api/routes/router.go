// Package routes wires every package's dependencies and HTTP routes behind
// one Router, following the teacher's per-module NewX/SetupXRoutes DI idiom.
package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ticketconcierge/internal/booking"
	"ticketconcierge/internal/catalog"
	"ticketconcierge/internal/conversation"
	"ticketconcierge/internal/lockregistry"
	"ticketconcierge/internal/messaging"
	"ticketconcierge/internal/payment/hosted"
	"ticketconcierge/internal/payment/stk"
	"ticketconcierge/internal/session"
	"ticketconcierge/internal/shared/config"
	"ticketconcierge/internal/shared/database"
	"ticketconcierge/internal/ticketing"
	"ticketconcierge/internal/users"
	"ticketconcierge/internal/webhook"
	"ticketconcierge/pkg/cache"
	"ticketconcierge/pkg/logger"
)

// Router holds all route dependencies plus the long-lived collaborators that
// need an explicit Start/Stop lifecycle (the ticket delivery consumer and
// the expiry sweeper).
type Router struct {
	config *config.Config
	db     *database.DB
	log    *logger.Logger

	bookings     booking.Engine
	sweeper      *booking.ExpirySweeper
	ticketPub    ticketing.Publisher
	ticketCons   *ticketing.Consumer
}

// NewRouter creates a new router instance.
func NewRouter(cfg *config.Config, db *database.DB, log *logger.Logger) *Router {
	return &Router{config: cfg, db: db, log: log}
}

// SetupRoutes configures all application routes and starts the background
// collaborators (ticket delivery consumer, expiry sweeper).
func (r *Router) SetupRoutes(engine *gin.Engine) {
	r.setupHealthRoutes(engine)

	cacheSvc := cache.NewService(r.db.GetRedisClient())
	sessionStore := session.NewStore(cacheSvc, r.config.Session.TTL, r.log)
	locks := lockregistry.NewRegistry(r.db.GetRedisClient(), r.log)

	userRepo := users.NewRepository(r.db.GetPostgreSQL())

	catalogRepo := catalog.NewRepository(r.db.GetPostgreSQL())
	catalogSvc := catalog.NewService(catalogRepo)
	catalogController := catalog.NewController(catalogSvc)

	bookingRepo := booking.NewRepository(r.db.GetPostgreSQL())
	bookingEngine := booking.NewEngine(bookingRepo, r.log)
	r.bookings = bookingEngine

	r.sweeper = booking.NewExpirySweeper(bookingRepo, r.log, 1*time.Minute)
	r.sweeper.Start()

	stkAdapter := stk.NewAdapter(r.config.STK)
	hostedAdapter := hosted.NewAdapter(r.config.Hosted)
	messagingClient := messaging.NewClient(r.config.Messaging)

	publisher, err := ticketing.NewPublisher(ticketing.DefaultProducerConfig(r.config.Kafka.Brokers))
	if err != nil {
		r.log.ErrorWithContext(context.Background(), "failed to initialize ticket delivery publisher", err, nil)
	} else {
		r.ticketPub = publisher
	}

	sender := messaging.NewTicketSenderAdapter(messagingClient)
	consumer, err := ticketing.NewConsumer(ticketing.DefaultConsumerConfig(r.config.Kafka.Brokers), sender, r.log)
	if err != nil {
		r.log.ErrorWithContext(context.Background(), "failed to initialize ticket delivery consumer", err, nil)
	} else {
		r.ticketCons = consumer
		consumer.Start()
	}

	controller := conversation.NewController(
		sessionStore, catalogSvc, locks, userRepo, bookingEngine,
		stkAdapter, hostedAdapter, messagingClient,
		r.log, r.config.MaxQuantity, r.config.Hosted.CallbackURL, r.config.Messaging.BotPhone,
	)

	webhookHandlers := webhook.NewHandlers(
		controller, messagingClient, bookingEngine, catalogSvc, userRepo,
		r.ticketPub, hostedAdapter, r.config.Messaging.VerifyToken, r.log,
	)

	api := engine.Group(r.config.GetAPIBasePath())
	{
		catalog.SetupRoutes(api, catalogController)
	}

	engine.GET("/webhook", webhookHandlers.VerifyUserWebhook)
	engine.POST("/webhook", webhookHandlers.ReceiveUserMessage)
	engine.POST("/webhooks/stk", webhookHandlers.ReceiveSTKPayment)
	engine.GET("/webhooks/hosted", webhookHandlers.ReceiveHostedPing)
	engine.POST("/webhooks/hosted", webhookHandlers.ReceiveHostedPayment)
}

// Shutdown stops the long-lived background collaborators. Call this after
// the HTTP server has stopped accepting new work.
func (r *Router) Shutdown() {
	if r.sweeper != nil {
		r.sweeper.Stop()
	}
	if r.ticketCons != nil {
		if err := r.ticketCons.Stop(); err != nil {
			r.log.ErrorWithContext(context.Background(), "failed to stop ticket delivery consumer cleanly", err, nil)
		}
	}
	if r.ticketPub != nil {
		if err := r.ticketPub.Close(); err != nil {
			r.log.ErrorWithContext(context.Background(), "failed to close ticket delivery publisher cleanly", err, nil)
		}
	}
}

// setupHealthRoutes sets up health check and system status routes.
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "ticketconcierge",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "ticketconcierge",
		})
	})

	engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "operational",
			"api_version": r.config.APIVersion,
			"timestamp":   time.Now(),
		})
	})
}
