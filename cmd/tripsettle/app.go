package main

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tripsettle/tripsettle/internal/bus/rabbit"
	"github.com/tripsettle/tripsettle/internal/db"
	"github.com/tripsettle/tripsettle/internal/events"
	"github.com/tripsettle/tripsettle/internal/logger"
	"github.com/tripsettle/tripsettle/internal/outbox"
	"github.com/tripsettle/tripsettle/internal/repository/postgres"
	"github.com/tripsettle/tripsettle/internal/service/gateway"
	"github.com/tripsettle/tripsettle/internal/service/orders"
	"github.com/tripsettle/tripsettle/internal/service/saga"
	"github.com/tripsettle/tripsettle/internal/service/wallet"
)

// App wires the wallet service, the saga consumer and the outbox
// dispatcher together. Wallet is exported so integration tests can drive
// ledger operations through the same wiring the binary uses.
type App struct {
	Wallet *wallet.Service

	logger     logger.Logger
	queue      string
	amqpConn   *amqp.Connection
	publisher  *rabbit.Publisher
	consumer   *rabbit.Consumer
	dispatcher *outbox.Dispatcher
	closePool  func()
}

func NewApp(ctx context.Context, c *Config) (*App, error) {
	log := logger.NewLogger(c.LogLevel)

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	storage := postgres.NewStorage(pool)

	// Connect to the broker
	amqpConn, err := amqp.Dial(c.AMQPURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while connecting to broker. Err: %w", err)
	}

	publisher, err := rabbit.NewPublisher(amqpConn, rabbit.DefaultExchange)
	if err != nil {
		pool.Close()
		amqpConn.Close() // nolint:errcheck
		return nil, fmt.Errorf("error while creating publisher. Err: %w", err)
	}

	// Initialize services
	gatewayClient := gateway.NewClient(c.GatewayAddr, log)
	ordersClient := orders.NewClient(c.OrdersAddr, log)
	walletService := wallet.NewService(storage, gatewayClient, log)
	coordinator := saga.NewCoordinator(ordersClient, publisher, storage, log)

	// Build the handler registry the consumer queue is bound from
	registry := events.NewRegistry()
	coordinator.RegisterHandlers(registry, validator.New())
	registry.Seal()

	return &App{
		Wallet:     walletService,
		logger:     log,
		queue:      c.Queue,
		amqpConn:   amqpConn,
		publisher:  publisher,
		consumer:   rabbit.NewConsumer(amqpConn, rabbit.DefaultExchange, c.Queue, registry, log),
		dispatcher: outbox.NewDispatcher(storage, publisher, log),
		closePool:  pool.Close,
	}, nil
}

// Run starts the consumer and the outbox dispatcher and blocks until the
// context is cancelled. Both loops are drained before resources close.
func (a *App) Run(ctx context.Context) error {
	consumerStopped, err := a.consumer.Run(ctx)
	if err != nil {
		a.close()
		return fmt.Errorf("error while starting consumer. Err: %w", err)
	}
	dispatcherStopped := a.dispatcher.Run(ctx)

	a.logger.Info("Service started", "queue", a.queue)
	<-ctx.Done()

	<-consumerStopped
	<-dispatcherStopped

	a.close()
	a.logger.Info("Service stopped")
	return nil
}

func (a *App) close() {
	if err := a.publisher.Close(); err != nil {
		a.logger.Warn("Failed to close publisher channel", "error", err)
	}
	if err := a.amqpConn.Close(); err != nil {
		a.logger.Warn("Failed to close broker connection", "error", err)
	}
	a.closePool()
}
