package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mvolkov/web_shop/internal/cart"
	"github.com/mvolkov/web_shop/internal/config"
	"github.com/mvolkov/web_shop/internal/handlers"
	"github.com/mvolkov/web_shop/internal/logging"
	"github.com/mvolkov/web_shop/internal/mykafka"
	"github.com/mvolkov/web_shop/internal/notify"
	"github.com/mvolkov/web_shop/internal/order"
	"github.com/mvolkov/web_shop/internal/payment"
	httpserver "github.com/mvolkov/web_shop/internal/transport/http"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(configuration.LOG_LEVEL)

	db, err := config.InitDB(context.Background(), configuration)
	if err != nil {
		log.Fatalf("database init error: %v", err)
	}

	jwtSecret := []byte(configuration.JWT_SECRET)

	var producer *mykafka.Producer
	var sink notify.Sink = &notify.LogSink{Log: logger}
	if configuration.KAFKA_ADDRESS != "" {
		producer = mykafka.NewProducer([]string{configuration.KAFKA_ADDRESS})
		sink = &notify.KafkaSink{Producer: producer, Topic: "notification_events"}
	}

	var gateway payment.Gateway = payment.DummyGateway{}
	if configuration.StripeEnabled() {
		gateway, err = payment.NewStripeGateway(payment.StripeConfig{
			APIKey:        configuration.STRIPE_API_KEY,
			WebhookSecret: configuration.STRIPE_WEBHOOK_SECRET,
		})
		if err != nil {
			log.Fatalf("stripe gateway init error: %v", err)
		}
	}

	carts := &cart.Service{DB: db}
	orders := &order.Service{DB: db, Notify: sink}
	payments := &payment.Service{DB: db, Gateway: gateway, Orders: orders}

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())

	deps := httpserver.Deps{
		JWTSecret:      jwtSecret,
		ProductHandler: &handlers.ProductHandler{DB: db, Producer: producer},
		CartHandler:    &handlers.CartHandler{Carts: carts, Producer: producer, JWTSecret: jwtSecret},
		OrderHandler:   &handlers.OrderHandler{Orders: orders, Producer: producer, JWTSecret: jwtSecret},
		PaymentHandler: &handlers.PaymentHandler{
			Payments:         payments,
			Producer:         producer,
			JWTSecret:        jwtSecret,
			StripeConfigured: configuration.StripeEnabled() && configuration.STRIPE_WEBHOOK_SECRET != "",
		},
	}
	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         configuration.HTTP_ADDR,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()
	logger.Info("server started", "addr", configuration.HTTP_ADDR, "stripe", configuration.StripeEnabled())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "err", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db close error", "err", err)
		}
	}

	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("kafka close error", "err", err)
		}
	}

	logger.Info("shutdown complete")
}
