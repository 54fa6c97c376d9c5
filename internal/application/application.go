package application

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/helpdeskhq/ticket-messaging/internal/channel"
	"github.com/helpdeskhq/ticket-messaging/internal/config"
	"github.com/helpdeskhq/ticket-messaging/internal/database"
	"github.com/helpdeskhq/ticket-messaging/internal/handler"
	"github.com/helpdeskhq/ticket-messaging/internal/kafka"
	"github.com/helpdeskhq/ticket-messaging/internal/notify"
	"github.com/helpdeskhq/ticket-messaging/internal/router"
	"github.com/helpdeskhq/ticket-messaging/internal/service"
)

// API приложение: HTTP + websocket сервер (режим api).
type API struct {
	cfg      *config.Config
	httpSrv  *http.Server
	ch       channel.Channel
	producer *kafka.Producer
}

// NewAPI создаёт приложение для режима api.
func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	// Event Channel: Redis pub/sub при нескольких репликах, иначе
	// внутрипроцессный брокер.
	var ch channel.Channel
	if cfg.RedisURL != "" {
		redisCh, err := channel.NewRedisChannel(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("channel: %w", err)
		}
		ch = redisCh
		log.Println("channel: using redis pub/sub")
	} else {
		ch = channel.NewBroker()
		log.Println("channel: using in-process broker")
	}

	producer := kafka.NewProducer(cfg.KafkaBrokers, firstNonEmpty(cfg.KafkaTopicMessage, cfg.KafkaTopicTicket))
	notifier := notify.NewClient(cfg.NotifyServiceURL)

	ticketSvc := service.NewTicketService(db, producer)
	messageSvc := service.NewMessageService(db, ch, producer)

	ticketHandler := handler.NewTicketHandler(ticketSvc, messageSvc, notifier)
	messageHandler := handler.NewMessageHandler(ticketSvc, messageSvc, notifier)
	wsHandler := handler.NewWSHandler(ticketSvc, messageSvc, ch)

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.New(ticketHandler, messageHandler, wsHandler),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // websocket sessions are long-lived
		IdleTimeout:       60 * time.Second,
	}

	return &API{
		cfg:      cfg,
		httpSrv:  httpSrv,
		ch:       ch,
		producer: producer,
	}, nil
}

// Run запускает HTTP сервер, блокируется до отмены ctx.
func (a *API) Run(ctx context.Context) error {
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	log.Printf("HTTP server listening on %s", a.httpSrv.Addr)
	log.Printf("  Swagger UI:    %s/swagger", base)
	log.Printf("  Health:        %s/health", base)
	log.Printf("  API v1:        %s/api/v1/", base)
	log.Printf("  Websocket:     %s/ws", base)

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	_ = a.ch.Close()
	_ = a.producer.Close()
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
