package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/helpdeskhq/ticket-messaging/internal/config"
	"github.com/helpdeskhq/ticket-messaging/internal/database"
	"github.com/helpdeskhq/ticket-messaging/internal/kafka"
	"github.com/helpdeskhq/ticket-messaging/internal/model"
	"github.com/helpdeskhq/ticket-messaging/internal/notify"
)

var backfillEventsCmd = &cobra.Command{
	Use:   "backfill-events",
	Short: "Republish all tickets as events. Prefers Kafka; falls back to HTTP if NOTIFY_SERVICE_URL set.",
	RunE:  runBackfillEvents,
}

func init() {
	rootCmd.AddCommand(backfillEventsCmd)
}

func runBackfillEvents(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	conn, err := database.Open(cfg.DSN())
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}

	var tickets []model.Ticket
	if err := conn.Find(&tickets).Error; err != nil {
		return fmt.Errorf("list tickets: %w", err)
	}
	log.Printf("backfill-events: found %d tickets", len(tickets))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	// Prefer Kafka, then HTTP
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopicTicket != "" {
		log.Println("backfill-events: using Kafka")
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicTicket)
		defer producer.Close()
		for i := range tickets {
			t := &tickets[i]
			payload := map[string]interface{}{
				"ticket_id":         int64(t.ID),
				"requester_id":      t.RequesterID,
				"requester_email":   t.RequesterEmail,
				"subject":           t.Subject,
				"priority":          string(t.Priority),
				"status":            string(t.Status),
				"assigned_operator": t.AssignedOperator,
			}
			producer.ProduceEvent(ctx, "ticket.updated", payload)
			if (i+1)%50 == 0 || i == len(tickets)-1 {
				log.Printf("backfill-events: sent %d/%d events to Kafka", i+1, len(tickets))
			}
		}
		log.Printf("backfill-events: done, sent %d events to Kafka", len(tickets))
		return nil
	}
	if cfg.NotifyServiceURL != "" {
		log.Println("backfill-events: using HTTP")
		client := notify.NewClient(cfg.NotifyServiceURL)
		for i := range tickets {
			client.TicketCreated(ctx, &tickets[i])
			if (i+1)%50 == 0 || i == len(tickets)-1 {
				log.Printf("backfill-events: sent %d/%d", i+1, len(tickets))
			}
		}
		log.Printf("backfill-events: done, sent %d events via HTTP", len(tickets))
		return nil
	}
	log.Println("backfill-events: neither KAFKA_BROKERS nor NOTIFY_SERVICE_URL set")
	log.Printf("backfill-events: found %d tickets (not republished)", len(tickets))
	return nil
}
