package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/IBM/sarama"
	"github.com/spf13/cobra"

	"chatrelay/internal/domain/messages"
	"chatrelay/internal/infra/broker/kafka"
	"chatrelay/internal/infra/config"
	mongodb "chatrelay/internal/infra/db/mongo"
	"chatrelay/internal/infra/obs"
	infraoutbox "chatrelay/internal/infra/outbox"
)

func NewEventsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the message event stream",
	}
	cmd.AddCommand(newTailCommand())
	return cmd
}

func newTailCommand() *cobra.Command {
	var (
		group      string
		fromOldest bool
		dedupe     bool
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print message.created and message.read events as they are published",
		Example: `  KAFKA_BROKERS=localhost:9092 chatrelay events tail
  KAFKA_BROKERS=localhost:9092 MONGO_URI=mongodb://localhost:27017 chatrelay events tail --dedupe --from-oldest`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.Kafka.Enabled() {
				return errors.New("KAFKA_BROKERS is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger := obs.NewLogger(cfg.Env, cfg.LogLevel)

			var inbox processedStore
			if dedupe {
				if cfg.Mongo.URI == "" {
					return errors.New("--dedupe needs MONGO_URI")
				}
				client, err := mongodb.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.ConnectTimeout)
				if err != nil {
					return err
				}
				defer client.Close(context.Background())
				store := mongodb.NewInboxStore(client.DB, group)
				if err := store.EnsureIndexes(ctx); err != nil {
					return err
				}
				inbox = store
			}

			printer := tailPrinter{out: cmd.OutOrStdout(), inbox: inbox}
			consumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, group, fromOldest, kafka.MessageHandlerFunc(printer.handle), logger)
			if err != nil {
				return err
			}
			defer consumer.Close()

			// message.created and message.read share one topic.
			topics := []string{infraoutbox.TopicFor(cfg.Kafka.TopicPrefix, messages.EventMessageCreated)}
			logger.Info("tailing", "topics", topics, "group", group)
			if err := consumer.Run(ctx, topics); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&group, "group", "chatrelay-tail", "Consumer group id")
	cmd.Flags().BoolVar(&fromOldest, "from-oldest", false, "Start a new group at the oldest offset")
	cmd.Flags().BoolVar(&dedupe, "dedupe", false, "Skip redelivered events using the Mongo inbox")
	return cmd
}

// processedStore dedupes redelivered events by CloudEvents id.
type processedStore interface {
	Processed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
}

type tailPrinter struct {
	out   io.Writer
	inbox processedStore
}

func (p tailPrinter) handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	id := header(msg, "ce-id")
	dedupe := p.inbox != nil && id != ""
	if dedupe {
		done, err := p.inbox.Processed(ctx, id)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	if _, err := fmt.Fprintf(p.out, "%s %s key=%s %s\n", msg.Timestamp.Format("15:04:05.000"), msg.Topic, msg.Key, strings.TrimSpace(string(msg.Value))); err != nil {
		return err
	}
	if dedupe {
		return p.inbox.MarkProcessed(ctx, id)
	}
	return nil
}

func header(msg *sarama.ConsumerMessage, key string) string {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}
