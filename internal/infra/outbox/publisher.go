package outbox

import (
	"context"
	"errors"

	appoutbox "chatrelay/internal/app/outbox"
)

// Producer writes one message to a broker topic.
type Producer interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// Publisher sends records straight to the broker as CloudEvents. The
// in-memory outbox uses it on flush.
type Publisher struct {
	Producer    Producer
	TopicPrefix string
	Source      string
}

func (p Publisher) Publish(ctx context.Context, rec appoutbox.EventRecord) error {
	if p.Producer == nil {
		return errors.New("outbox: producer not configured")
	}
	payload, headers, err := CloudEvent(rec, p.Source)
	if err != nil {
		return err
	}
	return p.Producer.Publish(ctx, TopicFor(p.TopicPrefix, rec.Name), rec.Aggregate, payload, headers)
}

var _ appoutbox.Publisher = Publisher{}
