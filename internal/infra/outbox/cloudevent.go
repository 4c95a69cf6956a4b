package outbox

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	appoutbox "chatrelay/internal/app/outbox"
)

const DefaultSource = "app://chatrelay"

// TopicFor maps an event name such as "message.created" to "<prefix>message.events.v1".
func TopicFor(prefix, name string) string {
	base := name
	if idx := strings.IndexRune(name, '.'); idx > 0 {
		base = name[:idx]
	}
	return prefix + base + ".events.v1"
}

// CloudEvent wraps a record payload in a structured-mode CloudEvents 1.0 envelope.
func CloudEvent(rec appoutbox.EventRecord, source string) ([]byte, map[string]string, error) {
	if source == "" {
		source = DefaultSource
	}
	var data json.RawMessage = rec.Payload
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	evt := map[string]any{
		"specversion":     "1.0",
		"id":              id,
		"type":            rec.Name + ".v1",
		"source":          source,
		"subject":         rec.Aggregate,
		"time":            rec.OccurredAt,
		"datacontenttype": "application/json",
		"data":            data,
	}
	if trace, ok := rec.Headers["traceparent"]; ok {
		evt["traceparent"] = trace
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, nil, err
	}
	headers := map[string]string{}
	for k, v := range rec.Headers {
		headers[k] = v
	}
	headers["content-type"] = "application/cloudevents+json"
	headers["ce-id"] = id
	return payload, headers, nil
}
