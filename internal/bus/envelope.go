package bus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/provenance-updater/internal/router"
)

// Envelope is the JSON document published for every upstream notification.
type Envelope struct {
	ID      string          `json:"msg_id,omitempty"`
	Topic   string          `json:"topic"`
	Headers map[string]any  `json:"headers,omitempty"`
	Msg     json.RawMessage `json:"msg"`
}

// DecodeEnvelope parses data into a router message. The subject stands in
// for a missing topic.
func DecodeEnvelope(data []byte, subject string) (router.Message, error) {
	var env Envelope
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return router.Message{}, fmt.Errorf("decode envelope: %w", err)
	}
	topic := strings.TrimSpace(env.Topic)
	if topic == "" {
		topic = subject
	}
	if topic == "" {
		return router.Message{}, fmt.Errorf("envelope has no topic")
	}
	id := strings.TrimSpace(env.ID)
	if id == "" {
		if v, ok := env.Headers["message-id"].(string); ok {
			id = strings.TrimSpace(v)
		}
	}
	return router.Message{
		ID:      id,
		Topic:   topic,
		Headers: env.Headers,
		Body:    env.Msg,
	}, nil
}
