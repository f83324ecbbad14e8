package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Message is one delivered bus notification.
type Message struct {
	ID      string
	Topic   string
	Headers map[string]any
	Body    json.RawMessage
}

// Header returns a header rendered as a trimmed string, or "".
func (m Message) Header(name string) string {
	v, ok := m.Headers[name]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Decode unmarshals the body into v, preserving numbers as json.Number.
func (m Message) Decode(v any) error {
	if len(m.Body) == 0 {
		return fmt.Errorf("empty message body")
	}
	dec := json.NewDecoder(bytes.NewReader(m.Body))
	dec.UseNumber()
	return dec.Decode(v)
}
