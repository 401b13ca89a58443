package kafka

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"
)

// envelopeMeta is the part of an event envelope every consumer needs before
// it knows the payload type.
type envelopeMeta struct {
	EventID      string `json:"event_id"`
	EventType    string `json:"event_type"`
	EventVersion int    `json:"event_version"`
}

// Headers copies the envelope's type and version into Kafka headers so
// consumers can filter without decoding the body. A body that is not an
// envelope gets no headers.
func Headers(value []byte) []kafka.Header {
	var m envelopeMeta
	if err := json.Unmarshal(value, &m); err != nil || m.EventType == "" {
		return nil
	}
	return []kafka.Header{
		{Key: "x-event-type", Value: []byte(m.EventType)},
		{Key: "x-event-version", Value: []byte(strconv.Itoa(m.EventVersion))},
	}
}

// HeaderValue returns the first header named key, or "".
func HeaderValue(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// UnwrapPayload decodes an envelope payload into its concrete type.
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
