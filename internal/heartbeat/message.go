// Package heartbeat publishes a liveness beat on NATS while every stream is
// healthy, so an external heartbeat monitor notices when quakewatch stops
// receiving warnings, not just when the process dies.
package heartbeat

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Message is the beat payload. The field set matches what nats-heartbeat
// monitors expect.
type Message struct {
	Subject     string         `json:"subject"`
	GeneratedAt time.Time      `json:"generated_at"`
	Interval    time.Duration  `json:"interval"`
	GracePeriod *time.Duration `json:"grace_period,omitempty"`
	Description string         `json:"description,omitempty"`
	Host        string         `json:"host,omitempty"`
}

// Validate ensures required fields are present and well-formed.
func (m Message) Validate() error {
	if m.Subject == "" {
		return errors.New("subject is required")
	}
	if m.GeneratedAt.IsZero() {
		return errors.New("generated_at is required")
	}
	if m.Interval <= 0 {
		return fmt.Errorf("interval must be >0, got %s", m.Interval)
	}
	if m.GracePeriod != nil && *m.GracePeriod < 0 {
		return errors.New("grace period cannot be negative")
	}
	return nil
}

// Marshal validates and renders the message as JSON.
func (m Message) Marshal() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}
