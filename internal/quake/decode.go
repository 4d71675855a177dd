package quake

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNotEvent marks a well-formed frame that carries nothing to evaluate.
var ErrNotEvent = errors.New("frame carries no event")

// Decoder turns one raw frame into an Event.
type Decoder func(data []byte, receivedAt time.Time) (Event, error)

// DecoderFor returns the frame decoder for src, or nil if src is unknown.
func DecoderFor(src Source) Decoder {
	switch src {
	case JMA:
		return DecodeJMA
	case CEA:
		return DecodeCEA
	default:
		return nil
	}
}

// jmaFrame is the wolfx jma_eew message. "Magunitude" is spelled that way on
// the wire.
type jmaFrame struct {
	Type          string     `json:"type"`
	EventID       flexNumber `json:"EventID"`
	Serial        flexNumber `json:"Serial"`
	AnnouncedTime string     `json:"AnnouncedTime"`
	OriginTime    string     `json:"OriginTime"`
	Hypocenter    string     `json:"Hypocenter"`
	Magnitude     flexNumber `json:"Magunitude"`
	Depth         flexNumber `json:"Depth"`
	MaxIntensity  flexNumber `json:"MaxIntensity"`
	IsCancel      bool       `json:"isCancel"`
	IsTraining    bool       `json:"isTraining"`
	IsAssumption  bool       `json:"isAssumption"`
	IsFinal       bool       `json:"isFinal"`
}

// DecodeJMA decodes a wolfx JMA EEW frame.
func DecodeJMA(data []byte, receivedAt time.Time) (Event, error) {
	var f jmaFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return Event{}, fmt.Errorf("jma: decode json: %w", err)
	}

	switch f.Type {
	case "", "jma_eew":
	default:
		return Event{}, fmt.Errorf("%w: type %q", ErrNotEvent, f.Type)
	}
	switch {
	case f.IsCancel:
		return Event{}, fmt.Errorf("%w: cancellation", ErrNotEvent)
	case f.IsTraining:
		return Event{}, fmt.Errorf("%w: training", ErrNotEvent)
	case f.IsAssumption:
		return Event{}, fmt.Errorf("%w: assumption", ErrNotEvent)
	}

	if f.MaxIntensity == "" {
		return Event{}, errors.New("jma: missing MaxIntensity")
	}
	level, err := ParseIntensity(string(f.MaxIntensity))
	if err != nil {
		return Event{}, fmt.Errorf("jma: %w", err)
	}

	at := f.AnnouncedTime
	if at == "" {
		at = f.OriginTime
	}
	serial, _ := strconv.Atoi(string(f.Serial))

	return Event{
		Source:     JMA,
		ReceivedAt: receivedAt,
		Severity:   IntensitySeverity(level),
		Key:        eventKey(JMA, string(f.EventID)),
		Details: Details{
			EventID:   string(f.EventID),
			Region:    f.Hypocenter,
			Magnitude: string(f.Magnitude),
			Depth:     string(f.Depth),
			Time:      at,
			Serial:    serial,
			Final:     f.IsFinal,
		},
		Raw: data,
	}, nil
}

// ceaFrame is the fanstudio CEA message; the warning itself sits under Data.
type ceaFrame struct {
	Type string   `json:"type"`
	Data *ceaData `json:"Data"`
}

type ceaData struct {
	ID           flexNumber `json:"id"`
	EventID      flexNumber `json:"eventId"`
	ShockTime    string     `json:"shockTime"`
	PlaceName    string     `json:"placeName"`
	Magnitude    flexNumber `json:"magnitude"`
	EpiIntensity flexNumber `json:"epiIntensity"`
	Depth        flexNumber `json:"depth"`
	Updates      flexNumber `json:"updates"`
}

// DecodeCEA decodes a fanstudio CEA EEW frame.
func DecodeCEA(data []byte, receivedAt time.Time) (Event, error) {
	var f ceaFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return Event{}, fmt.Errorf("cea: decode json: %w", err)
	}

	switch strings.ToLower(f.Type) {
	case "heartbeat", "pong", "ping":
		return Event{}, fmt.Errorf("%w: type %q", ErrNotEvent, f.Type)
	}
	if f.Data == nil {
		return Event{}, fmt.Errorf("%w: empty Data", ErrNotEvent)
	}
	d := f.Data

	if d.EpiIntensity == "" {
		return Event{}, errors.New("cea: missing epiIntensity")
	}
	v, err := parseMagnitude(string(d.EpiIntensity))
	if err != nil {
		return Event{}, fmt.Errorf("cea: %w", err)
	}

	id := string(d.EventID)
	if id == "" {
		id = string(d.ID)
	}
	serial, _ := strconv.Atoi(string(d.Updates))

	return Event{
		Source:     CEA,
		ReceivedAt: receivedAt,
		Severity:   MagnitudeSeverity(v),
		Key:        eventKey(CEA, id),
		Details: Details{
			EventID:   id,
			Region:    d.PlaceName,
			Magnitude: string(d.Magnitude),
			Depth:     string(d.Depth),
			Time:      d.ShockTime,
			Serial:    serial,
		},
		Raw: data,
	}, nil
}

// flexNumber accepts a JSON number, a string, or null and keeps the textual
// form. Both feeds are inconsistent about quoting numeric fields.
type flexNumber string

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*n = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = flexNumber(strings.TrimSpace(s))
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return fmt.Errorf("expected number or string, got %s", b)
	}
	*n = flexNumber(num.String())
	return nil
}
