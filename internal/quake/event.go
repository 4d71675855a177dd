package quake

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies the upstream warning system an Event came from.
type Source string

const (
	JMA Source = "JMA" // Japan Meteorological Agency
	CEA Source = "CEA" // China Earthquake Administration early-warning network
)

// Sources lists every supported source in a stable order.
var Sources = []Source{JMA, CEA}

// ParseSource accepts a source name in any case.
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToUpper(strings.TrimSpace(s))) {
	case JMA:
		return JMA, nil
	case CEA:
		return CEA, nil
	}
	return "", fmt.Errorf("unknown source %q: want JMA|CEA", s)
}

// Kind returns the severity scale events from s are expressed on.
func (s Source) Kind() Kind {
	switch s {
	case JMA:
		return KindIntensity
	case CEA:
		return KindMagnitude
	default:
		return 0
	}
}

// DisplayName is the human-readable name used in notifications.
func (s Source) DisplayName() string {
	switch s {
	case JMA:
		return "Japan Meteorological Agency (JMA)"
	case CEA:
		return "China Earthquake Early Warning Network (CEA)"
	default:
		return string(s)
	}
}

// Event is one validated early-warning message.
type Event struct {
	Source Source

	// ReceivedAt is the local arrival time of the frame. Cooldown and health
	// use it; it is not the origin time of the earthquake.
	ReceivedAt time.Time

	Severity Severity

	// Key identifies the earthquake across repeated transmissions. When the
	// feed supplies no id it is the source name itself.
	Key string

	Details Details

	// Raw is the frame exactly as received.
	Raw []byte
}

// Details holds the optional descriptive fields used in the notification body.
// Values are kept as the feed formatted them.
type Details struct {
	EventID   string
	Region    string
	Magnitude string
	Depth     string
	Time      string
	Serial    int
	Final     bool
}

// HasIdentity reports whether Key came from a feed-provided event id rather
// than falling back to the source name.
func (e Event) HasIdentity() bool {
	return e.Key != "" && e.Key != string(e.Source)
}

func eventKey(src Source, id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return string(src) + ":" + id
	}
	return string(src)
}
