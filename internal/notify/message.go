package notify

import (
	"fmt"
	"strings"

	"github.com/quakewatch/quakewatch/internal/quake"
)

// Format renders the notification title and body for ev.
func Format(ev quake.Event) (title, body string) {
	title = fmt.Sprintf("%s EEW: %s", ev.Source, ev.Severity.Label())

	var b strings.Builder
	fmt.Fprintf(&b, "Source: %s\n", ev.Source.DisplayName())

	d := ev.Details
	if d.Region != "" {
		fmt.Fprintf(&b, "Region: %s\n", d.Region)
	}
	switch ev.Source {
	case quake.JMA:
		fmt.Fprintf(&b, "Max intensity: %s\n", ev.Severity.Label())
	default:
		fmt.Fprintf(&b, "Estimated intensity: %s\n", ev.Severity.Label())
	}
	if d.Magnitude != "" || d.Depth != "" {
		fmt.Fprintf(&b, "Magnitude: M%s   Depth: %s km\n", orDash(d.Magnitude), orDash(d.Depth))
	}
	if d.Time != "" {
		fmt.Fprintf(&b, "Time: %s\n", d.Time)
	}
	if d.EventID != "" {
		fmt.Fprintf(&b, "Event ID: %s", d.EventID)
		if d.Serial > 0 {
			fmt.Fprintf(&b, " (report #%d", d.Serial)
			if d.Final {
				b.WriteString(", final")
			}
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	return title, strings.TrimRight(b.String(), "\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
