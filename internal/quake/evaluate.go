package quake

// Qualifies reports whether ev meets threshold on its source's scale.
// JMA compares ordinals, CEA compares values; in both cases equality
// qualifies. Severities of different kinds never qualify.
func Qualifies(ev Event, threshold Severity) bool {
	if ev.Severity.kind != threshold.kind {
		return false
	}
	switch threshold.kind {
	case KindIntensity:
		return ev.Severity.intensity >= threshold.intensity
	case KindMagnitude:
		return ev.Severity.magnitude >= threshold.magnitude
	default:
		return false
	}
}
