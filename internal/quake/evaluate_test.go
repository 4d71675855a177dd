package quake

import "testing"

func jmaEvent(t *testing.T, label string) Event {
	t.Helper()
	level, err := ParseIntensity(label)
	if err != nil {
		t.Fatalf("ParseIntensity(%q): %v", label, err)
	}
	return Event{Source: JMA, Severity: IntensitySeverity(level), Key: "JMA"}
}

func ceaEvent(v float64) Event {
	return Event{Source: CEA, Severity: MagnitudeSeverity(v), Key: "CEA"}
}

func TestQualifies_JMABoundary(t *testing.T) {
	th, _ := ParseThreshold(JMA, "5弱")

	if Qualifies(jmaEvent(t, "4"), th) {
		t.Error("4 should not meet 5弱")
	}
	if !Qualifies(jmaEvent(t, "5弱"), th) {
		t.Error("5弱 should meet 5弱")
	}
	if !Qualifies(jmaEvent(t, "5強"), th) {
		t.Error("5強 should meet 5弱")
	}
	if !Qualifies(jmaEvent(t, "7"), th) {
		t.Error("7 should meet 5弱")
	}
}

func TestQualifies_CEABoundary(t *testing.T) {
	th, _ := ParseThreshold(CEA, "7.0")

	if Qualifies(ceaEvent(6.9), th) {
		t.Error("6.9 should not meet 7.0")
	}
	if !Qualifies(ceaEvent(7.0), th) {
		t.Error("7.0 should meet 7.0")
	}
	if !Qualifies(ceaEvent(8.2), th) {
		t.Error("8.2 should meet 7.0")
	}
}

func TestQualifies_KindMismatch(t *testing.T) {
	jmaTh, _ := ParseThreshold(JMA, "1")
	if Qualifies(ceaEvent(9.9), jmaTh) {
		t.Error("magnitude event must not qualify against an intensity threshold")
	}
	if Qualifies(Event{}, jmaTh) {
		t.Error("zero event must not qualify")
	}
}
