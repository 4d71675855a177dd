package quake

import "testing"

func TestParseIntensity_CanonicalAndAliases(t *testing.T) {
	cases := map[string]Intensity{
		"0":       Intensity0,
		"4":       Intensity4,
		"5弱":      Intensity5Lower,
		"5強":      Intensity5Upper,
		"5强":      Intensity5Upper,
		"5-":      Intensity5Lower,
		"6+":      Intensity6Upper,
		"6 Lower": Intensity6Lower,
		" 7 ":     Intensity7,
	}
	for in, want := range cases {
		got, err := ParseIntensity(in)
		if err != nil {
			t.Errorf("ParseIntensity(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseIntensity(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseIntensity_Unknown(t *testing.T) {
	for _, in := range []string{"", "8", "5", "strong", "-1"} {
		if _, err := ParseIntensity(in); err == nil {
			t.Errorf("ParseIntensity(%q): expected error", in)
		}
	}
}

func TestIntensity_OrderMatchesScale(t *testing.T) {
	for i := 1; i < len(intensityLabels); i++ {
		lo, _ := ParseIntensity(intensityLabels[i-1])
		hi, _ := ParseIntensity(intensityLabels[i])
		if !(lo < hi) {
			t.Errorf("%s should rank below %s", lo, hi)
		}
	}
}

func TestParseThreshold(t *testing.T) {
	th, err := ParseThreshold(JMA, "5-")
	if err != nil {
		t.Fatalf("JMA threshold: %v", err)
	}
	if th.Label() != "5弱" {
		t.Errorf("label: got %q, want 5弱", th.Label())
	}

	th, err = ParseThreshold(CEA, "7.0")
	if err != nil {
		t.Fatalf("CEA threshold: %v", err)
	}
	if v, ok := th.Magnitude(); !ok || v != 7.0 {
		t.Errorf("magnitude: got %v/%v, want 7.0", v, ok)
	}

	if _, err := ParseThreshold(CEA, "0"); err == nil {
		t.Error("CEA threshold 0: expected error")
	}
	if _, err := ParseThreshold(CEA, "NaN"); err == nil {
		t.Error("CEA threshold NaN: expected error")
	}
	if _, err := ParseThreshold(JMA, "9"); err == nil {
		t.Error("JMA threshold 9: expected error")
	}
}
