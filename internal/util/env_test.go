package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		val  string
		def  bool
		want bool
	}{
		{"", true, true},
		{"yes", false, true},
		{"ON", false, true},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
	}
	for _, c := range cases {
		t.Setenv("VIBECHECK_TEST_BOOL", c.val)
		if got := ParseBoolEnv("VIBECHECK_TEST_BOOL", c.def); got != c.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", c.val, c.def, got, c.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("VIBECHECK_TEST_INT", " 12 ")
	if got := ParseIntEnv("VIBECHECK_TEST_INT", 3); got != 12 {
		t.Errorf("got %d, want 12", got)
	}
	t.Setenv("VIBECHECK_TEST_INT", "twelve")
	if got := ParseIntEnv("VIBECHECK_TEST_INT", 3); got != 3 {
		t.Errorf("invalid value: got %d, want default 3", got)
	}
}

func TestParseFloatEnv(t *testing.T) {
	t.Setenv("VIBECHECK_TEST_FLOAT", "0.25")
	if got := ParseFloatEnv("VIBECHECK_TEST_FLOAT", 1); got != 0.25 {
		t.Errorf("got %v, want 0.25", got)
	}
	t.Setenv("VIBECHECK_TEST_FLOAT", "x")
	if got := ParseFloatEnv("VIBECHECK_TEST_FLOAT", 1); got != 1 {
		t.Errorf("invalid value: got %v, want default 1", got)
	}
}

func TestParseDurationEnv(t *testing.T) {
	cases := map[string]time.Duration{
		"":      5 * time.Second,
		"45":    45 * time.Second,
		"2m":    2 * time.Minute,
		"1h30m": 90 * time.Minute,
		"soon":  5 * time.Second,
	}
	for val, want := range cases {
		t.Setenv("VIBECHECK_TEST_DURATION", val)
		if got := ParseDurationEnv("VIBECHECK_TEST_DURATION", 5*time.Second); got != want {
			t.Errorf("ParseDurationEnv(%q) = %v, want %v", val, got, want)
		}
	}
}
