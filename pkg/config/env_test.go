package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestGetEnvString(t *testing.T) {
	t.Setenv("TEST_STRING", "value")

	if got := GetEnvString("TEST_STRING", "default"); got != "value" {
		t.Errorf("GetEnvString() = %q, want %q", got, "value")
	}
	if got := GetEnvString("TEST_STRING_UNSET", "default"); got != "default" {
		t.Errorf("GetEnvString() = %q, want default", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int
	}{
		{name: "valid", value: "42", want: 42},
		{name: "negative", value: "-7", want: -7},
		{name: "invalid falls back", value: "not-a-number", want: 10},
		{name: "empty falls back", value: "", want: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("TEST_INT", tt.value)
			}
			if got := GetEnvInt("TEST_INT", 10); got != tt.want {
				t.Errorf("GetEnvInt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetEnvFloat(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  float64
	}{
		{name: "valid", value: "0.25", want: 0.25},
		{name: "integer form", value: "1", want: 1},
		{name: "invalid falls back", value: "half", want: 0.5},
		{name: "empty falls back", value: "", want: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("TEST_FLOAT", tt.value)
			}
			if got := GetEnvFloat("TEST_FLOAT", 0.5); got != tt.want {
				t.Errorf("GetEnvFloat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{value: "1", want: true},
		{value: "true", want: true},
		{value: "True", want: true},
		{value: "0", want: false},
		{value: "false", want: false},
		{value: "yes", want: true}, // invalid, falls back to default true
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.value)
			if got := GetEnvBool("TEST_BOOL", true); got != tt.want {
				t.Errorf("GetEnvBool(%q) = %t, want %t", tt.value, got, tt.want)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "seconds", value: "30s", want: 30 * time.Second},
		{name: "composite", value: "1h30m", want: 90 * time.Minute},
		{name: "invalid falls back", value: "thirty seconds", want: time.Minute},
		{name: "empty falls back", value: "", want: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("TEST_DURATION", tt.value)
			}
			if got := GetEnvDuration("TEST_DURATION", time.Minute); got != tt.want {
				t.Errorf("GetEnvDuration() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestGetEnvStringList(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{name: "simple list", value: "a,b,c", want: []string{"a", "b", "c"}},
		{name: "trims whitespace", value: " a , b ", want: []string{"a", "b"}},
		{name: "drops empty entries", value: "a,,b,", want: []string{"a", "b"}},
		{name: "only separators falls back", value: ",,", want: []string{"default"}},
		{name: "empty falls back", value: "", want: []string{"default"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("TEST_LIST", tt.value)
			}
			got := GetEnvStringList("TEST_LIST", []string{"default"})
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("GetEnvStringList() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidatePositiveDuration(t *testing.T) {
	if err := ValidatePositiveDuration(time.Second); err != nil {
		t.Errorf("ValidatePositiveDuration(1s) = %v, want nil", err)
	}
	if err := ValidatePositiveDuration(0); err == nil {
		t.Error("ValidatePositiveDuration(0) = nil, want error")
	}
	if err := ValidatePositiveDuration(-time.Second); err == nil {
		t.Error("ValidatePositiveDuration(-1s) = nil, want error")
	}
}
