package proxy

import (
	"errors"
	"testing"
)

func validConfig() Config {
	return Config{
		SourceBusName:    "org.freedesktop.NetworkManager",
		SourceObjectPath: "/org/freedesktop/NetworkManager",
		TargetBusName:    "org.example.Proxy",
		SourceBusType:    BusTypeSystem,
		TargetBusType:    BusTypeSession,
	}
}

func TestConfigValidateAccepts(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config to pass, got %v", err)
	}
}

func TestConfigValidateRejectsEmptySourceBusName(t *testing.T) {
	c := validConfig()
	c.SourceBusName = ""
	if err := c.Validate(); !errors.Is(err, ErrEmptySourceBusName) {
		t.Fatalf("expected ErrEmptySourceBusName, got %v", err)
	}
}

func TestConfigValidateRejectsEmptySourceObjectPath(t *testing.T) {
	c := validConfig()
	c.SourceObjectPath = ""
	if err := c.Validate(); !errors.Is(err, ErrEmptySourceObjectPath) {
		t.Fatalf("expected ErrEmptySourceObjectPath, got %v", err)
	}
}

func TestConfigValidateRejectsMalformedObjectPath(t *testing.T) {
	c := validConfig()
	c.SourceObjectPath = "not-a-path"
	if err := c.Validate(); !errors.Is(err, ErrInvalidObjectPath) {
		t.Fatalf("expected ErrInvalidObjectPath, got %v", err)
	}
}

func TestConfigValidateRejectsEmptyTargetBusName(t *testing.T) {
	c := validConfig()
	c.TargetBusName = ""
	if err := c.Validate(); !errors.Is(err, ErrEmptyTargetBusName) {
		t.Fatalf("expected ErrEmptyTargetBusName, got %v", err)
	}
}

func TestParseBusType(t *testing.T) {
	cases := []struct {
		in   string
		want BusType
	}{
		{"session", BusTypeSession},
		{"system", BusTypeSystem},
		{"", BusTypeSystem},
		{"garbage", BusTypeSystem},
	}
	for _, c := range cases {
		if got := ParseBusType(c.in); got != c.want {
			t.Errorf("ParseBusType(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
