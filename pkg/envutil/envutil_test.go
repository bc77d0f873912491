package envutil

import (
	"reflect"
	"testing"
	"time"
)

type testConfig struct {
	Name     string        `json:"name"`
	Enable   bool          `json:"enable"`
	Count    int           `json:"count"`
	Rate     float64       `json:"rate"`
	Timeout  time.Duration `json:"timeout"`
	Outputs  []string      `json:"outputs"`
	Dims     []int         `json:"dims"`
	Derived  string        `json:"derived" read-only:"true"`
	internal string
}

func TestParse(t *testing.T) {
	t.Setenv("TEST_NAME", "hello")
	t.Setenv("TEST_ENABLE", "true")
	t.Setenv("TEST_COUNT", "7")
	t.Setenv("TEST_RATE", "0.25")
	t.Setenv("TEST_TIMEOUT", "90s")
	t.Setenv("TEST_OUTPUTS", "stderr,run.log")
	t.Setenv("TEST_DIMS", "2051, 512, 128")

	cfg := &testConfig{internal: "keep"}
	if err := Parse("TEST_", cfg); err != nil {
		t.Fatal(err)
	}

	if cfg.Name != "hello" || !cfg.Enable || cfg.Count != 7 || cfg.Rate != 0.25 {
		t.Fatalf("unexpected %+v", cfg)
	}
	if cfg.Timeout != 90*time.Second {
		t.Fatalf("unexpected Timeout %v", cfg.Timeout)
	}
	if !reflect.DeepEqual(cfg.Outputs, []string{"stderr", "run.log"}) {
		t.Fatalf("unexpected Outputs %+v", cfg.Outputs)
	}
	if !reflect.DeepEqual(cfg.Dims, []int{2051, 512, 128}) {
		t.Fatalf("unexpected Dims %+v", cfg.Dims)
	}
	if cfg.internal != "keep" {
		t.Fatalf("unexpected internal %q", cfg.internal)
	}
}

func TestParseEmptyIgnored(t *testing.T) {
	cfg := &testConfig{Name: "unchanged", Count: 3}
	if err := Parse("TEST_", cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "unchanged" || cfg.Count != 3 {
		t.Fatalf("unexpected %+v", cfg)
	}
}

func TestParseReadOnly(t *testing.T) {
	t.Setenv("TEST_DERIVED", "nope")
	if err := Parse("TEST_", &testConfig{}); err == nil {
		t.Fatal("expected read-only error")
	}
}

func TestParseInvalidValue(t *testing.T) {
	t.Setenv("TEST_COUNT", "not-a-number")
	if err := Parse("TEST_", &testConfig{}); err == nil {
		t.Fatal("expected parse error")
	}
}
