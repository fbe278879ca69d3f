package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestZerologAdapter_Fields(t *testing.T) {
	var buf bytes.Buffer
	z := NewZerologAdapterWithLogger(zerolog.New(&buf))

	z.Info("claimed batch", Int("cases", 3), String("worker", "w-1"), Err(errors.New("boom")))

	out := buf.String()
	for _, want := range []string{`"message":"claimed batch"`, `"cases":3`, `"worker":"w-1"`, `"error":"boom"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %s", out, want)
		}
	}
}

func TestZerologAdapter_With(t *testing.T) {
	var buf bytes.Buffer
	z := NewZerologAdapterWithLogger(zerolog.New(&buf))

	child := z.With(Int("slot", 2))
	child.Warn("worker crashed")

	if !strings.Contains(buf.String(), `"slot":2`) {
		t.Errorf("child logger output %q missing slot field", buf.String())
	}
}

func TestZerologAdapter_Level(t *testing.T) {
	var buf bytes.Buffer
	z := NewZerologAdapter(&buf, false)
	z.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug message written without verbose: %q", buf.String())
	}

	z = NewZerologAdapter(&buf, true)
	z.Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("debug message missing with verbose: %q", buf.String())
	}
}
