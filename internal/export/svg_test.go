package export

import (
	"strings"
	"testing"
)

func TestWriteSVG(t *testing.T) {
	var b strings.Builder
	times := []float64{0, 1, 2}
	err := WriteSVG(&b, times, []Series{
		{Name: "ball.q0", Values: []float64{1, 0, 1}},
		{Name: "ball.v0", Values: []float64{0, -1, 1}},
	}, 200, 100)
	if err != nil {
		t.Fatal(err)
	}

	out := b.String()
	if !strings.HasPrefix(out, "<?xml") || !strings.HasSuffix(out, "</svg>\n") {
		t.Error("expected a complete svg document")
	}
	if n := strings.Count(out, "<path"); n != 2 {
		t.Errorf("expected 2 paths, got %d", n)
	}
	for _, want := range []string{">ball.q0</text>", "M0.0,", "stroke-dasharray"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestWriteSVG_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		times  []float64
		series []Series
	}{
		{"single sample", []float64{0}, []Series{{Values: []float64{1}}}},
		{"no series", []float64{0, 1}, nil},
		{"length mismatch", []float64{0, 1}, []Series{{Name: "x", Values: []float64{1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b strings.Builder
			if err := WriteSVG(&b, tt.times, tt.series, 10, 10); err == nil {
				t.Error("expected error")
			}
		})
	}
}
