package analysis

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestSpectrum_Sine(t *testing.T) {
	const dt = 0.01
	n := 1000
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 3 + 2*math.Sin(2*math.Pi*5*float64(i)*dt)
	}

	freqs, amps, err := Spectrum(samples, dt)
	if err != nil {
		t.Fatal(err)
	}
	if len(freqs) != n/2+1 {
		t.Fatalf("expected %d bins, got %d", n/2+1, len(freqs))
	}
	if math.Abs(freqs[1]-0.1) > 1e-12 {
		t.Errorf("expected resolution 0.1 Hz, got %f", freqs[1])
	}
	if math.Abs(amps[0]) > 1e-9 {
		t.Errorf("mean should be removed, got %f", amps[0])
	}
	if math.Abs(amps[50]-2) > 1e-6 {
		t.Errorf("expected amplitude 2 at 5 Hz, got %f", amps[50])
	}

	f, err := DominantFrequency(samples, dt)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(f-5) > 1e-9 {
		t.Errorf("expected 5 Hz, got %f", f)
	}
}

func TestSpectrum_Errors(t *testing.T) {
	if _, _, err := Spectrum([]float64{1}, 0.1); !errors.Is(err, ErrTooShort) {
		t.Errorf("expected ErrTooShort, got %v", err)
	}
	if _, _, err := Spectrum([]float64{1, 2}, 0); err == nil {
		t.Error("expected error for zero sample step")
	}
}

func TestImpacts(t *testing.T) {
	times := []float64{0, 1, 2, 3, 4, 5, 6, 7}
	gap := []float64{2, 1, 0, 0, 1, 0.5, 0, 1}

	got := Impacts(times, gap, 1e-9)
	if len(got) != 2 {
		t.Fatalf("expected 2 impacts, got %d", len(got))
	}
	if got[0].Index != 2 || got[0].Velocity != -1 {
		t.Errorf("unexpected first impact %+v", got[0])
	}
	if got[1].Time != 6 || got[1].Velocity != -0.5 {
		t.Errorf("unexpected second impact %+v", got[1])
	}

	if iv := Intervals(got); !reflect.DeepEqual(iv, []float64{4}) {
		t.Errorf("expected intervals [4], got %v", iv)
	}
	if m := ImpactMap(got); !reflect.DeepEqual(m, [][2]float64{{1, 0.5}}) {
		t.Errorf("expected map [[1 0.5]], got %v", m)
	}
}

func TestImpacts_StartsInContact(t *testing.T) {
	got := Impacts([]float64{0, 1, 2}, []float64{0, 0, 0}, 1e-9)
	if len(got) != 0 {
		t.Errorf("expected no impact, got %v", got)
	}
	if ImpactMap(got) != nil || Intervals(got) != nil {
		t.Error("expected nil map and intervals")
	}
}
