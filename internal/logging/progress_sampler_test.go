package logging_test

import (
	"testing"

	"scriptreel/internal/logging"
)

func TestProgressSamplerBuckets(t *testing.T) {
	s := logging.NewProgressSampler(25)
	steps := []struct {
		percent float64
		phase   string
		want    bool
	}{
		{0, "compose", true},
		{10, "compose", false},
		{25, "compose", true},
		{24, "compose", false},
		{60, "compose", true},
		{140, "compose", true},
		{100, "compose", false},
		{0, "encode", true},
		{-1, "encode", false},
	}
	for i, step := range steps {
		if got := s.ShouldLog(step.percent, step.phase); got != step.want {
			t.Fatalf("step %d (%v, %q): got %v want %v", i, step.percent, step.phase, got, step.want)
		}
	}
}

func TestProgressSamplerResetAndNil(t *testing.T) {
	s := logging.NewProgressSampler(0)
	if !s.ShouldLog(5, "render") || s.ShouldLog(6, "render") {
		t.Fatal("expected default bucket of 10 percent")
	}
	s.Reset()
	if !s.ShouldLog(6, "render") {
		t.Fatal("expected emit after reset")
	}

	var nilSampler *logging.ProgressSampler
	if !nilSampler.ShouldLog(50, "x") {
		t.Fatal("nil sampler should always log")
	}
	nilSampler.Reset()
}
