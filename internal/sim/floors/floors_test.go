package floors

import (
	"math"
	"testing"
)

func TestEstimate_Bands(t *testing.T) {
	cases := []struct {
		feet float64
		want int
	}{
		{-5, 0},
		{0, 0},
		{math.NaN(), 0},
		{0.5, 1},
		{7.9, 1},
		{8, 1},
		{14, 1},
		{14.1, 2},
		{26, 2},
		{26.5, 3},
		{39.9, 3},
		{40, 3},
		{80, 6},    // 80 - 8 = 72 / 12.5 = 5.76
		{150, 11},  // 150 - 15 = 135 / 12.5 = 10.8
		{199, 14},  // 199 - 19.9 = 179.1 / 12.5 = 14.33
		{200, 14},  // (200 - 25) / 13.5 = 12.96 -> 13 + 1
		{500, 36},  // 475 / 13.5 = 35.19 -> 35 + 1
	}
	for _, c := range cases {
		if got := Estimate(c.feet); got != c.want {
			t.Fatalf("Estimate(%v)=%d want %d", c.feet, got, c.want)
		}
	}
}

func TestEstimate_BandMinimums(t *testing.T) {
	for h := 40.0; h < 200; h += 0.5 {
		if got := Estimate(h); got < 3 {
			t.Fatalf("mid-rise %v ft: got %d floors", h, got)
		}
	}
	for h := 200.0; h < 2000; h += 7.3 {
		if got := Estimate(h); got < 5 {
			t.Fatalf("high-rise %v ft: got %d floors", h, got)
		}
	}
}

func TestEstimate_Monotonic(t *testing.T) {
	prev := 0
	for h := 0.0; h <= 1500; h += 0.25 {
		got := Estimate(h)
		if got < prev {
			t.Fatalf("non-monotonic at %v ft: %d < %d", h, got, prev)
		}
		prev = got
	}
}
