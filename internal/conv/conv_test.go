package conv

import (
	"math"
	"testing"
)

func TestFIRMassConservationAwayFromEdge(t *testing.T) {
	support, oversample := 3, 8
	kernel := BuildTopHatFIR(support, oversample)
	f, err := NewFIR(64, 64, support, oversample, kernel)
	if err != nil {
		t.Fatalf("NewFIR: %v", err)
	}
	total, ok := f.Deposit(0.3, -0.4, func(idx int, weight float64) {})
	if !ok {
		t.Fatal("expected non-edge sample to be gridded")
	}
	fullSupport := float64(2*support + 1)
	want := fullSupport * fullSupport // every tap weight is 1 for the top-hat kernel
	if math.Abs(total-want) > 1e-9 {
		t.Errorf("total mass = %g, want %g", total, want)
	}
}

func TestFIREdgeDrop(t *testing.T) {
	support, oversample := 3, 4
	kernel := BuildTopHatFIR(support, oversample)
	nx, ny := 16, 16
	f, err := NewFIR(nx, ny, support, oversample, kernel)
	if err != nil {
		t.Fatalf("NewFIR: %v", err)
	}
	// u = nx-2 relative to grid, i.e. near the right edge once centred.
	u := float64(nx-2) - float64(nx)/2
	_, ok := f.Deposit(u, 0, func(idx int, weight float64) {})
	if ok {
		t.Error("expected edge sample to be dropped")
	}
}

func TestFIRNoWriteOutsidePlane(t *testing.T) {
	support, oversample := 2, 4
	kernel := BuildTopHatFIR(support, oversample)
	nx, ny := 16, 16
	f, err := NewFIR(nx, ny, support, oversample, kernel)
	if err != nil {
		t.Fatalf("NewFIR: %v", err)
	}
	for _, u := range []float64{-7.9, -3, 0, 3, 7.9} {
		for _, v := range []float64{-7.9, -3, 0, 3, 7.9} {
			f.Deposit(u, v, func(idx int, weight float64) {
				if idx < 0 || idx >= nx*ny {
					t.Fatalf("write at idx %d out of plane bounds [0,%d) for u=%g v=%g", idx, nx*ny, u, v)
				}
			})
		}
	}
}

func TestNNDepositsUnitWeight(t *testing.T) {
	n, err := NewNN(32, 32, 2)
	if err != nil {
		t.Fatalf("NewNN: %v", err)
	}
	var hits int
	total, ok := n.Deposit(1.4, -2.6, func(idx int, weight float64) {
		hits++
		if weight != 1 {
			t.Errorf("NN weight = %g, want 1", weight)
		}
	})
	if !ok || hits != 1 || total != 1 {
		t.Errorf("NN should deposit exactly one unit-weight tap, got hits=%d total=%g ok=%v", hits, total, ok)
	}
}

func TestSincRemovableSingularityIsOne(t *testing.T) {
	if got := sinc(0); got != 1 {
		t.Errorf("sinc(0) = %g, want 1", got)
	}
}

func TestSincSymmetricAboutCentreTap(t *testing.T) {
	s, err := NewSinc(32, 32, 3)
	if err != nil {
		t.Fatalf("NewSinc: %v", err)
	}
	weights := map[int]float64{}
	order := []int{}
	s.Deposit(0, 0, func(idx int, weight float64) {
		weights[idx] = weight
		order = append(order, idx)
	})
	// the centre tap (zero fractional offset) must receive the peak weight of 1.
	var peak float64
	for _, w := range weights {
		if w > peak {
			peak = w
		}
	}
	if math.Abs(peak-1) > 1e-9 {
		t.Errorf("peak sinc tap weight = %g, want 1", peak)
	}
	// taps are visited row-major over a square, so reversing the visit
	// order reflects each tap through the centre tap.
	for i := range order {
		a, b := weights[order[i]], weights[order[len(order)-1-i]]
		if math.Abs(a-b) > 1e-12 {
			t.Errorf("tap %d weight %g differs from its mirror tap weight %g", i, a, b)
		}
	}
}
