package fft

import (
	"math"
	"testing"

	"github.com/jfunction/bullseye/internal/gridcube"
)

func TestShiftQuadrantsIsSelfInverseOnEvenGrid(t *testing.T) {
	nx, ny := 8, 8
	plane := make([]complex128, nx*ny)
	for i := range plane {
		plane[i] = complex(float64(i), 0)
	}
	orig := append([]complex128{}, plane...)
	shiftQuadrants(plane, nx, ny)
	shiftQuadrants(plane, nx, ny)
	for i := range plane {
		if plane[i] != orig[i] {
			t.Fatalf("double shift should be identity at %d: got %v want %v", i, plane[i], orig[i])
		}
	}
}

func TestShiftQuadrantsMovesCornerToCentre(t *testing.T) {
	nx, ny := 8, 8
	plane := make([]complex128, nx*ny)
	plane[0] = 1 // DC at the corner
	shiftQuadrants(plane, nx, ny)
	centreIdx := (ny/2)*nx + nx/2
	if plane[centreIdx] != 1 {
		t.Errorf("expected corner sample to move to centre index %d, got plane=%v", centreIdx, plane)
	}
}

func TestDiracDeltaRoundTripProducesFlatSpectrum(t *testing.T) {
	nx, ny := 16, 16
	plane := make([]complex128, nx*ny)
	plane[0] = 1 + 0i // unshifted delta at the DC bin
	Plane(plane, nx, ny)

	// the inverse FFT of a unit delta is a constant-magnitude plane: every
	// sample should have the same amplitude, matching the FIR's flat u-v
	// response for a single-tap kernel (§8's round-trip property).
	want := math.Hypot(real(plane[0]), imag(plane[0]))
	for i, c := range plane {
		got := math.Hypot(real(c), imag(c))
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("plane[%d] magnitude = %g, want %g (flat spectrum)", i, got, want)
		}
	}
}

func TestCubeExtractsRealPartPerPlane(t *testing.T) {
	nx, ny := 8, 8
	cube := gridcube.New(1, 2, 1, ny, nx)
	defer cube.Release()
	cube.Plane(0, 0, 0)[0] = 3 + 4i
	cube.Plane(0, 1, 0)[0] = 5 + 6i

	planes := Cube(cube)
	if len(planes) != 2 {
		t.Fatalf("expected 2 real planes, got %d", len(planes))
	}
	for _, p := range planes {
		if len(p.Image()) != nx*ny {
			t.Errorf("expected image length %d, got %d", nx*ny, len(p.Image()))
		}
	}
}
