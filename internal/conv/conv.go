// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package conv implements the three convolution policies of §4.3:
// pre-computed FIR, nearest-neighbour, and on-the-fly analytic sinc, all
// sharing the edge-drop policy of §3.
package conv

import (
	"fmt"
	"math"
)

// Policy deposits the taps of a single (u,v) sample into a grid plane.
// fn is called once per non-dropped tap with the flat index into one
// nx*ny plane and the tap's weight; Deposit returns the sum of deposited
// weights and whether the sample was gridded at all (false if the edge
// policy dropped it).
type Policy interface {
	Deposit(u, v float64, fn func(idx int, weight float64)) (totalWeight float64, ok bool)
}

// edgeDrop implements §3's shared edge policy: a sample is dropped if its
// rounded grid cell, extended by the full tap support (2*S+1, matching
// convolution_policies.h's disc_grid_v + _convolution_support >= _ny,
// where _convolution_support is likewise the full, not half, support),
// would touch or cross the grid boundary.
func edgeDrop(discU, discV, fullSupport, nx, ny int) bool {
	return discV+fullSupport >= ny || discU+fullSupport >= nx || discU >= nx || discV >= ny || discU < 0 || discV < 0
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	p := math.Pi * x
	return math.Sin(p) / p
}

// FIR is the default oversampled convolution using a precomputed kernel
// (§4.3, "Pre-computed FIR"). The kernel must have length
// (2*support+1+2)*oversample, per §3's data model.
type FIR struct {
	nx, ny     int
	support    int
	oversample int
	kernel     []float64
}

// NewFIR validates and constructs a precomputed-FIR convolution policy.
func NewFIR(nx, ny, support, oversample int, kernel []float64) (*FIR, error) {
	if support < 1 {
		return nil, fmt.Errorf("conv support must be >= 1, got %d", support)
	}
	if oversample < 1 {
		return nil, fmt.Errorf("conv oversample must be >= 1, got %d", oversample)
	}
	if nx < 2*support+4 || ny < 2*support+4 {
		return nil, fmt.Errorf("grid %dx%d too small for support %d (need >= %d on each axis)", nx, ny, support, 2*support+4)
	}
	wantLen := (2*support + 1 + 2) * oversample
	if len(kernel) != wantLen {
		return nil, fmt.Errorf("FIR kernel length %d, want (2*S+1+2)*O = %d", len(kernel), wantLen)
	}
	return &FIR{nx: nx, ny: ny, support: support, oversample: oversample, kernel: kernel}, nil
}

func (f *FIR) Deposit(u, v float64, fn func(idx int, weight float64)) (float64, bool) {
	fullSupport := 2*f.support + 1
	centreOffset := float64(fullSupport+2) / 2.0

	translatedU := u + float64(f.nx)/2 - centreOffset
	translatedV := v + float64(f.ny)/2 - centreOffset
	discU := int(math.RoundToEven(translatedU))
	discV := int(math.RoundToEven(translatedV))
	fracU := -translatedU + float64(discU)
	fracV := -translatedV + float64(discV)

	if edgeDrop(discU, discV, fullSupport, f.nx, f.ny) {
		return 0, false
	}

	O := f.oversample
	baseConvU := int(math.Floor((fracU + 1) * float64(O)))
	baseConvV := int(math.Floor((fracV + 1) * float64(O)))

	var total float64
	convV := baseConvV
	for supV := 1; supV <= fullSupport; supV++ {
		gridV := discV + supV
		weightV := f.kernel[convV]
		convU := baseConvU
		for supU := 1; supU <= fullSupport; supU++ {
			gridU := discU + supU
			weightU := f.kernel[convU]
			weight := weightU * weightV
			fn(gridV*f.nx+gridU, weight)
			total += weight
			convU += O
		}
		convV += O
	}
	return total, true
}

// NN is nearest-neighbour gridding (§4.3): deposits weight 1 at the
// rounded grid cell, with no sub-pixel refinement. Support is carried
// only for the shared edge policy, which NN applies with the half-support
// S as its margin, where FIR and Sinc use the full support 2*S+1.
type NN struct {
	nx, ny  int
	support int
}

// NewNN constructs a nearest-neighbour convolution policy.
func NewNN(nx, ny, support int) (*NN, error) {
	if nx < 2*support+4 || ny < 2*support+4 {
		return nil, fmt.Errorf("grid %dx%d too small for support %d (need >= %d on each axis)", nx, ny, support, 2*support+4)
	}
	return &NN{nx: nx, ny: ny, support: support}, nil
}

func (n *NN) Deposit(u, v float64, fn func(idx int, weight float64)) (float64, bool) {
	discU := int(math.RoundToEven(u + float64(n.nx)/2))
	discV := int(math.RoundToEven(v + float64(n.ny)/2))
	if edgeDrop(discU, discV, n.support, n.nx, n.ny) {
		return 0, false
	}
	fn(discV*n.nx+discU, 1)
	return 1, true
}

// Sinc is the on-the-fly analytic convolution policy (§4.3): computes the
// separable unnormalized-sinc weight per tap instead of consulting a
// precomputed kernel. Per §9's Open Question, the commented-out
// Kaiser/cosine/Gaussian alternatives in the source are not implemented.
type Sinc struct {
	nx, ny  int
	support int
}

// NewSinc constructs an on-the-fly sinc convolution policy.
func NewSinc(nx, ny, support int) (*Sinc, error) {
	if support < 1 {
		return nil, fmt.Errorf("conv support must be >= 1, got %d", support)
	}
	if nx < 2*support+4 || ny < 2*support+4 {
		return nil, fmt.Errorf("grid %dx%d too small for support %d (need >= %d on each axis)", nx, ny, support, 2*support+4)
	}
	return &Sinc{nx: nx, ny: ny, support: support}, nil
}

func (s *Sinc) Deposit(u, v float64, fn func(idx int, weight float64)) (float64, bool) {
	S := s.support
	translatedU := u + float64(s.nx)/2 - float64(S)
	translatedV := v + float64(s.ny)/2 - float64(S)
	discU := int(math.RoundToEven(translatedU))
	discV := int(math.RoundToEven(translatedV))
	fracU := -translatedU + float64(discU)
	fracV := -translatedV + float64(discV)

	fullSupport := 2*S + 1
	if edgeDrop(discU, discV, fullSupport, s.nx, s.ny) {
		return 0, false
	}

	var total float64
	for supV := 0; supV < fullSupport; supV++ {
		gridV := discV + supV
		weightV := sinc(float64(supV) - float64(S) + fracV)
		for supU := 0; supU < fullSupport; supU++ {
			gridU := discU + supU
			weightU := sinc(float64(supU) - float64(S) + fracU)
			weight := weightU * weightV
			fn(gridV*s.nx+gridU, weight)
			total += weight
		}
	}
	return total, true
}

// BuildSincFIR tabulates the same unnormalized sinc window the on-the-fly
// policy evaluates analytically, sampled at the given oversample
// resolution, in the (2*support+1+2)*oversample layout §3 specifies for a
// precomputed FIR. Useful for tests and as a default kernel; the FIR is
// normally supplied precomputed by the caller.
func BuildSincFIR(support, oversample int) []float64 {
	n := (2*support + 1 + 2) * oversample
	k := make([]float64, n)
	centre := float64(n-1) / 2
	for i := range k {
		x := (float64(i) - centre) / float64(oversample)
		k[i] = sinc(x)
	}
	return k
}

// BuildTopHatFIR tabulates a unit top-hat kernel (every tap weight 1),
// used by the mass-conservation testable property of §8.
func BuildTopHatFIR(support, oversample int) []float64 {
	n := (2*support + 1 + 2) * oversample
	k := make([]float64, n)
	for i := range k {
		k[i] = 1
	}
	return k
}
