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

// Package phase implements the phase-shift policy of §4.2: it rotates a
// visibility's complex phase to re-reference it to a facet centre,
// component-wise across 1, 2 or 4 correlations.
package phase

import (
	"math"
	"math/cmplx"

	"github.com/jfunction/bullseye/internal/geometry"
)

// Shift is the phase-shift policy for one facet. NewDisabled returns the
// no-op variant, used for the reference facet per §4.2.
type Shift struct {
	disabled bool
	lmn      geometry.LMN
}

// NewDisabled returns the no-op phase shift for the reference facet.
func NewDisabled() Shift {
	return Shift{disabled: true}
}

// New builds the phase-shift policy for a facet offset by delta from the
// phase centre.
func New(delta geometry.LMN) Shift {
	return Shift{lmn: delta}
}

// IsDisabled reports whether Apply is a no-op, so the gridder can branch
// once per facet rather than once per visibility (§9).
func (s Shift) IsDisabled() bool {
	return s.disabled
}

// Factor returns exp(2πi·(u·Δl + v·Δm + w·Δn)), the complex exponential
// that §4.2 multiplies every correlation of a visibility by.
func (s Shift) Factor(uvw geometry.UVW) complex128 {
	if s.disabled {
		return complex(1, 0)
	}
	x := 2 * math.Pi * (uvw.U*s.lmn.L + uvw.V*s.lmn.M + uvw.W*s.lmn.N)
	return cmplx.Exp(complex(0, x))
}

// Apply multiplies every correlation in vis (length 1, 2 or 4) by the
// facet's phase factor, in place.
func (s Shift) Apply(vis []complex128, uvw geometry.UVW) {
	if s.disabled {
		return
	}
	factor := s.Factor(uvw)
	for i := range vis {
		vis[i] *= factor
	}
}
