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

// Package geometry holds the coordinate value types shared by the
// baseline transform and phase-shift policies: projected baseline
// vectors, direction cosines, and facet sky positions.
package geometry

import "math"

// UVW is a projected baseline vector, in metres on input and in grid
// cells once scaled by the similarity theorem.
type UVW struct {
	U, V, W float64
}

// Scale returns u*su, v*sv, w left untouched, matching the gridder's
// per-visibility similarity-theorem scaling (§4.5).
func (c UVW) Scale(su, sv float64) UVW {
	return UVW{U: c.U * su, V: c.V * sv, W: c.W}
}

// RADec is a sky position in radians.
type RADec struct {
	RA, Dec float64
}

// LMN holds the direction-cosine offset of a facet from the phase
// centre, used by the phase-shift policy.
type LMN struct {
	L, M, N float64
}

// DeltaLMN computes (Δl, Δm, Δn) for a facet offset (newCentre) from a
// phase centre (oldCentre), per §4.2:
//
//	Δl = -cos(Δdec)*sin(Δra)
//	Δm = -sin(Δdec)
//	Δn =  1 - cos(Δdec)*cos(Δra)
func DeltaLMN(oldCentre, newCentre RADec) LMN {
	dRA := newCentre.RA - oldCentre.RA
	dDec := newCentre.Dec - oldCentre.Dec
	cDRA, sDRA := math.Cos(dRA), math.Sin(dRA)
	cDDec, sDDec := math.Cos(dDec), math.Sin(dDec)
	return LMN{
		L: -cDDec * sDRA,
		M: -sDDec,
		N: 1 - cDDec*cDRA,
	}
}

// FacetFrame is the input to the baseline transform policy: the facet's
// own RA/Dec and parallactic rotation, and the reference (old) RA/Dec and
// rotation it is being rotated away from.
type FacetFrame struct {
	OldRA, OldDec         float64
	NewRA, NewDec         float64
	OldRotation           float64
	NewRotation           float64
}

// FacetDescriptor is one entry of the facet table (§3): an immutable
// sky position, plus the flag marking the reference facet, for which the
// baseline transform and phase shift must both degenerate to no-ops.
type FacetDescriptor struct {
	Centre      RADec
	IsReference bool
}
