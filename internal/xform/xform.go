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

// Package xform implements the baseline transform policy of §4.1: it
// rotates a visibility's (u,v,w) from the array's original phase centre
// frame into a facet-centred frame.
package xform

import (
	"github.com/jfunction/bullseye/internal/geometry"
	"gonum.org/v1/gonum/mat"
	"math"
)

// Transform rotates a uvw triple from the original phase centre frame
// into a facet frame. NewIdentity returns the identity transform (used
// for the reference facet, per §4.1's degenerate variant), which never
// walks the matrix-vector product path. The zero value is not an
// identity: its matrix is all zeros.
type Transform struct {
	identity bool
	m        [9]float64 // row-major 3x3, cached flat for the hot loop
}

// NewIdentity returns the no-op transform used for the reference facet.
// Per §4.1 and §9, the caller must branch on IsIdentity once per facet,
// never per visibility.
func NewIdentity() Transform {
	return Transform{identity: true}
}

// New builds the 3x3 rotation matrix
//
//	M = Z(newRotation) . T(newCentre) . T(oldCentre)^T . Z(oldRotation)^T
//
// for a facet frame, following bullseye's left-handed uvw convention (no
// pole-to-phase-centre conversion). Construction happens once per facet;
// Apply is a plain matrix-vector product.
func New(frame geometry.FacetFrame) Transform {
	dRA := frame.NewRA - frame.OldRA
	cDRA, sDRA := math.Cos(dRA), math.Sin(dRA)
	cNewDec, sNewDec := math.Cos(frame.NewDec), math.Sin(frame.NewDec)
	cOldDec, sOldDec := math.Cos(frame.OldDec), math.Sin(frame.OldDec)
	cOldRot, sOldRot := math.Cos(frame.OldRotation), math.Sin(frame.OldRotation)
	cNewRot, sNewRot := math.Cos(frame.NewRotation), math.Sin(frame.NewRotation)

	ttTranspose := mat.NewDense(3, 3, []float64{
		cDRA, sOldDec * sDRA, -cOldDec * sDRA,
		-sNewDec * sDRA, sNewDec*sOldDec*cDRA + cNewDec*cOldDec, -cOldDec*sNewDec*cDRA + cNewDec*sOldDec,
		cNewDec * sDRA, -cNewDec*sOldDec*cDRA + sNewDec*cOldDec, cNewDec*cOldDec*cDRA + sNewDec*sOldDec,
	})

	zRotTranspose := mat.NewDense(3, 3, []float64{
		cOldRot, sOldRot, 0,
		-sOldRot, cOldRot, 0,
		0, 0, 1,
	})

	zRot := mat.NewDense(3, 3, []float64{
		cNewRot, -sNewRot, 0,
		sNewRot, cNewRot, 0,
		0, 0, 1,
	})

	var inner, full mat.Dense
	inner.Mul(ttTranspose, zRotTranspose)
	full.Mul(zRot, &inner)

	t := Transform{}
	copy(t.m[:], full.RawMatrix().Data)
	return t
}

// IsIdentity reports whether Apply is a no-op, so callers can branch once
// per facet rather than calling through a no-op per visibility (§9).
func (t Transform) IsIdentity() bool {
	return t.identity
}

// Apply returns baseline rotated into the facet frame. Must not be
// called on an identity Transform in the hot loop — callers branch on
// IsIdentity beforehand.
func (t Transform) Apply(baseline geometry.UVW) geometry.UVW {
	if t.identity {
		return baseline
	}
	u, v, w := baseline.U, baseline.V, baseline.W
	return geometry.UVW{
		U: t.m[0]*u + t.m[1]*v + t.m[2]*w,
		V: t.m[3]*u + t.m[4]*v + t.m[5]*w,
		W: t.m[6]*u + t.m[7]*v + t.m[8]*w,
	}
}
