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

// Package corr implements the correlation/polarization policies of §4.4:
// reading a row's visibility, weight and flag out of the strided
// visibility record, weighting it, and routing it to the grid plane(s)
// it contributes to. It also implements the sampling-function (PSF)
// variant, and a Stokes I/Q/U/V conversion for full-quad records.
package corr

// RowReader is a read-only view into the caller-owned, strided
// visibilities/weights/flags arrays for one (spw, channel) plan. Per §4.4
// the stride between consecutive channels of the same row is the total
// correlation count; between rows it is chanCount*nPolTotal.
type RowReader struct {
	Vis       []complex128 // flat array, offset (row*ChanCount+chan)*NPolTotal+pol
	Weight    []float64
	Flag      []bool
	ChanCount int
	NPolTotal int // number of correlations physically stored per (row, chan)
}

func (r RowReader) offset(row, chanIdx, pol int) int {
	return (row*r.ChanCount+chanIdx)*r.NPolTotal + pol
}

// correlation reads one stored correlation term and its effective weight
// (zero if the term itself, or the row, is flagged).
func (r RowReader) correlation(row, chanIdx, pol int, rowFlagged bool) (vis complex128, weight float64) {
	off := r.offset(row, chanIdx, pol)
	vis = r.Vis[off]
	weight = r.Weight[off]
	if rowFlagged || r.Flag[off] {
		weight = 0
	}
	return vis, weight
}

// Contribution is one grid plane's weighted visibility value for a
// single (row, channel) tap, ready to be multiplied by a convolution
// weight and accumulated (§4.4: grid[idx] += vis * (weight * conv_weight)).
type Contribution struct {
	Vis    complex128
	Weight float64
}

// Basis distinguishes the feed basis of a full-quad record, which
// changes the sign convention used to form Stokes parameters.
type Basis int

const (
	BasisLinear   Basis = iota // XX, XY, YX, YY
	BasisCircular              // RR, RL, LR, LL
)

// Policy is a correlation/polarization policy: it knows how many
// correlations it physically reads per (row, channel), how many grid
// planes it produces, and how to turn one tap's stored data into
// per-plane contributions.
type Policy interface {
	// NumPlanes is number_of_polarization_terms_being_gridded: how many
	// grid planes this policy writes per facet/grid-channel.
	NumPlanes() int
	// Read returns one Contribution per plane for the given row/channel.
	Read(rows RowReader, row, chanIdx int, rowFlagged bool) []Contribution
}

// Single grids one correlation into one plane.
type Single struct{}

func (Single) NumPlanes() int { return 1 }

func (Single) Read(rows RowReader, row, chanIdx int, rowFlagged bool) []Contribution {
	vis, w := rows.correlation(row, chanIdx, 0, rowFlagged)
	return []Contribution{{Vis: vis, Weight: w}}
}

// Dual grids two parallel-hand correlations (e.g. XX, YY) into two planes.
type Dual struct{}

func (Dual) NumPlanes() int { return 2 }

func (Dual) Read(rows RowReader, row, chanIdx int, rowFlagged bool) []Contribution {
	out := make([]Contribution, 2)
	for pol := 0; pol < 2; pol++ {
		vis, w := rows.correlation(row, chanIdx, pol, rowFlagged)
		out[pol] = Contribution{Vis: vis, Weight: w}
	}
	return out
}

// Quad grids all four correlations (XX, XY, YX, YY or RR, RL, LR, LL) into
// four planes, verbatim, without Stokes conversion.
type Quad struct{}

func (Quad) NumPlanes() int { return 4 }

func (Quad) Read(rows RowReader, row, chanIdx int, rowFlagged bool) []Contribution {
	out := make([]Contribution, 4)
	for pol := 0; pol < 4; pol++ {
		vis, w := rows.correlation(row, chanIdx, pol, rowFlagged)
		out[pol] = Contribution{Vis: vis, Weight: w}
	}
	return out
}

// QuadStokes reads all four correlations and converts a selected subset
// of Stokes parameters from them. The conversion:
//
//	linear (XX,XY,YX,YY):    I=(XX+YY)/2  Q=(XX-YY)/2  U=(XY+YX)/2  V=(XY-YX)/2i
//	circular (RR,RL,LR,LL):  I=(RR+LL)/2  V=(RR-LL)/2  Q=(RL+LR)/2  U=(RL-LR)/2i
//
// Each Stokes term's effective weight is zero unless all four underlying
// correlations are unflagged, matching the all-correlations-required
// nature of a linear combination.
type QuadStokes struct {
	Basis Basis
	Terms []StokesTerm // which Stokes parameters to emit, in plane order
}

// StokesTerm identifies one of the four Stokes parameters.
type StokesTerm int

const (
	StokesI StokesTerm = iota
	StokesQ
	StokesU
	StokesV
)

func (s QuadStokes) NumPlanes() int { return len(s.Terms) }

func (s QuadStokes) Read(rows RowReader, row, chanIdx int, rowFlagged bool) []Contribution {
	var c [4]complex128
	var w [4]float64
	for pol := 0; pol < 4; pol++ {
		c[pol], w[pol] = rows.correlation(row, chanIdx, pol, rowFlagged)
	}
	minWeight := w[0]
	for _, wi := range w[1:] {
		if wi < minWeight {
			minWeight = wi
		}
	}

	// a, b, cc, d name the four stored correlations in basis order.
	a, b, cc, d := c[0], c[1], c[2], c[3]

	out := make([]Contribution, len(s.Terms))
	for i, term := range s.Terms {
		var vis complex128
		switch {
		case term == StokesI:
			vis = (a + d) / 2
		case s.Basis == BasisLinear && term == StokesQ:
			vis = (a - d) / 2
		case s.Basis == BasisLinear && term == StokesU:
			vis = (b + cc) / 2
		case s.Basis == BasisLinear && term == StokesV:
			vis = (b - cc) / complex(0, 2)
		case s.Basis == BasisCircular && term == StokesV:
			vis = (a - d) / 2
		case s.Basis == BasisCircular && term == StokesQ:
			vis = (b + cc) / 2
		case s.Basis == BasisCircular && term == StokesU:
			vis = (b - cc) / complex(0, 2)
		}
		out[i] = Contribution{Vis: vis, Weight: minWeight}
	}
	return out
}

// PSF is the sampling-function pipeline's variant (§4.4): the gridded
// value is always 1+0i, and the weight is the visibility weight only
// (taken from the first stored correlation), so the resulting grid
// integral counts accepted contributions rather than amplitude.
type PSF struct{}

func (PSF) NumPlanes() int { return 1 }

func (PSF) Read(rows RowReader, row, chanIdx int, rowFlagged bool) []Contribution {
	_, w := rows.correlation(row, chanIdx, 0, rowFlagged)
	return []Contribution{{Vis: complex(1, 0), Weight: w}}
}
