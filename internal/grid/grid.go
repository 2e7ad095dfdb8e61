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

// Package grid implements the gridder core of §4.5: the facet x baseline
// x row x channel hot loop, dispatching once per run (never per row, per
// §9) to the active baseline-transform, phase-shift, correlation and
// convolution policies, and coalescing same-(u,v,spw) rows through the
// Romein-style accumulate/flush state machine.
package grid

import (
	"context"
	"math"

	"github.com/jfunction/bullseye/internal/conv"
	"github.com/jfunction/bullseye/internal/corr"
	"github.com/jfunction/bullseye/internal/geometry"
	"github.com/jfunction/bullseye/internal/gridcube"
	"github.com/jfunction/bullseye/internal/phase"
	"github.com/jfunction/bullseye/internal/xform"
)

// arcsecToRad converts the cell size scalars of §6 (specified in
// arcseconds) to radians for the similarity-theorem scaling of §4.5.
const arcsecToRad = math.Pi / (180 * 3600)

// FacetPlan bundles the baseline transform and phase shift built once per
// facet, per §4.5 step 1.
type FacetPlan struct {
	Transform xform.Transform
	Shift     phase.Shift
}

// Inputs is the read-only visibility-table view the hot loop consumes,
// mirroring the borrowed arrays of §6's parameter record.
type Inputs struct {
	UVW                     []geometry.UVW // per row, in metres
	FlaggedRows             []bool         // per row
	FieldArray              []int          // per row
	SpwIndexArray           []int          // per row
	ReferenceWavelengths    []float64      // indexed spw*ChanCount+chan
	EnabledChannels         []bool         // indexed spw*ChanCount+chan
	ChannelGridIndices      []int          // indexed spw*ChanCount+chan; selects the destination plane
	BaselineStartingIndexes []int          // len(baselines)+1, sentinel required
	ChanCount               int
	ImagingField            int
	CellSizeX, CellSizeY    float64 // arcsec
	Rows                    corr.RowReader
}

// Stats is the side statistics record of §3: domain-level outcomes are
// counted here instead of raised as errors, per §7.
type Stats struct {
	Considered      int64
	DroppedByEdge   int64
	SkippedFlagged  int64
	SkippedDisabled int64
	SkippedField    int64
	Accumulated     int64
}

// Merge folds another Stats into the receiver, used to combine one
// worker's per-facet counters into the run-wide total.
func (s *Stats) Merge(o Stats) {
	s.Considered += o.Considered
	s.DroppedByEdge += o.DroppedByEdge
	s.SkippedFlagged += o.SkippedFlagged
	s.SkippedDisabled += o.SkippedDisabled
	s.SkippedField += o.SkippedField
	s.Accumulated += o.Accumulated
}

// groupKey identifies a coalesced run of rows sharing a discretized
// (u,v,spw), per §4.5's ACCUM state.
type groupKey struct {
	discU, discV, spw int
}

// accumState is the per-channel coalescing accumulator: one complex sum
// per retained polarization plane, plus the representative continuous
// (u,v) and destination grid-channel of the group currently open.
type accumState struct {
	active      bool
	key         groupKey
	u, v        float64
	gridChanIdx int
	rows        int64
	sums        []complex128
}

func newAccumState(nPlanes int) accumState {
	return accumState{sums: make([]complex128, nPlanes)}
}

func (a *accumState) clear() {
	a.active = false
	a.rows = 0
	for i := range a.sums {
		a.sums[i] = 0
	}
}

// Facet grids every accepted (baseline, row, channel) contribution for
// one facet into cube's slab at facetIdx, following §4.5's main loop and
// its Romein-style coalescing state machine. ctx is checked between
// baselines for cooperative cancellation per §5; on cancellation the
// facet's slab is left partially gridded and the caller must discard it
// (§5: "no partial grid is emitted on cancellation").
func Facet(ctx context.Context, cube *gridcube.Cube, facetIdx int, plan FacetPlan, convPolicy conv.Policy, polPolicy corr.Policy, in Inputs, stats *Stats) error {
	nPlanes := polPolicy.NumPlanes()
	nBaselines := len(in.BaselineStartingIndexes) - 1
	state := newAccumState(nPlanes)

	flush := func() {
		if !state.active {
			return
		}
		_, ok := convPolicy.Deposit(state.u, state.v, func(idx int, weight float64) {
			w := complex(weight, 0)
			for p := 0; p < nPlanes; p++ {
				cube.Plane(facetIdx, state.gridChanIdx, p)[idx] += state.sums[p] * w
			}
		})
		if ok {
			stats.Accumulated += state.rows
		} else {
			stats.DroppedByEdge += state.rows
		}
		state.clear()
	}

	for b := 0; b < nBaselines; b++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		startRow := in.BaselineStartingIndexes[b]
		endRow := in.BaselineStartingIndexes[b+1]

		for c := 0; c < in.ChanCount; c++ {
			state.clear()

			for row := startRow; row < endRow; row++ {
				stats.Considered++

				if in.FlaggedRows[row] {
					stats.SkippedFlagged++
					continue
				}
				if in.FieldArray[row] != in.ImagingField {
					stats.SkippedField++
					continue
				}

				spw := in.SpwIndexArray[row]
				flatIdx := spw*in.ChanCount + c
				if !in.EnabledChannels[flatIdx] {
					stats.SkippedDisabled++
					continue
				}

				wavelength := in.ReferenceWavelengths[flatIdx]
				gridChanIdx := in.ChannelGridIndices[flatIdx]

				uScale := float64(cube.NX) * in.CellSizeX * arcsecToRad / wavelength
				vScale := -float64(cube.NY) * in.CellSizeY * arcsecToRad / wavelength
				scaled := geometry.UVW{U: in.UVW[row].U * uScale, V: in.UVW[row].V * vScale, W: in.UVW[row].W}
				if !plan.Transform.IsIdentity() {
					scaled = plan.Transform.Apply(scaled)
				}

				contributions := polPolicy.Read(in.Rows, row, c, false)
				vis := make([]complex128, len(contributions))
				for i, ctb := range contributions {
					vis[i] = ctb.Vis
				}
				if !plan.Shift.IsDisabled() {
					plan.Shift.Apply(vis, scaled)
				}

				discU := int(math.RoundToEven(scaled.U))
				discV := int(math.RoundToEven(scaled.V))
				key := groupKey{discU: discU, discV: discV, spw: spw}

				if state.active && key != state.key {
					flush()
				}
				if !state.active {
					state.active = true
					state.key = key
					state.u = scaled.U
					state.v = scaled.V
					state.gridChanIdx = gridChanIdx
				}
				for i, ctb := range contributions {
					state.sums[i] += vis[i] * complex(ctb.Weight, 0)
				}
				state.rows++
			}

			flush()
		}
	}
	return nil
}
