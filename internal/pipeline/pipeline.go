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

// Package pipeline wires the policies of internal/geometry, xform,
// phase, corr, conv, gridcube, grid and fft into the external contract
// of §6: a Params parameter record, a Context carrying logging and
// concurrency configuration, and Run, which builds per-facet transforms,
// grids the image and sampling-function cubes facet-parallel, and
// applies the IFFT + repack stage.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/jfunction/bullseye/internal/conv"
	"github.com/jfunction/bullseye/internal/corr"
	"github.com/jfunction/bullseye/internal/fft"
	"github.com/jfunction/bullseye/internal/geometry"
	"github.com/jfunction/bullseye/internal/grid"
	"github.com/jfunction/bullseye/internal/gridcube"
	"github.com/jfunction/bullseye/internal/phase"
	"github.com/jfunction/bullseye/internal/xform"
)

// ConfigurationError reports an invalid Params value, surfaced at
// pipeline construction per §7 (invalid S/O/nx/ny, mismatched array
// lengths, a non-monotonic baseline prefix sum, or an empty facet
// table).
type ConfigurationError struct{ Msg string }

func (e *ConfigurationError) Error() string { return "bullseye: configuration error: " + e.Msg }

// ResourceError reports a failure to construct a backing resource for
// the run — per §7, "FFT plan construction failure". The gonum
// dsp/fourier transforms this pipeline uses have no fallible
// construction step (see DESIGN.md), so Run never returns one today;
// the type is kept so callers can errors.As against the full §7
// taxonomy.
type ResourceError struct{ Msg string }

func (e *ResourceError) Error() string { return "bullseye: resource error: " + e.Msg }

// DomainError documents the silent, counted-not-raised class of §7
// (a visibility dropped by the edge policy, a flagged or disabled
// channel). Run never returns one — domain outcomes are reported via
// Result.Stats — but the type documents the taxonomy entry.
type DomainError struct{ Msg string }

func (e *DomainError) Error() string { return "bullseye: domain error: " + e.Msg }

// PolicyMisuseError reports an attempt to use an undefined policy
// specialization — the Go analogue of §7's "instantiating the
// default/undefined policy template is a programmer error" guard.
type PolicyMisuseError struct{ Msg string }

func (e *PolicyMisuseError) Error() string { return "bullseye: policy misuse: " + e.Msg }

// ConvMode selects which of the three convolution policies of §4.3 a
// run uses, chosen once per run per §9 (never dispatched per row).
type ConvMode int

const (
	ConvFIR ConvMode = iota
	ConvNN
	ConvSinc
)

// Context carries the ambient engineering surface around a run: an
// injected log writer (never global state, per §9's design note) and
// the facet-level concurrency bound of §5.
type Context struct {
	Log        io.Writer
	MaxThreads int
}

// NewContext returns a Context defaulting MaxThreads to
// runtime.GOMAXPROCS(0), mirroring ops.Context's construction in the
// teacher (internal/ops/operator.go: NewContext).
func NewContext(log io.Writer) *Context {
	return &Context{Log: log, MaxThreads: runtime.GOMAXPROCS(0)}
}

func (c *Context) logf(format string, args ...interface{}) {
	if c == nil || c.Log == nil {
		return
	}
	fmt.Fprintf(c.Log, format, args...)
}

// Params is the external parameter record of §6: borrowed read-only
// input arrays, owned-but-mutated output buffers, scalars, and the
// policy selection made once per run. No array is copied.
type Params struct {
	// Borrowed, read-only row-indexed arrays (length RowCount, or
	// RowCount*ChannelCount*StoredCorrelationCount for Visibilities and
	// its weight/flag arrays).
	Visibilities        []complex128
	VisibilityWeights   []float64
	FlaggedVisibilities []bool
	FlaggedRows         []bool
	FieldArray          []int
	SpwIndexArray       []int
	UVWCoords           []geometry.UVW

	// Borrowed, read-only (spw, channel) plan arrays, length
	// SpwCount*ChannelCount.
	ReferenceWavelengths  []float64
	EnabledChannels       []bool
	ChannelGridIndices    []int // destination plane in the image cube
	PSFChannelGridIndices []int // destination plane in the sampling-function cube

	BaselineStartingIndexes []int // len(baselines)+1, sentinel required
	FacetCentres            []geometry.FacetDescriptor

	// Pre-computed FIR kernel, consulted only when ConvMode == ConvFIR.
	Conv []float64

	// Output buffers (owned by caller, mutated), per §6: the uv grid cube
	// and sampling-function cube, laid out [NumFacetCentres,
	// CubeChannelDimSize/SamplingFunctionChannelCount, NumPolarizationTerms/1,
	// NY, NX]. Run wraps these in place via gridcube.Wrap (zeroing them
	// first) rather than allocating its own cubes; no array is copied.
	OutputBuffer           []complex128
	SamplingFunctionBuffer []complex128

	// Scalars, per §6.
	NX, NY                       int
	CellSizeX, CellSizeY         float64 // arcsec
	ConvSupport                  int
	ConvOversample               int
	ChannelCount                 int
	BaselineCount                int
	RowCount                     int
	StoredCorrelationCount       int // correlations physically stored per (row, chan)
	NumPolarizationTerms         int // retained grid planes per facet/grid-channel
	CubeChannelDimSize           int
	SamplingFunctionChannelCount int
	PhaseCentreRA, PhaseCentreDec float64
	ImagingField                 int

	ConvMode        ConvMode
	Polarization    corr.Policy // image-cube correlation/polarization policy
	PSFPolarization corr.Policy // defaults to corr.PSF{} when nil
}

// Result bundles the IFFT'd, real-part-extracted dirty-image and
// dirty-PSF cubes with the run's accumulated statistics.
type Result struct {
	Image    []gridcube.RealPlane // facet-major, then grid-channel, then polarization plane
	PSF      []gridcube.RealPlane // facet-major, then sampling-function channel
	Stats    grid.Stats
	PSFStats grid.Stats
}

func validate(p *Params) error {
	if len(p.FacetCentres) == 0 {
		return &ConfigurationError{Msg: "facet table is empty"}
	}
	if p.RowCount < 0 {
		return &ConfigurationError{Msg: "RowCount must be >= 0"}
	}
	checkRowLen := func(name string, n int) error {
		if n != p.RowCount {
			return &ConfigurationError{Msg: fmt.Sprintf("%s has length %d, want RowCount=%d", name, n, p.RowCount)}
		}
		return nil
	}
	if err := checkRowLen("FlaggedRows", len(p.FlaggedRows)); err != nil {
		return err
	}
	if err := checkRowLen("FieldArray", len(p.FieldArray)); err != nil {
		return err
	}
	if err := checkRowLen("SpwIndexArray", len(p.SpwIndexArray)); err != nil {
		return err
	}
	if err := checkRowLen("UVWCoords", len(p.UVWCoords)); err != nil {
		return err
	}
	visLen := p.RowCount * p.ChannelCount * p.StoredCorrelationCount
	if len(p.Visibilities) != visLen || len(p.VisibilityWeights) != visLen || len(p.FlaggedVisibilities) != visLen {
		return &ConfigurationError{Msg: fmt.Sprintf("visibility/weight/flag arrays must have length RowCount*ChannelCount*StoredCorrelationCount=%d", visLen)}
	}
	if len(p.BaselineStartingIndexes) != p.BaselineCount+1 {
		return &ConfigurationError{Msg: fmt.Sprintf("BaselineStartingIndexes must have length BaselineCount+1=%d, got %d", p.BaselineCount+1, len(p.BaselineStartingIndexes))}
	}
	for i := 1; i < len(p.BaselineStartingIndexes); i++ {
		if p.BaselineStartingIndexes[i] < p.BaselineStartingIndexes[i-1] {
			return &ConfigurationError{Msg: "BaselineStartingIndexes must be non-decreasing"}
		}
	}
	if len(p.BaselineStartingIndexes) > 0 && p.BaselineStartingIndexes[len(p.BaselineStartingIndexes)-1] > p.RowCount {
		return &ConfigurationError{Msg: "BaselineStartingIndexes sentinel exceeds RowCount"}
	}
	if p.Polarization == nil {
		return &ConfigurationError{Msg: "Polarization policy must be set"}
	}
	if p.Polarization.NumPlanes() != p.NumPolarizationTerms {
		return &ConfigurationError{Msg: "NumPolarizationTerms does not match Polarization.NumPlanes()"}
	}
	nFacets := len(p.FacetCentres)
	wantOutputLen := nFacets * p.CubeChannelDimSize * p.NumPolarizationTerms * p.NY * p.NX
	if len(p.OutputBuffer) != wantOutputLen {
		return &ConfigurationError{Msg: fmt.Sprintf("OutputBuffer has length %d, want %d for shape [%d,%d,%d,%d,%d]", len(p.OutputBuffer), wantOutputLen, nFacets, p.CubeChannelDimSize, p.NumPolarizationTerms, p.NY, p.NX)}
	}
	wantPSFLen := nFacets * p.SamplingFunctionChannelCount * p.NY * p.NX
	if len(p.SamplingFunctionBuffer) != wantPSFLen {
		return &ConfigurationError{Msg: fmt.Sprintf("SamplingFunctionBuffer has length %d, want %d for shape [%d,%d,1,%d,%d]", len(p.SamplingFunctionBuffer), wantPSFLen, nFacets, p.SamplingFunctionChannelCount, p.NY, p.NX)}
	}
	return nil
}

// NumFacetCentres mirrors the scalar of §6; it is derived from
// len(FacetCentres) rather than stored separately.
func (p *Params) NumFacetCentres() int { return len(p.FacetCentres) }

func buildConv(p *Params) (conv.Policy, error) {
	switch p.ConvMode {
	case ConvFIR:
		c, err := conv.NewFIR(p.NX, p.NY, p.ConvSupport, p.ConvOversample, p.Conv)
		if err != nil {
			return nil, &ConfigurationError{Msg: err.Error()}
		}
		return c, nil
	case ConvNN:
		c, err := conv.NewNN(p.NX, p.NY, p.ConvSupport)
		if err != nil {
			return nil, &ConfigurationError{Msg: err.Error()}
		}
		return c, nil
	case ConvSinc:
		c, err := conv.NewSinc(p.NX, p.NY, p.ConvSupport)
		if err != nil {
			return nil, &ConfigurationError{Msg: err.Error()}
		}
		return c, nil
	default:
		return nil, &PolicyMisuseError{Msg: fmt.Sprintf("unknown convolution mode %d", p.ConvMode)}
	}
}

func buildFacetPlans(p *Params) []grid.FacetPlan {
	plans := make([]grid.FacetPlan, len(p.FacetCentres))
	phaseCentre := geometry.RADec{RA: p.PhaseCentreRA, Dec: p.PhaseCentreDec}
	for i, fd := range p.FacetCentres {
		if fd.IsReference {
			plans[i] = grid.FacetPlan{Transform: xform.NewIdentity(), Shift: phase.NewDisabled()}
			continue
		}
		frame := geometry.FacetFrame{
			OldRA: phaseCentre.RA, OldDec: phaseCentre.Dec,
			NewRA: fd.Centre.RA, NewDec: fd.Centre.Dec,
		}
		lmn := geometry.DeltaLMN(phaseCentre, fd.Centre)
		plans[i] = grid.FacetPlan{Transform: xform.New(frame), Shift: phase.New(lmn)}
	}
	return plans
}

func baseInputs(p *Params, channelGridIndices []int) grid.Inputs {
	return grid.Inputs{
		UVW:                     p.UVWCoords,
		FlaggedRows:             p.FlaggedRows,
		FieldArray:              p.FieldArray,
		SpwIndexArray:           p.SpwIndexArray,
		ReferenceWavelengths:    p.ReferenceWavelengths,
		EnabledChannels:         p.EnabledChannels,
		ChannelGridIndices:      channelGridIndices,
		BaselineStartingIndexes: p.BaselineStartingIndexes,
		ChanCount:               p.ChannelCount,
		ImagingField:            p.ImagingField,
		CellSizeX:               p.CellSizeX,
		CellSizeY:               p.CellSizeY,
		Rows: corr.RowReader{
			Vis:       p.Visibilities,
			Weight:    p.VisibilityWeights,
			Flag:      p.FlaggedVisibilities,
			ChanCount: p.ChannelCount,
			NPolTotal: p.StoredCorrelationCount,
		},
	}
}

// Run grids the image and sampling-function cubes across every facet
// (data-parallel at the facet level per §5, one goroutine per facet
// bounded by pc.MaxThreads) and applies the IFFT + repack stage of
// §4.6. On cancellation, no partial Result is returned.
func Run(ctx context.Context, pc *Context, p *Params) (*Result, error) {
	if err := validate(p); err != nil {
		return nil, err
	}

	convPolicy, err := buildConv(p)
	if err != nil {
		return nil, err
	}

	psfPol := p.PSFPolarization
	if psfPol == nil {
		psfPol = corr.PSF{}
	}
	psfChannelGridIndices := p.PSFChannelGridIndices
	if psfChannelGridIndices == nil {
		psfChannelGridIndices = p.ChannelGridIndices
	}

	nFacets := p.NumFacetCentres()
	imageCube, err := gridcube.Wrap(p.OutputBuffer, nFacets, p.CubeChannelDimSize, p.NumPolarizationTerms, p.NY, p.NX)
	if err != nil {
		// validate already checked these lengths; unreachable in practice.
		return nil, &ConfigurationError{Msg: err.Error()}
	}
	psfCube, err := gridcube.Wrap(p.SamplingFunctionBuffer, nFacets, p.SamplingFunctionChannelCount, 1, p.NY, p.NX)
	if err != nil {
		return nil, &ConfigurationError{Msg: err.Error()}
	}

	plans := buildFacetPlans(p)
	imageIn := baseInputs(p, p.ChannelGridIndices)
	psfIn := baseInputs(p, psfChannelGridIndices)

	maxThreads := pc.MaxThreads
	if maxThreads < 1 {
		maxThreads = 1
	}
	pc.logf("bullseye: gridding %d facets with up to %d workers\n", nFacets, maxThreads)

	limiter := make(chan struct{}, maxThreads)
	errs := make(chan error, nFacets)
	var mu sync.Mutex
	var totalStats, psfStats grid.Stats

	for f := 0; f < nFacets; f++ {
		limiter <- struct{}{}
		go func(f int) {
			defer func() { <-limiter }()
			var localStats, localPSFStats grid.Stats
			if err := grid.Facet(ctx, imageCube, f, plans[f], convPolicy, p.Polarization, imageIn, &localStats); err != nil {
				errs <- err
				return
			}
			if err := grid.Facet(ctx, psfCube, f, plans[f], convPolicy, psfPol, psfIn, &localPSFStats); err != nil {
				errs <- err
				return
			}
			mu.Lock()
			totalStats.Merge(localStats)
			psfStats.Merge(localPSFStats)
			mu.Unlock()
			errs <- nil
		}(f)
	}
	for i := 0; i < cap(limiter); i++ {
		limiter <- struct{}{}
	}
	for i := 0; i < nFacets; i++ {
		if e := <-errs; e != nil && err == nil {
			err = e
		}
	}
	if err != nil {
		imageCube.Release()
		psfCube.Release()
		return nil, err
	}

	pc.logf("bullseye: gridding done, %d visibilities accumulated, %d dropped at the edge\n", totalStats.Accumulated, totalStats.DroppedByEdge)

	image := fft.Cube(imageCube)
	psf := fft.Cube(psfCube)
	imageCube.Release()
	psfCube.Release()

	return &Result{Image: image, PSF: psf, Stats: totalStats, PSFStats: psfStats}, nil
}
