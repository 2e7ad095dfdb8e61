package pipeline

import (
	"context"
	"testing"

	"github.com/jfunction/bullseye/internal/conv"
	"github.com/jfunction/bullseye/internal/corr"
	"github.com/jfunction/bullseye/internal/geometry"
)

func baseParams(facets []geometry.FacetDescriptor) *Params {
	support, oversample := 3, 8
	const nx, ny, cubeChanDim, nPol, sampChanDim = 32, 32, 1, 1, 1
	nFacets := len(facets)
	return &Params{
		Visibilities:            []complex128{1 + 0i},
		VisibilityWeights:       []float64{1},
		FlaggedVisibilities:     []bool{false},
		FlaggedRows:             []bool{false},
		FieldArray:              []int{0},
		SpwIndexArray:           []int{0},
		UVWCoords:               []geometry.UVW{{U: 0, V: 0, W: 0}},
		ReferenceWavelengths:    []float64{1},
		EnabledChannels:         []bool{true},
		ChannelGridIndices:      []int{0},
		BaselineStartingIndexes: []int{0, 1},
		FacetCentres:            facets,
		Conv:                    conv.BuildTopHatFIR(support, oversample),
		NX:                      nx,
		NY:                      ny,
		CellSizeX:               1,
		CellSizeY:               1,
		ConvSupport:             support,
		ConvOversample:          oversample,
		ChannelCount:            1,
		BaselineCount:           1,
		RowCount:                1,
		StoredCorrelationCount:  1,
		NumPolarizationTerms:    nPol,
		CubeChannelDimSize:      cubeChanDim,
		SamplingFunctionChannelCount: sampChanDim,
		PhaseCentreRA:           0,
		PhaseCentreDec:          0,
		ImagingField:            0,
		ConvMode:                ConvFIR,
		Polarization:            corr.Single{},
		OutputBuffer:            make([]complex128, nFacets*cubeChanDim*nPol*ny*nx),
		SamplingFunctionBuffer:  make([]complex128, nFacets*sampChanDim*ny*nx),
	}
}

func TestRunRejectsEmptyFacetTable(t *testing.T) {
	p := baseParams(nil)
	_, err := Run(context.Background(), NewContext(nil), p)
	if err == nil {
		t.Fatal("expected ConfigurationError for empty facet table")
	}
	if _, ok := err.(*ConfigurationError); !ok {
		t.Errorf("expected *ConfigurationError, got %T: %v", err, err)
	}
}

func TestRunRejectsMismatchedRowArrayLengths(t *testing.T) {
	p := baseParams([]geometry.FacetDescriptor{{Centre: geometry.RADec{}, IsReference: true}})
	p.FlaggedRows = []bool{false, false} // wrong length
	_, err := Run(context.Background(), NewContext(nil), p)
	if _, ok := err.(*ConfigurationError); !ok {
		t.Errorf("expected *ConfigurationError, got %T: %v", err, err)
	}
}

func TestRunSinglePixelSourceProducesPSFShapedImage(t *testing.T) {
	p := baseParams([]geometry.FacetDescriptor{{Centre: geometry.RADec{}, IsReference: true}})
	res, err := Run(context.Background(), NewContext(nil), p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Image) != 1 {
		t.Fatalf("expected 1 image plane, got %d", len(res.Image))
	}
	if res.Stats.Accumulated != 1 {
		t.Errorf("expected 1 accumulated visibility, got %d", res.Stats.Accumulated)
	}
	img := res.Image[0].Image()
	var hasNonZero bool
	for _, v := range img {
		if v != 0 {
			hasNonZero = true
			break
		}
	}
	if !hasNonZero {
		t.Error("expected a non-trivial dirty image for a single-pixel source")
	}
}

func TestRunTwoFacetEquivalence(t *testing.T) {
	single := baseParams([]geometry.FacetDescriptor{{Centre: geometry.RADec{}, IsReference: true}})
	resSingle, err := Run(context.Background(), NewContext(nil), single)
	if err != nil {
		t.Fatalf("Run (single facet): %v", err)
	}

	two := baseParams([]geometry.FacetDescriptor{
		{Centre: geometry.RADec{}, IsReference: true},
		{Centre: geometry.RADec{RA: 0.01, Dec: -0.01}, IsReference: false},
	})
	two.CubeChannelDimSize = 1
	resTwo, err := Run(context.Background(), NewContext(nil), two)
	if err != nil {
		t.Fatalf("Run (two facets): %v", err)
	}

	imgSingle := resSingle.Image[0].Image()
	imgTwoRef := resTwo.Image[0].Image() // the phase-centre facet, index 0
	for i := range imgSingle {
		if imgSingle[i] != imgTwoRef[i] {
			t.Fatalf("phase-centre facet image diverged at pixel %d: %g vs %g", i, imgSingle[i], imgTwoRef[i])
		}
	}
}

func TestRunFlagSuppressionYieldsAllZeroImage(t *testing.T) {
	p := baseParams([]geometry.FacetDescriptor{{Centre: geometry.RADec{}, IsReference: true}})
	p.FlaggedRows = []bool{true}
	res, err := Run(context.Background(), NewContext(nil), p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, v := range res.Image[0].Image() {
		if v != 0 {
			t.Fatalf("expected all-zero image for flagged row, found %g", v)
		}
	}
}

func TestRunCancellationReturnsNoResult(t *testing.T) {
	p := baseParams([]geometry.FacetDescriptor{{Centre: geometry.RADec{}, IsReference: true}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Run(ctx, NewContext(nil), p)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if res != nil {
		t.Error("expected no partial result on cancellation")
	}
}
