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

// Package gridcube holds the uv grid cube and sampling-function cube of
// §3: allocation, zero-initialization, pooled reuse across pipeline
// runs, and the typed view that models the complex-to-float
// reinterpretation of §4.6/§6 without leaking a raw pointer alias across
// the type system (§9).
package gridcube

import (
	"fmt"
	"sync"
	"unsafe"
)

// cubePool pools []complex128 backing arrays by size, following a sized
// sync.Pool idiom generalized from one pool per element type to the
// single type this package needs.
var cubePool = struct {
	sync.RWMutex
	m map[int]*sync.Pool
}{m: make(map[int]*sync.Pool)}

func sizedPool(size int) *sync.Pool {
	cubePool.RLock()
	pool := cubePool.m[size]
	cubePool.RUnlock()
	if pool != nil {
		return pool
	}
	cubePool.Lock()
	defer cubePool.Unlock()
	if pool = cubePool.m[size]; pool != nil {
		return pool
	}
	pool = &sync.Pool{
		New: func() interface{} {
			return make([]complex128, size)
		},
	}
	cubePool.m[size] = pool
	return pool
}

func acquire(size int) []complex128 {
	arr := sizedPool(size).Get().([]complex128)
	for i := range arr {
		arr[i] = 0
	}
	return arr
}

func release(arr []complex128) {
	if arr == nil {
		return
	}
	sizedPool(cap(arr)).Put(arr[:cap(arr)])
}

// Cube is a contiguous block of complex samples shaped
// [NFacets, Channels, NPol, NY, NX], per §3's uv grid cube (Channels is
// the grid-channel dimension; NPol is 1 for the sampling-function cube).
// It is zero-initialized on New/Wrap, per §3's lifecycle invariant.
type Cube struct {
	NFacets, Channels, NPol, NY, NX int
	Data                            []complex128
	pooled                          bool // true if Data came from cubePool and must be returned on Release
}

// New allocates (or reuses from the pool) a zero-initialized cube of the
// given shape. Used when no caller-owned output buffer is supplied (e.g.
// package-internal tests).
func New(nFacets, channels, nPol, ny, nx int) *Cube {
	n := nFacets * channels * nPol * ny * nx
	return &Cube{NFacets: nFacets, Channels: channels, NPol: nPol, NY: ny, NX: nx, Data: acquire(n), pooled: true}
}

// Wrap adapts a caller-owned buffer (§6's output_buffer /
// sampling_function_buffer) into a Cube of the given shape, in place: no
// array is copied. The buffer is zero-initialized before use, per §3's
// "cube is zero-initialized before the first row is gridded" invariant,
// regardless of what the caller put in it. Release on a wrapped Cube
// never returns the buffer to the pool — it remains owned by the caller.
func Wrap(data []complex128, nFacets, channels, nPol, ny, nx int) (*Cube, error) {
	want := nFacets * channels * nPol * ny * nx
	if len(data) != want {
		return nil, fmt.Errorf("gridcube: buffer has length %d, want %d for shape [%d,%d,%d,%d,%d]", len(data), want, nFacets, channels, nPol, ny, nx)
	}
	for i := range data {
		data[i] = 0
	}
	return &Cube{NFacets: nFacets, Channels: channels, NPol: nPol, NY: ny, NX: nx, Data: data}, nil
}

// Release returns a pool-backed cube's backing array to the pool; a
// Wrap'd cube's caller-owned buffer is left untouched. Either way, the
// cube must not be used afterwards.
func (c *Cube) Release() {
	if c.pooled {
		release(c.Data)
	}
	c.Data = nil
}

func (c *Cube) planeOffset(facet, channel, pol int) int {
	return ((facet*c.Channels+channel)*c.NPol + pol) * c.NY * c.NX
}

// Plane returns the flat NY*NX row-major view of one grid plane.
func (c *Cube) Plane(facet, channel, pol int) []complex128 {
	off := c.planeOffset(facet, channel, pol)
	return c.Data[off : off+c.NY*c.NX]
}

// FacetSlab returns every plane belonging to one facet as a single
// contiguous slice (Channels*NPol planes). The IFFT stage in package fft
// does not use it; it transforms each plane obtained through Plane.
func (c *Cube) FacetSlab(facet int) []complex128 {
	planeLen := c.NY * c.NX
	off := facet * c.Channels * c.NPol * planeLen
	return c.Data[off : off+c.Channels*c.NPol*planeLen]
}

// RealPlane is the real-valued view of one IFFT'd grid plane produced by
// ExtractReal, aliasing the same backing storage as the complex128 plane
// it was extracted from (no copy): the real part of each sample occupies
// the first NX*NY elements of Data; the remaining NX*NY elements are
// dead space inherited from the discarded imaginary components (stale
// bytes, not zeroed) and must be ignored by consumers, per §6's exit
// contract.
//
// A complex128 is laid out in memory as two consecutive float64 lanes
// (real, imaginary) — gonum's dsp/fourier operates on complex128, so
// that is the native float width here rather than the float32 of the
// original single-precision implementation; reinterpreting complex128
// as float32 in place isn't possible (4-byte float32 and 8-byte float64
// lanes don't alias), so float64 is the closest literal reading of §4.6's
// "reinterpret the complex buffer as float, ... stride of 2" recipe that
// a real pointer-cast (rather than a value-converting copy) can satisfy.
type RealPlane struct {
	NX, NY int
	Data   []float64
}

// ExtractReal reinterprets plane's complex128 backing array as a flat
// float64 array via unsafe.Slice (the same reinterpret-cast idiom the
// corpus uses for complex64/float32 views, e.g.
// CWBudde-algo-fft/plan_real_fast.go), then compacts the real lane of
// every sample (stride 2, starting at index 0) into the front half of
// that same array in place — §4.6 step 4's "overwriting in place using a
// stride of 2 in the underlying floats". The compaction only ever reads
// ahead of where it writes, so it is safe to do without a temporary
// buffer. plane, and the original Cube it came from, must not be read
// again through its complex128 view afterwards.
func ExtractReal(plane []complex128, nx, ny int) RealPlane {
	n := nx * ny
	if n == 0 {
		return RealPlane{NX: nx, NY: ny, Data: nil}
	}
	flat := unsafe.Slice((*float64)(unsafe.Pointer(&plane[0])), 2*n)
	for i := 0; i < n; i++ {
		flat[i] = flat[2*i]
	}
	return RealPlane{NX: nx, NY: ny, Data: flat}
}

// Image returns the live NX*NY image pixels, discarding the dead space
// second half described on RealPlane.
func (r RealPlane) Image() []float64 {
	return r.Data[:r.NX*r.NY]
}
