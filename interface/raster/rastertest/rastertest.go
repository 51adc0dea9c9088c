// Package rastertest provides an in-memory raster.Engine for the tests.
// Raster files are JSON documents holding one band per tag: the engine crops a file
// by selecting the band whose tag identifies the cutline.
package rastertest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/airbusgeo/goes-ingester/common"
	"github.com/airbusgeo/goes-ingester/interface/raster"
)

// DefaultTag is the tag of the band returned when no band matches the cutline
const DefaultTag = "*"

// Layers is the content of a raster file: tag -> band
type Layers map[string]*raster.Band

// Granule is the content of a granule file: variable -> layers
type Granule map[string]Layers

// PolygonTag returns the tag of a cutline polygon
func PolygonTag(p [4]common.Point) string {
	return "poly:" + strconv.FormatFloat(p[0].X, 'f', -1, 64)
}

// CutlineTag returns the tag of a cutline file
func CutlineTag(path string) string {
	return "file:" + filepath.Base(path)
}

// Uniform returns a width×height band filled with v
func Uniform(width, height int, v float64) *raster.Band {
	b := &raster.Band{Width: width, Height: height, Data: make([]float64, width*height)}
	for i := range b.Data {
		b.Data[i] = v
	}
	return b
}

// WithClearFraction returns a band of 10×10 pixels whose first round(100×fraction) pixels are 0, the others 1
func WithClearFraction(fraction float64) *raster.Band {
	b := Uniform(10, 10, 1)
	for i := 0; i < int(fraction*100+0.5); i++ {
		b.Data[i] = 0
	}
	return b
}

// Empty returns a band without pixel
func Empty() *raster.Band {
	return &raster.Band{}
}

// WriteGranule writes a fake granule
func WriteGranule(path string, g Granule) error {
	return writeJSON(path, g)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Engine implements raster.Engine on JSON files
type Engine struct {
	mu sync.Mutex
	// Warps records the options of the calls to Warp, by destination file
	Warps map[string]raster.WarpOptions
	// Extracted records the variables extracted, by source file
	Extracted map[string][]string
	// FailWarp makes Warp fail for the given source base names
	FailWarp map[string]error
}

// NewEngine creates a fake engine
func NewEngine() *Engine {
	return &Engine{Warps: map[string]raster.WarpOptions{}, Extracted: map[string][]string{}, FailWarp: map[string]error{}}
}

// ExtractSubdataset implements raster.Engine
func (e *Engine) ExtractSubdataset(ctx context.Context, src, variable, dst string) error {
	var g Granule
	if err := readJSON(src, &g); err != nil {
		return fmt.Errorf("ExtractSubdataset[%s]: %w", src, err)
	}
	layers, ok := g[variable]
	if !ok {
		return fmt.Errorf("ExtractSubdataset[%s]: variable %s not found", src, variable)
	}
	e.mu.Lock()
	e.Extracted[filepath.Base(src)] = append(e.Extracted[filepath.Base(src)], variable)
	e.mu.Unlock()
	return writeJSON(dst, layers)
}

// Warp implements raster.Engine
func (e *Engine) Warp(ctx context.Context, src, dst string, opts raster.WarpOptions) error {
	e.mu.Lock()
	err := e.FailWarp[filepath.Base(src)]
	e.Warps[dst] = opts
	e.mu.Unlock()
	if err != nil {
		return err
	}
	var layers Layers
	if err := readJSON(src, &layers); err != nil {
		return fmt.Errorf("Warp[%s]: %w", src, err)
	}
	tag := DefaultTag
	switch {
	case opts.Cutline != "":
		tag = CutlineTag(opts.Cutline)
	case opts.CutlinePolygon != nil:
		tag = PolygonTag(*opts.CutlinePolygon)
	}
	b, ok := layers[tag]
	if !ok {
		if b, ok = layers[DefaultTag]; !ok {
			return fmt.Errorf("Warp[%s]: no layer for %s", src, tag)
		}
	}
	return writeJSON(dst, Layers{DefaultTag: b})
}

// ReadBand implements raster.Engine
func (e *Engine) ReadBand(ctx context.Context, path string) (*raster.Band, error) {
	var layers Layers
	if err := readJSON(path, &layers); err != nil {
		return nil, fmt.Errorf("ReadBand[%s]: %w", path, err)
	}
	b, ok := layers[DefaultTag]
	if !ok {
		return nil, fmt.Errorf("ReadBand[%s]: no default layer", path)
	}
	return b, nil
}

// WriteBand implements raster.Engine
func (e *Engine) WriteBand(ctx context.Context, band *raster.Band, dst string) error {
	return writeJSON(dst, Layers{DefaultTag: band})
}

// WarpOptions returns the options of the Warp that produced dst
func (e *Engine) WarpOptions(dst string) (raster.WarpOptions, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.Warps[dst]
	return o, ok
}
