package godal

import (
	"context"
	"fmt"

	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/goes-ingester/common"
	"github.com/airbusgeo/goes-ingester/interface/raster"
)

// Engine implements raster.Engine and raster.Transformer with the GDAL library, in-process
type Engine struct{}

// New registers the GDAL drivers and returns an engine
func New() *Engine {
	godal.RegisterAll()
	return &Engine{}
}

// ExtractSubdataset implements raster.Engine
func (e *Engine) ExtractSubdataset(ctx context.Context, src, variable, dst string) error {
	ds, err := godal.Open(raster.SubdatasetName(src, variable))
	if err != nil {
		return fmt.Errorf("ExtractSubdataset.Open[%s:%s]: %w", src, variable, err)
	}
	defer ds.Close()
	out, err := ds.Translate(dst, []string{"-of", "GTiff"})
	if err != nil {
		return fmt.Errorf("ExtractSubdataset.Translate: %w", err)
	}
	return out.Close()
}

// Warp implements raster.Engine
func (e *Engine) Warp(ctx context.Context, src, dst string, opts raster.WarpOptions) error {
	ds, err := godal.Open(src)
	if err != nil {
		return fmt.Errorf("Warp.Open[%s]: %w", src, err)
	}
	defer ds.Close()

	cutline, cleanup, err := raster.CutlineArgs(opts, dst)
	defer cleanup()
	if err != nil {
		return fmt.Errorf("Warp.%w", err)
	}
	out, err := ds.Warp(dst, append(raster.WarpArgs(opts), cutline...))
	if err != nil {
		return fmt.Errorf("Warp[%s]: %w", src, err)
	}
	return out.Close()
}

// ReadBand implements raster.Engine
func (e *Engine) ReadBand(ctx context.Context, path string) (*raster.Band, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ReadBand.Open[%s]: %w", path, err)
	}
	defer ds.Close()

	st := ds.Structure()
	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, fmt.Errorf("ReadBand[%s]: no band", path)
	}
	b := &raster.Band{
		Width:      st.SizeX,
		Height:     st.SizeY,
		Projection: ds.Projection(),
		Data:       make([]float64, st.SizeX*st.SizeY),
	}
	if gt, err := ds.GeoTransform(); err == nil {
		b.GeoTransform = gt
	}
	if nodata, ok := bands[0].NoData(); ok {
		b.NoData = &nodata
	}
	if len(b.Data) > 0 {
		if err := bands[0].Read(0, 0, b.Data, b.Width, b.Height); err != nil {
			return nil, fmt.Errorf("ReadBand.Read[%s]: %w", path, err)
		}
	}
	return b, nil
}

// WriteBand implements raster.Engine
func (e *Engine) WriteBand(ctx context.Context, band *raster.Band, dst string) error {
	ds, err := godal.Create(godal.GTiff, dst, 1, godal.Float32, band.Width, band.Height)
	if err != nil {
		return fmt.Errorf("WriteBand.Create[%s]: %w", dst, err)
	}
	if err := ds.SetGeoTransform(band.GeoTransform); err != nil {
		ds.Close()
		return fmt.Errorf("WriteBand.SetGeoTransform: %w", err)
	}
	if band.Projection != "" {
		if err := ds.SetProjection(band.Projection); err != nil {
			ds.Close()
			return fmt.Errorf("WriteBand.SetProjection: %w", err)
		}
	}
	b := ds.Bands()[0]
	if band.NoData != nil {
		if err := b.SetNoData(*band.NoData); err != nil {
			ds.Close()
			return fmt.Errorf("WriteBand.SetNoData: %w", err)
		}
	}
	if err := b.Write(0, 0, band.Data, band.Width, band.Height); err != nil {
		ds.Close()
		return fmt.Errorf("WriteBand.Write: %w", err)
	}
	return ds.Close()
}

// Transform implements raster.Transformer
func (e *Engine) Transform(ctx context.Context, srcSRS, dstSRS string, pts []common.Point) ([]common.Point, error) {
	src, err := godal.NewSpatialRef(srcSRS)
	if err != nil {
		return nil, fmt.Errorf("Transform.NewSpatialRef[%s]: %w", srcSRS, err)
	}
	defer src.Close()
	dst, err := godal.NewSpatialRef(dstSRS)
	if err != nil {
		return nil, fmt.Errorf("Transform.NewSpatialRef[%s]: %w", dstSRS, err)
	}
	defer dst.Close()
	trn, err := godal.NewTransform(src, dst)
	if err != nil {
		return nil, fmt.Errorf("Transform.NewTransform: %w", err)
	}
	defer trn.Close()

	x, y := make([]float64, len(pts)), make([]float64, len(pts))
	for i, p := range pts {
		x[i], y[i] = p.X, p.Y
	}
	ok := make([]bool, len(pts))
	if err := trn.TransformEx(x, y, nil, ok); err != nil {
		return nil, fmt.Errorf("Transform.TransformEx: %w", err)
	}
	res := make([]common.Point, len(pts))
	for i := range pts {
		if !ok[i] {
			return nil, fmt.Errorf("Transform: point %v failed", pts[i])
		}
		res[i] = common.Point{X: x[i], Y: y[i]}
	}
	return res, nil
}

var (
	_ raster.Engine      = &Engine{}
	_ raster.Transformer = &Engine{}
)
