package raster

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/airbusgeo/goes-ingester/common"
	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
)

// Band is a single-band raster, materialized in memory
type Band struct {
	Width, Height int
	GeoTransform  [6]float64
	Projection    string // WKT or user input (EPSG:XXXX)
	NoData        *float64
	Data          []float64 // Row-major, Width×Height
}

// Empty returns true if the band has no pixel
func (b *Band) Empty() bool {
	return b == nil || b.Width == 0 || b.Height == 0 || len(b.Data) == 0
}

// WarpOptions of Engine.Warp
type WarpOptions struct {
	SrcSRS string
	DstSRS string
	// Cutline is a vector datasource (e.g. geojson file) used as cutline
	Cutline string
	// CutlinePolygon is used as cutline (in CutlineSRS) if Cutline is empty
	CutlinePolygon *[4]common.Point
	CutlineSRS     string
	CropToCutline  bool
}

// Engine performs the raster geoprocessing
type Engine interface {
	// ExtractSubdataset converts a variable of a NetCDF granule to a GeoTIFF file
	ExtractSubdataset(ctx context.Context, src, variable, dst string) error
	// Warp crops and reprojects src to a GeoTIFF file
	Warp(ctx context.Context, src, dst string, opts WarpOptions) error
	// ReadBand reads the first band of the file
	ReadBand(ctx context.Context, path string) (*Band, error)
	// WriteBand writes the band to a Float32 GeoTIFF file
	WriteBand(ctx context.Context, band *Band, dst string) error
}

// Transformer transforms points between two coordinate reference systems
type Transformer interface {
	Transform(ctx context.Context, srcSRS, dstSRS string, pts []common.Point) ([]common.Point, error)
}

// WriteCutline writes the polygon as a geojson file
func WriteCutline(pts [4]common.Point, path string) error {
	ring := make([][2]float64, 0, len(pts)+1)
	for _, p := range pts {
		ring = append(ring, [2]float64{p.X, p.Y})
	}
	ring = append(ring, ring[0])
	b, err := json.Marshal(geojson.Geometry{Geometry: geom.Polygon{ring}})
	if err != nil {
		return fmt.Errorf("WriteCutline.Marshal: %w", err)
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("WriteCutline.WriteFile: %w", err)
	}
	return nil
}

// CutlineArgs returns the gdalwarp switches of the cutline, writing the polygon to a temporary file if needed.
// The returned function removes the temporary file.
func CutlineArgs(opts WarpOptions, dst string) ([]string, func(), error) {
	var args []string
	cleanup := func() {}
	cutline := opts.Cutline
	if cutline == "" && opts.CutlinePolygon != nil {
		cutline = dst + ".cutline.geojson"
		if err := WriteCutline(*opts.CutlinePolygon, cutline); err != nil {
			return nil, cleanup, err
		}
		cleanup = func() { os.Remove(cutline) }
	}
	if cutline != "" {
		args = append(args, "-cutline", cutline)
		if opts.CutlineSRS != "" {
			args = append(args, "-cutline_srs", opts.CutlineSRS)
		}
		if opts.CropToCutline {
			args = append(args, "-crop_to_cutline")
		}
	}
	return args, cleanup, nil
}

// WarpArgs returns the gdalwarp switches of the output format and the crs
func WarpArgs(opts WarpOptions) []string {
	args := []string{"-of", "GTiff", "-overwrite"}
	if opts.SrcSRS != "" {
		args = append(args, "-s_srs", opts.SrcSRS)
	}
	if opts.DstSRS != "" {
		args = append(args, "-t_srs", opts.DstSRS)
	}
	return args
}

// SubdatasetName returns the GDAL name of a variable of a NetCDF file
func SubdatasetName(file, variable string) string {
	return fmt.Sprintf("NETCDF:%q:%s", file, variable)
}
