package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/airbusgeo/goes-ingester/catalog"
	"github.com/airbusgeo/goes-ingester/common"
	"github.com/airbusgeo/goes-ingester/downloader"
	"github.com/airbusgeo/goes-ingester/interface/raster"
	"github.com/airbusgeo/goes-ingester/service"
	"github.com/airbusgeo/goes-ingester/service/log"
	"go.uber.org/zap"
)

// Output is a file produced for a region
type Output struct {
	Region  string    `json:"region"`
	Product string    `json:"product"`
	Day     int       `json:"day"`
	Hour    int       `json:"hour"`
	Start   time.Time `json:"start"`
	Path    string    `json:"path"`
	URI     string    `json:"uri,omitempty"` // Set if the output is exported
}

// Synchronizer produces the derived products captured at the same instant as the granules of the index
type Synchronizer struct {
	Walker     *catalog.Walker
	Fetcher    *downloader.Fetcher
	Raster     raster.Engine
	WorkingCRS string
	OutputCRS  string
	Root       string
	// Storage exports the outputs (optional)
	Storage service.Storage
}

// OutputDir returns the directory of the outputs of the region and the product
func OutputDir(root, region, product string) string {
	return filepath.Join(root, region, product)
}

// Sync downloads the granules of the product whose start-time is the one selected in the index,
// then crops and reprojects them for each matching region into {root}/{region}/{product}/{canonical name}.
func (s *Synchronizer) Sync(ctx context.Context, product Product, plan *catalog.Plan, index *GranuleIndex, regions common.RegionSet) ([]Output, error) {
	ctx = log.With(ctx, "product", product.Name)
	staging, err := downloader.NewStaging(s.Root)
	if err != nil {
		return nil, fmt.Errorf("Sync[%s].%w", product.Name, err)
	}
	defer staging.Release()

	staged, err := s.Fetcher.FetchPlan(ctx, s.Walker, plan.ForProduct(product.Collection), staging, func(day, hour int, b common.TimeBucket) bool {
		return len(index.Matching(day, hour, b.Start)) > 0
	})
	if err != nil {
		return nil, fmt.Errorf("Sync[%s].%w", product.Name, err)
	}

	var outputs []Output
	for _, st := range staged {
		matching := index.Matching(st.Day, st.Hour, st.Key.Start)
		if len(matching) == 0 {
			continue
		}
		src, err := s.prepare(ctx, product, st)
		if err != nil {
			return s.unexport(ctx, outputs), fmt.Errorf("Sync[%s].%w", product.Name, err)
		}
		for _, id := range matching {
			r, ok := regions.Get(id)
			if !ok {
				continue
			}
			out, err := s.produce(ctx, product, r, st, src)
			if err != nil {
				return s.unexport(ctx, outputs), fmt.Errorf("Sync[%s].%w", product.Name, err)
			}
			outputs = append(outputs, out)
		}
	}
	log.Logger(ctx).Sugar().Infof("%d outputs produced from %d granules", len(outputs), len(staged))
	return outputs, nil
}

// unexport deletes the exported copies of the outputs of a failed synchronization.
// The local outputs are kept.
func (s *Synchronizer) unexport(ctx context.Context, outputs []Output) []Output {
	if s.Storage == nil {
		return outputs
	}
	for i, o := range outputs {
		if o.URI == "" {
			continue
		}
		err := s.Storage.DeleteOutput(ctx, o.Region, o.Product, filepath.Base(o.Path))
		if err != nil && !errors.As(err, &service.ErrFileNotFound{}) {
			log.Logger(ctx).Warn("unable to delete the exported output", zap.String("uri", o.URI), zap.Error(err))
			continue
		}
		outputs[i].URI = ""
	}
	return outputs
}

// prepare extracts the variable of the staged granule and applies the transform of the product
func (s *Synchronizer) prepare(ctx context.Context, product Product, st downloader.Staged) (string, error) {
	src := strings.TrimSuffix(st.Path, filepath.Ext(st.Path)) + "_" + product.Variable + ".tif"
	if err := s.Raster.ExtractSubdataset(ctx, st.Path, product.Variable, src); err != nil {
		return "", fmt.Errorf("prepare[%s].%w", st.Key.Name, err)
	}
	if product.Transform == TransformNone {
		return src, nil
	}
	band, err := s.Raster.ReadBand(ctx, src)
	if err != nil {
		return "", fmt.Errorf("prepare[%s].%w", st.Key.Name, err)
	}
	if band, err = product.Transform.Apply(band); err != nil {
		return "", fmt.Errorf("prepare[%s].%w", st.Key.Name, err)
	}
	dst := strings.TrimSuffix(src, ".tif") + "_" + string(product.Transform) + ".tif"
	if err := s.Raster.WriteBand(ctx, band, dst); err != nil {
		return "", fmt.Errorf("prepare[%s].%w", st.Key.Name, err)
	}
	return dst, nil
}

// produce crops and reprojects the source to the region
func (s *Synchronizer) produce(ctx context.Context, product Product, r common.Region, st downloader.Staged, src string) (Output, error) {
	dir := OutputDir(s.Root, r.ID, product.Name)
	if err := os.MkdirAll(dir, 0766); err != nil {
		return Output{}, service.MakeTemporary(fmt.Errorf("produce: make directory %s: %w", dir, err))
	}
	out := Output{
		Region:  r.ID,
		Product: product.Name,
		Day:     st.Day,
		Hour:    st.Hour,
		Start:   st.Key.Start,
		Path:    filepath.Join(dir, st.Key.CanonicalName()),
	}
	opts := raster.WarpOptions{SrcSRS: s.WorkingCRS, DstSRS: s.OutputCRS, Cutline: r.Source, CropToCutline: true}
	if r.Source == "" {
		polygon := r.Polygon
		opts.CutlinePolygon, opts.CutlineSRS = &polygon, s.WorkingCRS
	}
	if err := s.Raster.Warp(ctx, src, out.Path, opts); err != nil {
		return Output{}, fmt.Errorf("produce[%s/%s].%w", r.ID, st.Key.Name, err)
	}
	log.Logger(ctx).Debug("output", zap.String("region", r.ID), zap.String("path", out.Path))

	if s.Storage != nil {
		uri, err := s.Storage.SaveOutput(ctx, r.ID, product.Name, out.Path)
		if err != nil {
			return Output{}, fmt.Errorf("produce[%s/%s].%w", r.ID, st.Key.Name, err)
		}
		out.URI = uri
	}
	return out, nil
}
