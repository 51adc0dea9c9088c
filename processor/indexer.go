package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/goes-ingester/common"
	"github.com/airbusgeo/goes-ingester/downloader"
	"github.com/airbusgeo/goes-ingester/interface/raster"
	"github.com/airbusgeo/goes-ingester/service"
	"github.com/airbusgeo/goes-ingester/service/log"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultCloudVariable is the cloud-diagnostic variable of the cloud product
const DefaultCloudVariable = "DQF"

// Indexer selects, for each region, day and hour, the granule with the highest clear-sky fraction
type Indexer struct {
	Raster     raster.Engine
	Variable   string
	WorkingCRS string
	// Concurrency is the maximum number of regions processed in parallel (<= 0: unbounded)
	Concurrency int
	// RespectRegionWindows skips the granules captured outside the window of the region
	RespectRegionWindows bool
}

type candidate struct {
	staged int
	score  float64
}

// ClearFraction returns the fraction of pixels equal to 0 (clear sky), or false if the band is empty
func ClearFraction(band *raster.Band) (float64, bool) {
	if band.Empty() {
		return 0, false
	}
	count := 0
	for _, v := range band.Data {
		if v == 0 {
			count++
		}
	}
	return float64(count) / float64(band.Width*band.Height), true
}

// Index crops each staged granule to each region and builds the index of the clearest granules.
// Intermediate files are written in cropRoot, which is removed before returning.
func (ix *Indexer) Index(ctx context.Context, regions common.RegionSet, staged []downloader.Staged, cropRoot string) (*GranuleIndex, error) {
	if err := os.MkdirAll(cropRoot, 0766); err != nil {
		return nil, service.MakeTemporary(fmt.Errorf("Index: make directory %s: %w", cropRoot, err))
	}
	defer os.RemoveAll(cropRoot)

	variable := ix.Variable
	if variable == "" {
		variable = DefaultCloudVariable
	}

	// Extract the diagnostic variable once per granule
	sources := make([]string, len(staged))
	g, gctx := errgroup.WithContext(ctx)
	if ix.Concurrency > 0 {
		g.SetLimit(ix.Concurrency)
	}
	for i, s := range staged {
		i, s := i, s
		g.Go(func() error {
			sources[i] = filepath.Join(cropRoot, strings.TrimSuffix(s.Key.Name, filepath.Ext(s.Key.Name))+".tif")
			if err := ix.Raster.ExtractSubdataset(gctx, s.Path, variable, sources[i]); err != nil {
				return fmt.Errorf("Index[%s].%w", s.Key.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Score the granules per region
	regionList := regions.Regions()
	candidates := make([][]candidate, len(regionList))
	g, gctx = errgroup.WithContext(ctx)
	if ix.Concurrency > 0 {
		g.SetLimit(ix.Concurrency)
	}
	for i, r := range regionList {
		i, r := i, r
		g.Go(func() error {
			c, err := ix.scoreRegion(log.With(gctx, "region", r.ID), r, staged, sources, filepath.Join(cropRoot, r.ID))
			if err != nil {
				return fmt.Errorf("Index[%s].%w", r.ID, err)
			}
			candidates[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	builder := NewIndexBuilder(regions.IDs())
	for i, r := range regionList {
		for _, c := range candidates[i] {
			s := staged[c.staged]
			builder.Offer(r.ID, s.Day, s.Hour, s.Key, c.score)
		}
	}
	index := builder.Build()
	log.Logger(ctx).Sugar().Infof("%d granules indexed: %d slots", len(staged), index.Len())
	return index, nil
}

// scoreRegion crops every granule to the region, in order
func (ix *Indexer) scoreRegion(ctx context.Context, r common.Region, staged []downloader.Staged, sources []string, dir string) ([]candidate, error) {
	if err := os.MkdirAll(dir, 0766); err != nil {
		return nil, service.MakeTemporary(fmt.Errorf("scoreRegion: make directory %s: %w", dir, err))
	}
	polygon := r.Polygon
	var candidates []candidate
	for i, s := range staged {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ix.RespectRegionWindows && !r.Covers(s.Key.Start) {
			continue
		}
		dst := filepath.Join(dir, filepath.Base(sources[i]))
		if err := ix.Raster.Warp(ctx, sources[i], dst, raster.WarpOptions{
			SrcSRS:         ix.WorkingCRS,
			DstSRS:         ix.WorkingCRS,
			CutlinePolygon: &polygon,
			CutlineSRS:     ix.WorkingCRS,
			CropToCutline:  true,
		}); err != nil {
			return nil, fmt.Errorf("scoreRegion[%s].%w", s.Key.Name, err)
		}
		band, err := ix.Raster.ReadBand(ctx, dst)
		if err != nil {
			return nil, fmt.Errorf("scoreRegion[%s].%w", s.Key.Name, err)
		}
		os.Remove(dst)
		score, ok := ClearFraction(band)
		if !ok {
			log.Logger(ctx).Debug("empty crop", zap.String("granule", s.Key.Name))
			continue
		}
		log.Logger(ctx).Debug("scored", zap.String("granule", s.Key.Name), zap.Float64("score", score))
		candidates = append(candidates, candidate{staged: i, score: score})
	}
	return candidates, nil
}
