package downloader

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/airbusgeo/goes-ingester/catalog"
	"github.com/airbusgeo/goes-ingester/common"
	"github.com/airbusgeo/goes-ingester/interface/archive"
	"github.com/airbusgeo/goes-ingester/service"
	"github.com/airbusgeo/goes-ingester/service/log"
	"go.uber.org/zap"
)

// Staged is a granule downloaded in the staging directory
type Staged struct {
	Day  int
	Hour int
	Key  common.GranuleKey
	Path string
}

// BucketFilter returns true if the granules of the bucket must be downloaded
type BucketFilter func(day, hour int, bucket common.TimeBucket) bool

// Fetcher downloads granules from the archive
type Fetcher struct {
	Archive archive.Client
	Retry   service.RetryPolicy
}

// Fetch downloads the objects in destDir.
// Raise common.ErrDownloadFailed (wrapping common.ErrThrottledRetryExceeded if the retries are exhausted)
func (f *Fetcher) Fetch(ctx context.Context, keys []string, destDir string) error {
	if len(keys) == 0 {
		return nil
	}
	err := f.Retry.Do(ctx, "Get", func(ctx context.Context) error {
		return f.Archive.Get(ctx, keys, destDir)
	})
	if err != nil {
		return fmt.Errorf("Fetch[%s: %d objects]: %w: %w", f.Archive.Name(), len(keys), common.ErrDownloadFailed, err)
	}
	return nil
}

// FetchPlan downloads the granules of each partition of the plan into the staging directory,
// keeping only the time buckets accepted by the filter (all of them if filter is nil).
// Staged granules are returned in plan order then listing order.
func (f *Fetcher) FetchPlan(ctx context.Context, walker *catalog.Walker, plan *catalog.Plan, staging *Staging, filter BucketFilter) ([]Staged, error) {
	var staged []Staged
	for _, p := range plan.Partitions() {
		ctx := log.WithFields(ctx, zap.String("product", p.Product), zap.Int("day", p.Day), zap.Int("hour", p.Hour))
		entries, err := walker.ListGranules(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("FetchPlan.%w", err)
		}
		keys, objects, err := catalog.ParseEntries(entries)
		if err != nil {
			return nil, fmt.Errorf("FetchPlan.%w", err)
		}
		if len(keys) == 0 {
			log.Logger(ctx).Debug("no granule")
			continue
		}

		selected := map[time.Time]bool{}
		for _, b := range catalog.Group(keys) {
			selected[b.Start] = filter == nil || filter(p.Day, p.Hour, b)
		}
		var toFetch []string
		var toStage []common.GranuleKey
		for i, k := range keys {
			if selected[k.Start] {
				toFetch = append(toFetch, objects[i])
				toStage = append(toStage, k)
			}
		}
		if len(toFetch) == 0 {
			log.Logger(ctx).Debug("no granule selected", zap.Int("granules", len(keys)))
			continue
		}

		dir, err := staging.Dir(p.Day, p.Hour)
		if err != nil {
			return nil, fmt.Errorf("FetchPlan.%w", err)
		}
		log.Logger(ctx).Sugar().Infof("downloading %d/%d granules", len(toFetch), len(keys))
		if err := f.Fetch(ctx, toFetch, dir); err != nil {
			return nil, fmt.Errorf("FetchPlan.%w", err)
		}
		for i, k := range toStage {
			staged = append(staged, Staged{Day: p.Day, Hour: p.Hour, Key: k, Path: filepath.Join(dir, path.Base(toFetch[i]))})
		}
	}
	return staged, nil
}
