package catalog

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/airbusgeo/goes-ingester/common"
	"github.com/airbusgeo/goes-ingester/interface/archive"
	"github.com/airbusgeo/goes-ingester/service"
	"github.com/airbusgeo/goes-ingester/service/log"
)

// Walker lists the partitions of the archive: {product}/{year}/{day}/{hour}/
type Walker struct {
	Archive archive.Client
	Retry   service.RetryPolicy
}

// list lists the partition with the retry policy.
// Raise common.ErrArchiveUnavailable (wrapping common.ErrThrottledRetryExceeded if the retries are exhausted)
func (w *Walker) list(ctx context.Context, p common.ArchivePath) ([]archive.Entry, error) {
	prefix := p.Prefix()
	var entries []archive.Entry
	err := w.Retry.Do(ctx, "List["+prefix+"]", func(ctx context.Context) error {
		var err error
		entries, err = w.Archive.List(ctx, prefix)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list[%s/%s]: %w: %w", w.Archive.Name(), prefix, common.ErrArchiveUnavailable, err)
	}
	return entries, nil
}

// listInts returns the sorted numeric names of the sub-partitions
func (w *Walker) listInts(ctx context.Context, p common.ArchivePath) ([]int, error) {
	entries, err := w.list(ctx, p)
	if err != nil {
		return nil, err
	}
	var ints []int
	for _, e := range entries {
		if !e.IsDir {
			continue
		}
		i, err := strconv.Atoi(e.Name())
		if err != nil {
			log.Logger(ctx).Sugar().Debugf("ignoring partition %s", e.Key)
			continue
		}
		ints = append(ints, i)
	}
	sort.Ints(ints)
	return ints, nil
}

// ListYears returns the years available for the product
func (w *Walker) ListYears(ctx context.Context, product string) ([]int, error) {
	years, err := w.listInts(ctx, common.ArchivePath{Product: product, Year: -1, Day: -1, Hour: -1})
	if err != nil {
		return nil, fmt.Errorf("ListYears.%w", err)
	}
	return years, nil
}

// ListDays returns the ordinal days available for the product and the year
func (w *Walker) ListDays(ctx context.Context, product string, year int) ([]int, error) {
	days, err := w.listInts(ctx, common.ArchivePath{Product: product, Year: year, Day: -1, Hour: -1})
	if err != nil {
		return nil, fmt.Errorf("ListDays.%w", err)
	}
	return days, nil
}

// ListHours returns the hours available for the product and the day, in ascending order
func (w *Walker) ListHours(ctx context.Context, product string, year, day int) ([]int, error) {
	hours, err := w.listInts(ctx, common.ArchivePath{Product: product, Year: year, Day: day, Hour: -1})
	if err != nil {
		return nil, fmt.Errorf("ListHours.%w", err)
	}
	return hours, nil
}

// ListGranules returns the objects of the partition, in listing order
func (w *Walker) ListGranules(ctx context.Context, p common.ArchivePath) ([]archive.Entry, error) {
	entries, err := w.list(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("ListGranules.%w", err)
	}
	objects := entries[:0]
	for _, e := range entries {
		if !e.IsDir {
			objects = append(objects, e)
		}
	}
	return objects, nil
}
