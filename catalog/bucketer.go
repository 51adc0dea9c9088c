package catalog

import (
	"fmt"
	"path"
	"time"

	"github.com/airbusgeo/goes-ingester/common"
	"github.com/airbusgeo/goes-ingester/interface/archive"
)

// SelectHours returns every sampling-th hour (all the hours if sampling <= 0).
// On the first day, the hours before startHour are excluded.
// On the last day, the hours after endHour are excluded. Boundary hours are kept.
func SelectHours(hours []int, first, last bool, startHour, endHour, sampling int) []int {
	if sampling <= 0 {
		sampling = 1
	}
	var selected []int
	for i := 0; i < len(hours); i += sampling {
		h := hours[i]
		if first && h < startHour {
			continue
		}
		if last && h > endHour {
			continue
		}
		selected = append(selected, h)
	}
	return selected
}

// Group groups the granules by capture start-time.
// Buckets are ordered by first appearance, granules keep the listing order.
func Group(keys []common.GranuleKey) []common.TimeBucket {
	var buckets []common.TimeBucket
	index := map[time.Time]int{}
	for _, k := range keys {
		i, ok := index[k.Start]
		if !ok {
			i = len(buckets)
			index[k.Start] = i
			buckets = append(buckets, common.TimeBucket{Start: k.Start})
		}
		buckets[i].Keys = append(buckets[i].Keys, k)
	}
	return buckets
}

// ParseEntries parses the names of the granules of a listing, ignoring the objects that are not granules.
// Raise common.ErrFilenameFormat
func ParseEntries(entries []archive.Entry) ([]common.GranuleKey, []string, error) {
	var keys []common.GranuleKey
	var objects []string
	for _, e := range entries {
		if e.IsDir || path.Ext(e.Key) != common.GranuleExtension {
			continue
		}
		k, err := common.ParseGranuleName(e.Key)
		if err != nil {
			return nil, nil, fmt.Errorf("ParseEntries: %w", err)
		}
		keys = append(keys, k)
		objects = append(objects, e.Key)
	}
	return keys, objects, nil
}

// GroupNames parses the object names and groups them by capture start-time.
// Non-granule objects are ignored. Raise common.ErrFilenameFormat
func GroupNames(names []string) ([]common.TimeBucket, error) {
	entries := make([]archive.Entry, len(names))
	for i, n := range names {
		entries[i] = archive.Entry{Key: n}
	}
	keys, _, err := ParseEntries(entries)
	if err != nil {
		return nil, fmt.Errorf("GroupNames.%w", err)
	}
	return Group(keys), nil
}
