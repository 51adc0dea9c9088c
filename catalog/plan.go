package catalog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/airbusgeo/goes-ingester/common"
	"github.com/airbusgeo/goes-ingester/service/log"
	"go.uber.org/zap"
)

// DayPlan is the list of hours to process for a day
type DayPlan struct {
	Day   int   `json:"day"`
	Hours []int `json:"hours"`
}

// Plan is the list of (day, hour) partitions of a product to process
type Plan struct {
	Product string    `json:"product"`
	Year    int       `json:"year"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Days    []DayPlan `json:"days"`
	// DroppedDay is the last listed day, dropped because the end day is not yet in the archive (0 if none)
	DroppedDay int `json:"dropped_day,omitempty"`
}

// Partitions returns the (day, hour) partitions of the plan, in ascending order
func (p *Plan) Partitions() []common.ArchivePath {
	var paths []common.ArchivePath
	for _, d := range p.Days {
		for _, h := range d.Hours {
			paths = append(paths, common.ArchivePath{Product: p.Product, Year: p.Year, Day: d.Day, Hour: h})
		}
	}
	return paths
}

// ForProduct returns the same plan for another product
func (p *Plan) ForProduct(product string) *Plan {
	cp := *p
	cp.Product = product
	return &cp
}

func contains(sorted []int, v int) bool {
	i := sort.SearchInts(sorted, v)
	return i < len(sorted) && sorted[i] == v
}

// Plan lists the partitions of the product between start and end (inclusive), keeping every sampling-th hour.
// Raise common.ErrUnsupportedRange if the range spans several years or if the year is not in the archive.
// If the end day is not listed, the window is shifted by one day and the last listed day is dropped.
func (w *Walker) Plan(ctx context.Context, product string, start, end time.Time, sampling int) (*Plan, error) {
	start, end = start.UTC(), end.UTC()
	if start.Year() != end.Year() {
		return nil, fmt.Errorf("Plan: %d and %d should be the same year: %w", start.Year(), end.Year(), common.ErrUnsupportedRange)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("Plan: end %v is before start %v: %w", end, start, common.ErrUnsupportedRange)
	}
	year := start.Year()

	years, err := w.ListYears(ctx, product)
	if err != nil {
		return nil, fmt.Errorf("Plan.%w", err)
	}
	if !contains(years, year) {
		return nil, fmt.Errorf("Plan: %d not in archive for %s: %w", year, product, common.ErrUnsupportedRange)
	}

	days, err := w.ListDays(ctx, product, year)
	if err != nil {
		return nil, fmt.Errorf("Plan.%w", err)
	}
	plan := &Plan{Product: product, Year: year, Start: start, End: end}
	startDay, endDay := common.DayOrdinal(start, year), common.DayOrdinal(end, year)
	if !contains(days, endDay) && len(days) > 0 {
		plan.DroppedDay = days[len(days)-1]
		startDay--
		endDay--
		log.Logger(ctx).Warn("end day not in archive: window shifted by one day",
			zap.String("product", product), zap.Int("dropped", plan.DroppedDay), zap.Int("start", startDay), zap.Int("end", endDay))
	}

	for day := startDay; day <= endDay; day++ {
		if day < 1 {
			continue
		}
		hours, err := w.ListHours(ctx, product, year, day)
		if err != nil {
			return nil, fmt.Errorf("Plan.%w", err)
		}
		plan.Days = append(plan.Days, DayPlan{
			Day:   day,
			Hours: SelectHours(hours, day == startDay, day == endDay, start.Hour(), end.Hour(), sampling),
		})
	}
	return plan, nil
}

// PlanLatest returns the plan of the last hour of the last day available in the archive, up to now
func (w *Walker) PlanLatest(ctx context.Context, product string, now time.Time) (*Plan, error) {
	now = now.UTC()
	years, err := w.ListYears(ctx, product)
	if err != nil {
		return nil, fmt.Errorf("PlanLatest.%w", err)
	}
	year := -1
	for _, y := range years {
		if y <= now.Year() {
			year = y
		}
	}
	if year < 0 {
		return nil, fmt.Errorf("PlanLatest: no data for %s: %w", product, common.ErrArchiveUnavailable)
	}

	days, err := w.ListDays(ctx, product, year)
	if err != nil {
		return nil, fmt.Errorf("PlanLatest.%w", err)
	}
	for i := len(days) - 1; i >= 0; i-- {
		hours, err := w.ListHours(ctx, product, year, days[i])
		if err != nil {
			return nil, fmt.Errorf("PlanLatest.%w", err)
		}
		if len(hours) == 0 {
			continue
		}
		hour := hours[len(hours)-1]
		t := common.DayDate(year, days[i]).Add(time.Duration(hour) * time.Hour)
		return &Plan{
			Product: product,
			Year:    year,
			Start:   t,
			End:     t.Add(time.Hour - time.Nanosecond),
			Days:    []DayPlan{{Day: days[i], Hours: []int{hour}}},
		}, nil
	}
	return nil, fmt.Errorf("PlanLatest: no data for %s in %d: %w", product, year, common.ErrArchiveUnavailable)
}
