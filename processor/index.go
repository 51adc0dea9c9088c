package processor

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/airbusgeo/goes-ingester/common"
)

// NoScore is the score of an empty slot: any candidate replaces it
const NoScore = -1.

// Selection is the granule selected for a slot, with its clear-sky score
type Selection struct {
	Key   common.GranuleKey
	Score float64
}

// MarshalJSON implements json.Marshaler
func (s Selection) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Granule string    `json:"granule"`
		Start   time.Time `json:"start"`
		Score   float64   `json:"score"`
	}{s.Key.Name, s.Key.Start, s.Score})
}

// Slot identifies a (region, day, hour) of the index
type Slot struct {
	Region string `json:"region"`
	Day    int    `json:"day"`
	Hour   int    `json:"hour"`
}

// GranuleIndex maps each (region, day, hour) to its clearest granule. It is read-only.
type GranuleIndex struct {
	regions []string
	slots   map[string]map[int]map[int]Selection
}

// Best returns the selection of the slot, or false if the slot is absent
func (gi *GranuleIndex) Best(region string, day, hour int) (Selection, bool) {
	if gi == nil {
		return Selection{}, false
	}
	s, ok := gi.slots[region][day][hour]
	return s, ok
}

// Regions returns the regions of the index, in order
func (gi *GranuleIndex) Regions() []string {
	return append([]string(nil), gi.regions...)
}

// Slots returns the non-empty slots ordered by region, day and hour
func (gi *GranuleIndex) Slots() []Slot {
	var slots []Slot
	for _, r := range gi.regions {
		days := make([]int, 0, len(gi.slots[r]))
		for d := range gi.slots[r] {
			days = append(days, d)
		}
		sort.Ints(days)
		for _, d := range days {
			hours := make([]int, 0, len(gi.slots[r][d]))
			for h := range gi.slots[r][d] {
				hours = append(hours, h)
			}
			sort.Ints(hours)
			for _, h := range hours {
				slots = append(slots, Slot{Region: r, Day: d, Hour: h})
			}
		}
	}
	return slots
}

// Scores returns the scores of the non-empty slots of the region, ordered by day and hour
func (gi *GranuleIndex) Scores(region string) []float64 {
	var scores []float64
	for _, s := range gi.Slots() {
		if s.Region == region {
			scores = append(scores, gi.slots[s.Region][s.Day][s.Hour].Score)
		}
	}
	return scores
}

// Matching returns the regions, in order, whose selection for the day and hour was captured at start
func (gi *GranuleIndex) Matching(day, hour int, start time.Time) []string {
	var regions []string
	for _, r := range gi.regions {
		if s, ok := gi.slots[r][day][hour]; ok && s.Key.Start.Equal(start) {
			regions = append(regions, r)
		}
	}
	return regions
}

// Len returns the number of non-empty slots
func (gi *GranuleIndex) Len() int {
	n := 0
	for _, days := range gi.slots {
		for _, hours := range days {
			n += len(hours)
		}
	}
	return n
}

// MarshalJSON implements json.Marshaler: {region: {day: {hour: selection}}}
func (gi *GranuleIndex) MarshalJSON() ([]byte, error) {
	if gi == nil {
		return []byte("null"), nil
	}
	return json.Marshal(gi.slots)
}

// IndexBuilder collects the candidates of a GranuleIndex
type IndexBuilder struct {
	index *GranuleIndex
}

// NewIndexBuilder creates a builder for the regions
func NewIndexBuilder(regions []string) *IndexBuilder {
	gi := &GranuleIndex{
		regions: append([]string(nil), regions...),
		slots:   make(map[string]map[int]map[int]Selection, len(regions)),
	}
	for _, r := range regions {
		gi.slots[r] = map[int]map[int]Selection{}
	}
	return &IndexBuilder{index: gi}
}

// Offer proposes a candidate for the slot. It replaces the current selection only if its score is strictly greater.
// Returns true if the candidate is selected.
func (b *IndexBuilder) Offer(region string, day, hour int, key common.GranuleKey, score float64) bool {
	days, ok := b.index.slots[region]
	if !ok {
		return false
	}
	best := NoScore
	if s, ok := days[day][hour]; ok {
		best = s.Score
	}
	if score <= best {
		return false
	}
	if days[day] == nil {
		days[day] = map[int]Selection{}
	}
	days[day][hour] = Selection{Key: key, Score: score}
	return true
}

// Build returns the index. The builder must not be used afterwards.
func (b *IndexBuilder) Build() *GranuleIndex {
	gi := b.index
	b.index = nil
	return gi
}
