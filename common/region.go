package common

import (
	"fmt"
	"time"
)

// Point is a planar coordinate in a given CRS
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Region is an area of interest, bounded by a 4-point polygon.
type Region struct {
	ID      string     `json:"id"`
	Polygon [4]Point   `json:"polygon"`
	Source  string     `json:"source"` // Path to the spatial definition, used as cutline
	Start   *time.Time `json:"start_date,omitempty"`
	End     *time.Time `json:"end_date,omitempty"`
}

// HasWindow returns true if the region is time-scoped
func (r Region) HasWindow() bool {
	return r.Start != nil && r.End != nil
}

// Covers returns true if the region is not time-scoped or if t is in its window (inclusive)
func (r Region) Covers(t time.Time) bool {
	if r.Start != nil && t.Before(*r.Start) {
		return false
	}
	if r.End != nil && t.After(*r.End) {
		return false
	}
	return true
}

// WithPolygon returns a copy of the region with a new polygon
func (r Region) WithPolygon(p [4]Point) Region {
	r.Polygon = p
	return r
}

// RegionSet is an ordered collection of regions with unique ids. It is immutable.
type RegionSet struct {
	regions []Region
	byID    map[string]int
}

// NewRegionSet creates a RegionSet, ensuring the ids are unique
func NewRegionSet(regions ...Region) (RegionSet, error) {
	rs := RegionSet{
		regions: make([]Region, 0, len(regions)),
		byID:    make(map[string]int, len(regions)),
	}
	for _, r := range regions {
		if r.ID == "" {
			return RegionSet{}, fmt.Errorf("NewRegionSet: empty region id: %w", ErrInvalidGeometry)
		}
		if _, ok := rs.byID[r.ID]; ok {
			return RegionSet{}, fmt.Errorf("NewRegionSet: duplicate region id %s", r.ID)
		}
		rs.byID[r.ID] = len(rs.regions)
		rs.regions = append(rs.regions, r)
	}
	return rs, nil
}

// Regions returns a copy of the regions, in order
func (rs RegionSet) Regions() []Region {
	return append([]Region(nil), rs.regions...)
}

// IDs returns the ids of the regions, in order
func (rs RegionSet) IDs() []string {
	ids := make([]string, len(rs.regions))
	for i, r := range rs.regions {
		ids[i] = r.ID
	}
	return ids
}

// Get returns the region with the given id
func (rs RegionSet) Get(id string) (Region, bool) {
	i, ok := rs.byID[id]
	if !ok {
		return Region{}, false
	}
	return rs.regions[i], true
}

// Len returns the number of regions
func (rs RegionSet) Len() int {
	return len(rs.regions)
}
