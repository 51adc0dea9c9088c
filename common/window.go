package common

import (
	"fmt"
	"time"
)

//go:generate go run github.com/dmarkham/enumer -json -type WindowStrategy -trimprefix Window

// WindowStrategy defines how the time window of an acquisition is computed
type WindowStrategy int

const (
	WindowLatestOnly     WindowStrategy = iota // Last hour of the last day available in the archive
	WindowFixedRange                           // User-defined [start, end]
	WindowPerRegionRange                       // Union of the windows of the regions, each region being processed in its own window
)

// ArchivePath identifies a partition of the archive: {product}/{year}/{day}/{hour}/
// Day and Hour are ignored when negative
type ArchivePath struct {
	Product string
	Year    int
	Day     int
	Hour    int
}

// Prefix returns the object prefix of the partition
func (p ArchivePath) Prefix() string {
	switch {
	case p.Year < 0:
		return p.Product + "/"
	case p.Day < 0:
		return fmt.Sprintf("%s/%d/", p.Product, p.Year)
	case p.Hour < 0:
		return fmt.Sprintf("%s/%d/%03d/", p.Product, p.Year, p.Day)
	}
	return fmt.Sprintf("%s/%d/%03d/%02d/", p.Product, p.Year, p.Day, p.Hour)
}

// DayOrdinal returns the day-of-year of date, counted from the 1st of January of year
func DayOrdinal(date time.Time, year int) int {
	jan1 := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return int(d.Sub(jan1).Hours()/24) + 1
}

// DayDate returns the date of the ordinal day of the year
func DayDate(year, day int) time.Time {
	return time.Date(year, time.January, day, 0, 0, 0, 0, time.UTC)
}
