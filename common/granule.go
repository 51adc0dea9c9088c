package common

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
)

// GranulePrefix is the optional prefix of operational granule names
const GranulePrefix = "OR_"

// GranuleExtension is the extension of the granules stored in the archive
const GranuleExtension = ".nc"

// GranuleKey is the parsed identity of one archive object
// {levelProduct}{channel:3}_{satellite}_s{start}_e{end}_c{creation}.ext
type GranuleKey struct {
	Name      string    // Base name of the object (identity)
	Product   string    // Level and product code (e.g. ABI-L2-FDCC)
	Channel   string    // Last three characters of the first field (e.g. -M6, C13)
	Satellite string    // e.g. G16
	Start     time.Time // Capture start-time
	End       time.Time // Capture end-time
	Created   time.Time // Creation time
}

// ParseGranuleName parses the base name of an archive object.
// Returns an error wrapping ErrFilenameFormat if the name does not respect the grammar.
func ParseGranuleName(name string) (GranuleKey, error) {
	base := path.Base(name)
	stem := strings.TrimPrefix(base, GranulePrefix)
	stem = strings.TrimSuffix(stem, path.Ext(stem))

	parts := strings.Split(stem, "_")
	if len(parts) != 5 {
		return GranuleKey{}, fmt.Errorf("%s: expecting 5 fields, got %d: %w", base, len(parts), ErrFilenameFormat)
	}
	if len(parts[0]) < 3 {
		return GranuleKey{}, fmt.Errorf("%s: product field too short: %w", base, ErrFilenameFormat)
	}

	k := GranuleKey{
		Name:      base,
		Product:   parts[0][:len(parts[0])-3],
		Channel:   parts[0][len(parts[0])-3:],
		Satellite: parts[1],
	}
	var err error
	for _, f := range []struct {
		prefix string
		field  string
		t      *time.Time
	}{{"s", parts[2], &k.Start}, {"e", parts[3], &k.End}, {"c", parts[4], &k.Created}} {
		if !strings.HasPrefix(f.field, f.prefix) {
			return GranuleKey{}, fmt.Errorf("%s: field %s must start with '%s': %w", base, f.field, f.prefix, ErrFilenameFormat)
		}
		if *f.t, err = ParseGranuleTime(f.field[1:]); err != nil {
			return GranuleKey{}, fmt.Errorf("%s: %w", base, err)
		}
	}
	return k, nil
}

// ParseGranuleTime parses a time formatted as YYYYjjjHHMMSS[f...] where jjj is the day of year
// and f the fraction of second (one digit means tenths)
func ParseGranuleTime(s string) (time.Time, error) {
	if len(s) < 13 {
		return time.Time{}, fmt.Errorf("time %q too short: %w", s, ErrFilenameFormat)
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return time.Time{}, fmt.Errorf("time %q is not numeric: %w", s, ErrFilenameFormat)
		}
	}
	atoi := func(b, e int) int {
		v, _ := strconv.Atoi(s[b:e])
		return v
	}
	year, doy, hour, min, sec := atoi(0, 4), atoi(4, 7), atoi(7, 9), atoi(9, 11), atoi(11, 13)
	if doy < 1 || doy > DaysInYear(year) || hour > 23 || min > 59 || sec > 59 {
		return time.Time{}, fmt.Errorf("time %q out of range: %w", s, ErrFilenameFormat)
	}

	var nsec int
	if frac := s[13:]; frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		frac += strings.Repeat("0", 9-len(frac))
		nsec, _ = strconv.Atoi(frac)
	}
	return time.Date(year, time.January, doy, hour, min, sec, nsec, time.UTC), nil
}

// DaysInYear returns 365 or 366
func DaysInYear(year int) int {
	return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC).YearDay()
}

// ID returns the stable identity of the granule
func (k GranuleKey) ID() string {
	return k.Name
}

// CanonicalName returns the output filename derived from the capture start-time: YYYYMMDDTHHMMSSmmmZ.tif
func (k GranuleKey) CanonicalName() string {
	return CanonicalName(k.Start)
}

// CanonicalName returns the time-sortable name of a file captured at t
func CanonicalName(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s%03dZ.tif", t.Format("20060102T150405"), t.Nanosecond()/int(time.Millisecond))
}

// Day returns the ordinal day of the capture start-time
func (k GranuleKey) Day() int {
	return k.Start.YearDay()
}

// Hour returns the hour of the capture start-time
func (k GranuleKey) Hour() int {
	return k.Start.Hour()
}

// TimeBucket is a set of granules sharing the same capture start-time (one per channel)
type TimeBucket struct {
	Start time.Time
	Keys  []GranuleKey
}
