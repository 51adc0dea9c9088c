package raster

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/airbusgeo/goes-ingester/common"
)

// DecodeAAIGrid decodes an Arc/Info ASCII grid
func DecodeAAIGrid(r io.Reader) (*Band, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 64*1024*1024)
	scanner.Split(bufio.ScanWords)

	header := map[string]float64{}
	var first string
	for scanner.Scan() {
		key := strings.ToLower(scanner.Text())
		if _, err := strconv.ParseFloat(key, 64); err == nil {
			first = key
			break
		}
		if !scanner.Scan() {
			return nil, fmt.Errorf("DecodeAAIGrid: missing value of %s", key)
		}
		v, err := strconv.ParseFloat(scanner.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("DecodeAAIGrid: %s: %w", key, err)
		}
		header[key] = v
	}

	ncols, okc := header["ncols"]
	nrows, okr := header["nrows"]
	if !okc || !okr {
		return nil, fmt.Errorf("DecodeAAIGrid: missing ncols/nrows")
	}
	dx, dy := header["cellsize"], header["cellsize"]
	if v, ok := header["dx"]; ok {
		dx = v
	}
	if v, ok := header["dy"]; ok {
		dy = v
	}
	xll, yll := header["xllcorner"], header["yllcorner"]
	if v, ok := header["xllcenter"]; ok {
		xll = v - dx/2
	}
	if v, ok := header["yllcenter"]; ok {
		yll = v - dy/2
	}

	b := &Band{
		Width:        int(ncols),
		Height:       int(nrows),
		GeoTransform: [6]float64{xll, dx, 0, yll + nrows*dy, 0, -dy},
	}
	if nodata, ok := header["nodata_value"]; ok {
		b.NoData = &nodata
	}
	b.Data = make([]float64, 0, b.Width*b.Height)
	parse := func(s string) error {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("DecodeAAIGrid: pixel %d: %w", len(b.Data), err)
		}
		b.Data = append(b.Data, v)
		return nil
	}
	if first != "" {
		if err := parse(first); err != nil {
			return nil, err
		}
	}
	for scanner.Scan() {
		if err := parse(scanner.Text()); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("DecodeAAIGrid: %w", err)
	}
	if len(b.Data) != b.Width*b.Height {
		return nil, fmt.Errorf("DecodeAAIGrid: expecting %d pixels, got %d", b.Width*b.Height, len(b.Data))
	}
	return b, nil
}

// EncodeAAIGrid encodes the band as an Arc/Info ASCII grid.
// The grid must be north-up.
func EncodeAAIGrid(w io.Writer, b *Band) error {
	gt := b.GeoTransform
	if gt[2] != 0 || gt[4] != 0 {
		return fmt.Errorf("EncodeAAIGrid: rotated geotransform is not supported")
	}
	dx, dy := gt[1], math.Abs(gt[5])
	if len(b.Data) != b.Width*b.Height {
		return fmt.Errorf("EncodeAAIGrid: expecting %d pixels, got %d", b.Width*b.Height, len(b.Data))
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ncols %d\nnrows %d\nxllcorner %v\nyllcorner %v\n", b.Width, b.Height, gt[0], gt[3]-float64(b.Height)*dy)
	if dx == dy {
		fmt.Fprintf(bw, "cellsize %v\n", dx)
	} else {
		fmt.Fprintf(bw, "dx %v\ndy %v\n", dx, dy)
	}
	if b.NoData != nil {
		fmt.Fprintf(bw, "NODATA_value %v\n", *b.NoData)
	}
	for row := 0; row < b.Height; row++ {
		line := b.Data[row*b.Width : (row+1)*b.Width]
		for i, v := range line {
			if i > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func parsePoints(s string) ([]common.Point, error) {
	var pts []common.Point
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("parsePoints: invalid line %q", line)
		}
		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("parsePoints: %w", err)
		}
		y, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("parsePoints: %w", err)
		}
		if math.IsInf(x, 0) || math.IsInf(y, 0) {
			return nil, fmt.Errorf("parsePoints: failed to transform %q", line)
		}
		pts = append(pts, common.Point{X: x, Y: y})
	}
	return pts, nil
}
