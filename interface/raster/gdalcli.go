package raster

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/goes-ingester/common"
	"github.com/airbusgeo/goes-ingester/service"
	"github.com/airbusgeo/goes-ingester/service/log"
	"go.uber.org/zap/zapcore"
)

// CLIEngine implements Engine and Transformer with the GDAL command-line tools
type CLIEngine struct {
	// BinDir is the directory of the GDAL binaries (optional, default: PATH)
	BinDir string
}

// GDALLogFilter formats the logs of the GDAL tools
type GDALLogFilter struct {
	lastError string
}

// WrapError wraps the error with the last error logged by the command
func (f *GDALLogFilter) WrapError(err error) error {
	if f.lastError != "" && err != nil {
		lower := strings.ToLower(f.lastError)
		if strings.Contains(lower, "timed out") || strings.Contains(lower, "temporary failure") {
			err = service.MakeTemporary(err)
		}
		return fmt.Errorf("%w (%v)", err, f.lastError)
	}
	return err
}

// Filter implement log.Filter
func (f *GDALLogFilter) Filter(msg string, defaultLevel zapcore.Level) (string, zapcore.Level, bool) {
	msg = strings.TrimSuffix(msg, "\n")
	trimmedmsg := strings.TrimSpace(msg)
	if strings.HasPrefix(trimmedmsg, "ERROR") || strings.HasPrefix(trimmedmsg, "FAILURE:") {
		f.lastError = msg
		return msg, zapcore.ErrorLevel, false
	} else if strings.HasPrefix(trimmedmsg, "Warning") {
		return msg, zapcore.WarnLevel, false
	} else if strings.HasPrefix(trimmedmsg, "0...10...20") {
		return msg, zapcore.DebugLevel, true
	}
	return msg, zapcore.DebugLevel, false
}

func (e *CLIEngine) command(name string) string {
	if e.BinDir == "" {
		return name
	}
	return filepath.Join(e.BinDir, name)
}

func (e *CLIEngine) run(ctx context.Context, cmd *exec.Cmd) error {
	filter := GDALLogFilter{}
	log.Logger(ctx).Debug(cmdToString(cmd))
	if err := log.Exec(ctx, cmd, log.StdoutLevel(zapcore.DebugLevel), log.StdoutFilter(&filter), log.StderrFilter(&filter)); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(cmd.Path), filter.WrapError(err))
	}
	return nil
}

func cmdToString(cmd *exec.Cmd) string {
	return strings.Join(cmd.Args, " ")
}

// ExtractSubdataset implements Engine
func (e *CLIEngine) ExtractSubdataset(ctx context.Context, src, variable, dst string) error {
	cmd := exec.Command(e.command("gdal_translate"), "-of", "GTiff", SubdatasetName(src, variable), dst)
	if err := e.run(ctx, cmd); err != nil {
		return fmt.Errorf("ExtractSubdataset.%w", err)
	}
	return nil
}

// Warp implements Engine
func (e *CLIEngine) Warp(ctx context.Context, src, dst string, opts WarpOptions) error {
	cutline, cleanup, err := CutlineArgs(opts, dst)
	defer cleanup()
	if err != nil {
		return fmt.Errorf("Warp.%w", err)
	}
	args := append(WarpArgs(opts), cutline...)
	cmd := exec.Command(e.command("gdalwarp"), append(args, src, dst)...)
	if err := e.run(ctx, cmd); err != nil {
		return fmt.Errorf("Warp.%w", err)
	}
	return nil
}

// ReadBand implements Engine
func (e *CLIEngine) ReadBand(ctx context.Context, path string) (*Band, error) {
	tmpdir, err := os.MkdirTemp("", "band")
	if err != nil {
		return nil, fmt.Errorf("ReadBand.MkdirTemp: %w", err)
	}
	defer os.RemoveAll(tmpdir)

	asc := filepath.Join(tmpdir, "band.asc")
	cmd := exec.Command(e.command("gdal_translate"), "-of", "AAIGrid", "-b", "1", path, asc)
	if err := e.run(ctx, cmd); err != nil {
		return nil, fmt.Errorf("ReadBand.%w", err)
	}
	f, err := os.Open(asc)
	if err != nil {
		return nil, fmt.Errorf("ReadBand.Open: %w", err)
	}
	defer f.Close()
	band, err := DecodeAAIGrid(f)
	if err != nil {
		return nil, fmt.Errorf("ReadBand[%s].%w", path, err)
	}
	if prj, err := os.ReadFile(strings.TrimSuffix(asc, ".asc") + ".prj"); err == nil {
		band.Projection = strings.TrimSpace(string(prj))
	}
	return band, nil
}

// WriteBand implements Engine
func (e *CLIEngine) WriteBand(ctx context.Context, band *Band, dst string) error {
	tmpdir, err := os.MkdirTemp("", "band")
	if err != nil {
		return fmt.Errorf("WriteBand.MkdirTemp: %w", err)
	}
	defer os.RemoveAll(tmpdir)

	asc := filepath.Join(tmpdir, "band.asc")
	f, err := os.Create(asc)
	if err != nil {
		return fmt.Errorf("WriteBand.Create: %w", err)
	}
	if err := EncodeAAIGrid(f, band); err != nil {
		f.Close()
		return fmt.Errorf("WriteBand.%w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("WriteBand.Close: %w", err)
	}

	args := []string{"-of", "GTiff", "-ot", "Float32"}
	if band.Projection != "" {
		args = append(args, "-a_srs", band.Projection)
	}
	cmd := exec.Command(e.command("gdal_translate"), append(args, asc, dst)...)
	if err := e.run(ctx, cmd); err != nil {
		return fmt.Errorf("WriteBand.%w", err)
	}
	return nil
}

// Transform implements Transformer
func (e *CLIEngine) Transform(ctx context.Context, srcSRS, dstSRS string, pts []common.Point) ([]common.Point, error) {
	var stdin, stdout bytes.Buffer
	for _, p := range pts {
		fmt.Fprintf(&stdin, "%v %v\n", p.X, p.Y)
	}
	cmd := exec.Command(e.command("gdaltransform"), "-s_srs", srcSRS, "-t_srs", dstSRS, "-output_xy")
	cmd.Stdin = &stdin
	cmd.Stdout = &stdout
	if err := e.run(ctx, cmd); err != nil {
		return nil, fmt.Errorf("Transform.%w", err)
	}
	res, err := parsePoints(stdout.String())
	if err != nil {
		return nil, fmt.Errorf("Transform.%w", err)
	}
	if len(res) != len(pts) {
		return nil, fmt.Errorf("Transform: expecting %d points, got %d", len(pts), len(res))
	}
	return res, nil
}
