package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/airbusgeo/goes-ingester/common"
	"github.com/airbusgeo/goes-ingester/processor"
	"github.com/airbusgeo/goes-ingester/service/log"
	"github.com/airbusgeo/goes-ingester/workflow"
	"github.com/araddon/dateparse"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// parseDate parses a date in any common layout (including dd-mm-yyyy), in UTC
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("02-01-2006", s); err == nil {
		return t, nil
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t.UTC(), nil
}

// isDateOnly returns true if the date has no time component
func isDateOnly(t time.Time) bool {
	return t.Equal(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC))
}

func runAcquisition(ctx context.Context, cfg *config, req workflow.Request) error {
	products, err := loadProducts(cfg)
	if err != nil {
		return err
	}
	req.Products = products
	wf, closeFn, err := newWorkflow(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	report, err := wf.Run(ctx, req)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(workflow.NewEvent(report))
}

func newLatestCmd(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Acquire the last available hour",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAcquisition(cmd.Context(), cfg, workflow.Request{Strategy: common.WindowLatestOnly})
		},
	}
}

func newRangeCmd(cfg *config) *cobra.Command {
	var start, end string
	var sampling int
	var perRegion bool
	cmd := &cobra.Command{
		Use:   "range",
		Short: "Acquire a time window (in a single year)",
		Long: `Acquire every hour (or every sampling-th hour) between start and end.
With --per-region, the window is the union of the windows of the regions
(start_date and end_date properties) and each region is only processed in its own window.

Examples:
  goes-ingester range --root out --regions-dir regions --start 20-08-2023 --end 21-08-2023
  goes-ingester range --root out --regions-dir regions --start "2023-08-20 06:00" --end "2023-08-20 18:00" --sampling 3
  goes-ingester range --root out --regions-dir regions --per-region`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if perRegion {
				return runAcquisition(cmd.Context(), cfg, workflow.Request{Strategy: common.WindowPerRegionRange})
			}
			if start == "" || end == "" {
				return fmt.Errorf("start and end are mandatory (or use --per-region)")
			}
			s, err := parseDate(start)
			if err != nil {
				return err
			}
			e, err := parseDate(end)
			if err != nil {
				return err
			}
			if isDateOnly(e) {
				e = e.Add(24*time.Hour - time.Second)
			}
			return runAcquisition(cmd.Context(), cfg, workflow.Request{Strategy: common.WindowFixedRange, Start: s, End: e, Sampling: sampling})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "start of the window (e.g. 20-08-2023, 2023-08-20T06:00:00Z)")
	cmd.Flags().StringVar(&end, "end", "", "end of the window, included (a date without time includes the whole day)")
	cmd.Flags().IntVar(&sampling, "sampling", 1, "keep every sampling-th hour")
	cmd.Flags().BoolVar(&perRegion, "per-region", false, "use the windows of the regions")
	return cmd
}

func newRegionsCmd(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "regions",
		Short: "List the regions, reprojected in the working crs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newRasterEngine(cfg)
			if err != nil {
				return err
			}
			regions, err := loadRegions(cmd.Context(), cfg, engine)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			for _, r := range regions.Regions() {
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newServeCmd(cfg *config) *cobra.Command {
	var listen, apiKey string
	var every time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Acquire the last available hour periodically and serve the status API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if every <= 0 {
				return fmt.Errorf("every must be positive")
			}
			products, err := loadProducts(cfg)
			if err != nil {
				return err
			}
			wf, closeFn, err := newWorkflow(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeFn()
			return serve(ctx, wf, products, listen, apiKey, every)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":8080", "address of the status API")
	cmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("GOES_INGESTER_API_KEY"), "bearer token of the status API (optional)")
	cmd.Flags().DurationVar(&every, "every", 10*time.Minute, "period of the acquisitions")
	return cmd
}

func serve(ctx context.Context, wf *workflow.Workflow, products []processor.Product, listen, apiKey string, every time.Duration) error {
	s := http.Server{
		Addr:    listen,
		Handler: bearerAuthenticate(apiKey, wf.NewHandler()),
	}
	errc := make(chan error, 1)
	go func() {
		log.Logger(ctx).Info("status API listening", zap.String("address", listen))
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("ListenAndServe: %w", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case err := <-errc:
			log.Logger(ctx).Error("status API", zap.Error(err))
			cancel()
		case <-ctx.Done():
		}
	}()

	err := wf.Serve(ctx, every, products)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	s.Shutdown(shutdownCtx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
