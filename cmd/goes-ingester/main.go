package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/airbusgeo/goes-ingester/common"
	"github.com/airbusgeo/goes-ingester/interface/archive"
	db "github.com/airbusgeo/goes-ingester/interface/database"
	"github.com/airbusgeo/goes-ingester/interface/database/jsonfile"
	"github.com/airbusgeo/goes-ingester/interface/database/pg"
	"github.com/airbusgeo/goes-ingester/interface/messaging/pubsub"
	"github.com/airbusgeo/goes-ingester/interface/raster"
	"github.com/airbusgeo/goes-ingester/interface/raster/godal"
	"github.com/airbusgeo/goes-ingester/processor"
	"github.com/airbusgeo/goes-ingester/region"
	"github.com/airbusgeo/goes-ingester/service"
	"github.com/airbusgeo/goes-ingester/service/log"
	"github.com/airbusgeo/goes-ingester/workflow"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type config struct {
	Root       string
	RegionsDir string

	// Archive
	Archive       string
	ArchiveBucket string
	LocalArchive  string
	AwsRegion     string
	RetryMax      int
	RetryBase     time.Duration

	// Processing
	CloudProduct  string
	CloudVariable string
	SourceCRS     string
	SourceLatLon  bool
	WorkingCRS    string
	OutputCRS     string
	RasterEngine  string
	GDALBinDir    string
	Concurrency   int
	ProductsFile  string

	// History
	History        string
	PgDbConnection string

	// Messaging
	PsProject  string
	EventTopic string

	// Export
	ExportURI string
}

func (c *config) validate() error {
	if c.Root == "" {
		return fmt.Errorf("missing root config flag")
	}
	if c.RegionsDir == "" {
		return fmt.Errorf("missing regions-dir config flag")
	}
	if c.RetryMax <= 0 {
		return fmt.Errorf("retry-max must be positive")
	}
	if c.Archive == "local" && c.LocalArchive == "" {
		return fmt.Errorf("missing local-archive config flag")
	}
	if c.History == "pg" && c.PgDbConnection == "" {
		return fmt.Errorf("missing pg-connection config flag")
	}
	if c.EventTopic != "" && c.PsProject == "" {
		return fmt.Errorf("missing ps-project config flag")
	}
	return nil
}

func newRootCmd() *cobra.Command {
	cfg := &config{}
	rootCmd := &cobra.Command{
		Use:   "goes-ingester",
		Short: "Acquire GOES-16 ABI products over a set of regions",
		Long: `Select, for each region and each hour, the clearest granule of the cloud product
then crop and reproject the derived products captured at the same instant.

Outputs are written in {root}/{region}/{product}/{YYYYMMDDTHHMMSSmmmZ}.tif`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.validate()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.Root, "root", "", "output root directory")
	flags.StringVar(&cfg.RegionsDir, "regions-dir", "", "directory of the regions (geojson files)")

	flags.StringVar(&cfg.Archive, "archive", "s3", "archive of the granules (s3, gcs, local)")
	flags.StringVar(&cfg.ArchiveBucket, "archive-bucket", "", "bucket of the archive (default: "+archive.GOES16Bucket+" for s3, "+archive.GOES16GSBucket+" for gcs)")
	flags.StringVar(&cfg.LocalArchive, "local-archive", "", "directory of a local mirror of the archive (archive=local)")
	flags.StringVar(&cfg.AwsRegion, "aws-region", archive.GOESAwsRegion, "region of the s3 bucket")
	flags.IntVar(&cfg.RetryMax, "retry-max", service.DefaultMaxAttempts, "maximum number of attempts of a throttled request")
	flags.DurationVar(&cfg.RetryBase, "retry-base", service.DefaultBackoffBase, "backoff after the first throttled request (doubled at each attempt)")

	flags.StringVar(&cfg.CloudProduct, "cloud-product", processor.CloudCollection, "product used to select the clearest granules")
	flags.StringVar(&cfg.CloudVariable, "cloud-variable", processor.DefaultCloudVariable, "variable of the cloud product (0: clear sky)")
	flags.StringVar(&cfg.SourceCRS, "source-crs", workflow.DefaultSourceCRS, "crs of the regions")
	flags.BoolVar(&cfg.SourceLatLon, "source-latlon", true, "coordinates of a geographic source crs are given to the transformer as (lat, lon)")
	flags.StringVar(&cfg.WorkingCRS, "working-crs", workflow.DefaultWorkingCRS, "crs of the granules")
	flags.StringVar(&cfg.OutputCRS, "output-crs", workflow.DefaultOutputCRS, "crs of the outputs")
	flags.StringVar(&cfg.RasterEngine, "raster-engine", "godal", "raster engine (godal, gdalcli)")
	flags.StringVar(&cfg.GDALBinDir, "gdal-bin-dir", "", "directory of the GDAL binaries (raster-engine=gdalcli, default: PATH)")
	flags.IntVar(&cfg.Concurrency, "concurrency", 4, "maximum number of regions processed in parallel")
	flags.StringVar(&cfg.ProductsFile, "products", "", "yaml file of the products (default: wld_map, cloud, mask, area, power, temp)")

	flags.StringVar(&cfg.History, "history", "json", "history of the cloud scores of the latest runs (json, pg, none)")
	flags.StringVar(&cfg.PgDbConnection, "pg-connection", "", "connection to the database (history=pg)")

	flags.StringVar(&cfg.PsProject, "ps-project", "", "pubsub project (gcp only/not required in local usage)")
	flags.StringVar(&cfg.EventTopic, "event-topic", "", "pubsub topic of the run events (optional)")

	flags.StringVar(&cfg.ExportURI, "export-uri", "", "storage uri where the outputs are copied (currently supported: local, gs)")

	rootCmd.AddCommand(newLatestCmd(cfg), newRangeCmd(cfg), newRegionsCmd(cfg), newServeCmd(cfg))
	return rootCmd
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func newArchive(ctx context.Context, cfg *config) (archive.Client, error) {
	switch cfg.Archive {
	case "s3":
		bucket := cfg.ArchiveBucket
		if bucket == "" {
			bucket = archive.GOES16Bucket
		}
		return archive.NewS3Archive(ctx, bucket, cfg.AwsRegion, os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY"))
	case "gcs":
		bucket := cfg.ArchiveBucket
		if bucket == "" {
			bucket = archive.GOES16GSBucket
		}
		return archive.NewGSArchive(ctx, bucket, os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "")
	case "local":
		return archive.NewLocalArchive(cfg.LocalArchive), nil
	}
	return nil, fmt.Errorf("unknown archive: %s", cfg.Archive)
}

type rasterEngine interface {
	raster.Engine
	raster.Transformer
}

func newRasterEngine(cfg *config) (rasterEngine, error) {
	switch cfg.RasterEngine {
	case "godal":
		return godal.New(), nil
	case "gdalcli":
		return &raster.CLIEngine{BinDir: cfg.GDALBinDir}, nil
	}
	return nil, fmt.Errorf("unknown raster engine: %s", cfg.RasterEngine)
}

// loadRegions loads the regions and reprojects them in the working crs
func loadRegions(ctx context.Context, cfg *config, transformer raster.Transformer) (common.RegionSet, error) {
	regions, err := region.Load(ctx, cfg.RegionsDir)
	if err != nil {
		return common.RegionSet{}, err
	}
	if regions.Len() == 0 {
		return common.RegionSet{}, fmt.Errorf("no region found in %s", cfg.RegionsDir)
	}
	return region.Reproject(ctx, regions, transformer, cfg.SourceCRS, cfg.WorkingCRS, cfg.SourceLatLon)
}

func loadProducts(cfg *config) ([]processor.Product, error) {
	if cfg.ProductsFile == "" {
		return processor.DefaultProducts(), nil
	}
	return processor.LoadProducts(cfg.ProductsFile)
}

// newWorkflow wires the workflow. The returned function releases the resources.
func newWorkflow(ctx context.Context, cfg *config) (*workflow.Workflow, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	arch, err := newArchive(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("archive[%s].%w", cfg.Archive, err)
	}
	engine, err := newRasterEngine(cfg)
	if err != nil {
		return nil, nil, err
	}
	regions, err := loadRegions(ctx, cfg, engine)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(cfg.Root, 0755); err != nil {
		return nil, nil, fmt.Errorf("root: %w", err)
	}

	wf := workflow.NewWorkflow(workflow.Config{
		Root:          cfg.Root,
		CloudProduct:  cfg.CloudProduct,
		CloudVariable: cfg.CloudVariable,
		WorkingCRS:    cfg.WorkingCRS,
		OutputCRS:     cfg.OutputCRS,
		Concurrency:   cfg.Concurrency,
		Retry:         service.RetryPolicy{MaxAttempts: cfg.RetryMax, Base: cfg.RetryBase},
	}, regions, arch, engine)

	var history db.History
	switch cfg.History {
	case "json":
		history = jsonfile.New(filepath.Join(cfg.Root, jsonfile.DefaultFileName))
	case "pg":
		backend, err := pg.New(ctx, cfg.PgDbConnection)
		if err != nil {
			return nil, nil, fmt.Errorf("history.%w", err)
		}
		closers = append(closers, func() { backend.Close() })
		if err := backend.CreateSchema(ctx); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("history.%w", err)
		}
		history = backend
	case "none", "":
	default:
		return nil, nil, fmt.Errorf("unknown history: %s", cfg.History)
	}
	wf.History = history

	if cfg.EventTopic != "" {
		publisher, err := pubsub.NewPublisher(ctx, cfg.PsProject, cfg.EventTopic)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("messaging.%w", err)
		}
		closers = append(closers, func() { publisher.Stop() })
		wf.Events = publisher
	}

	if cfg.ExportURI != "" {
		storage, err := service.NewStorage(ctx, cfg.ExportURI)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("storage[%s].%w", cfg.ExportURI, err)
		}
		wf.Synchronizer.Storage = storage
	}

	log.Logger(ctx).Sugar().Infof("workflow ready: %d regions, archive %s, engine %s", regions.Len(), arch.Name(), cfg.RasterEngine)
	return wf, closeAll, nil
}
