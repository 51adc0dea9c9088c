package processor_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/airbusgeo/goes-ingester/catalog"
	"github.com/airbusgeo/goes-ingester/common"
	"github.com/airbusgeo/goes-ingester/downloader"
	"github.com/airbusgeo/goes-ingester/interface/archive"
	"github.com/airbusgeo/goes-ingester/interface/raster/rastertest"
	"github.com/airbusgeo/goes-ingester/processor"
	"github.com/airbusgeo/goes-ingester/region"
	"github.com/airbusgeo/goes-ingester/service"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Products", func() {
	It("should map the fire mask codes to a confidence", func() {
		for code, conf := range map[float64]float64{
			10: 1, 30: 1, 11: 0.9, 31: 0.9, 12: 0.8, 32: 0.8,
			13: 0.5, 33: 0.5, 14: 0.3, 34: 0.3, 15: 0.1, 35: 0.1,
			0: 0, 40: 0, 100: 0, 10.5: 0, -99: 0,
		} {
			Expect(processor.FireConfidence(code)).To(Equal(conf), "code %v", code)
		}
	})

	It("should apply the fire confidence transform", func() {
		band := rastertest.Uniform(2, 1, 13)
		band.Data[1] = 40
		out, err := processor.TransformFireConfidence.Apply(band)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Data).To(Equal([]float64{0.5, 0}))
		Expect(*out.NoData).To(BeZero())
		Expect(band.Data).To(Equal([]float64{13, 40}))

		same, err := processor.TransformNone.Apply(band)
		Expect(err).NotTo(HaveOccurred())
		Expect(same).To(BeIdenticalTo(band))

		_, err = processor.ProductTransform("unknown").Apply(band)
		Expect(err).To(HaveOccurred())
	})

	It("should provide the default products", func() {
		products := processor.DefaultProducts()
		Expect(products).To(HaveLen(6))
		Expect(products[0].Transform).To(Equal(processor.TransformFireConfidence))
		for _, p := range products {
			Expect(p.Validate()).To(Succeed())
		}
	})

	It("should load the products from a yaml file", func() {
		dir, err := os.MkdirTemp("", "products")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)

		file := filepath.Join(dir, "products.yaml")
		Expect(os.WriteFile(file, []byte(`products:
  - name: wld_map
    collection: ABI-L2-FDCC
    variable: Mask
    transform: fire_confidence
  - name: temp
    collection: ABI-L2-FDCC
    variable: Temp
`), 0644)).To(Succeed())
		products, err := processor.LoadProducts(file)
		Expect(err).NotTo(HaveOccurred())
		Expect(products).To(Equal([]processor.Product{
			{Name: "wld_map", Collection: "ABI-L2-FDCC", Variable: "Mask", Transform: processor.TransformFireConfidence},
			{Name: "temp", Collection: "ABI-L2-FDCC", Variable: "Temp"},
		}))

		Expect(os.WriteFile(file, []byte("products:\n  - name: x\n    collection: y\n    variable: z\n    transform: blur\n"), 0644)).To(Succeed())
		_, err = processor.LoadProducts(file)
		Expect(err).To(MatchError(ContainSubstring("unknown transform")))

		Expect(os.WriteFile(file, []byte("products:\n  - name: x\n    collection: y\n"), 0644)).To(Succeed())
		_, err = processor.LoadProducts(file)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Synchronizer", func() {
	var (
		ctx         = context.Background()
		archiveRoot string
		root        string
		engine      *rastertest.Engine
		sync        *processor.Synchronizer
		regions     common.RegionSet
		index       *processor.GranuleIndex
	)

	t0 := time.Date(2023, 8, 29, 0, 1, 17, 0, time.UTC)
	t1 := time.Date(2023, 8, 29, 0, 6, 17, 0, time.UTC)
	plan := &catalog.Plan{Product: processor.CloudCollection, Year: 2023, Days: []catalog.DayPlan{{Day: 241, Hours: []int{0, 1}}}}

	writeFire := func(start time.Time, mask float64) {
		dir := filepath.Join(archiveRoot, common.ArchivePath{Product: processor.FireCollection, Year: 2023, Day: 241, Hour: start.Hour()}.Prefix())
		Expect(os.MkdirAll(dir, 0755)).To(Succeed())
		Expect(rastertest.WriteGranule(filepath.Join(dir, granuleName(processor.FireCollection, start)), rastertest.Granule{
			"Mask": rastertest.Layers{rastertest.DefaultTag: rastertest.Uniform(2, 2, mask)},
			"Temp": rastertest.Layers{rastertest.DefaultTag: rastertest.Uniform(2, 2, 300)},
		})).To(Succeed())
	}

	BeforeEach(func() {
		var err error
		archiveRoot, err = os.MkdirTemp("", "archive")
		Expect(err).NotTo(HaveOccurred())
		root, err = os.MkdirTemp("", "root")
		Expect(err).NotTo(HaveOccurred())
		writeFire(t0, 10)
		writeFire(t1, 13)

		regions, err = common.NewRegionSet(
			common.Region{ID: "R1", Polygon: square(0), Source: "/regions/R1.geojson"},
			common.Region{ID: "R2", Polygon: square(100), Source: "/regions/R2.geojson"},
			common.Region{ID: "R3", Polygon: square(200)},
		)
		Expect(err).NotTo(HaveOccurred())

		key0, _ := common.ParseGranuleName(granuleName(processor.CloudCollection, t0))
		key1, _ := common.ParseGranuleName(granuleName(processor.CloudCollection, t1))
		b := processor.NewIndexBuilder(regions.IDs())
		b.Offer("R1", 241, 0, key1, 0.7)
		b.Offer("R2", 241, 0, key1, 0.9)
		b.Offer("R3", 241, 0, key0, 0.2)
		index = b.Build()

		local := archive.NewLocalArchive(archiveRoot)
		retry := service.RetryPolicy{MaxAttempts: 1}
		engine = rastertest.NewEngine()
		sync = &processor.Synchronizer{
			Walker:     &catalog.Walker{Archive: local, Retry: retry},
			Fetcher:    &downloader.Fetcher{Archive: local, Retry: retry},
			Raster:     engine,
			WorkingCRS: "ESRI:102498",
			OutputCRS:  "EPSG:3857",
			Root:       root,
		}
	})

	AfterEach(func() {
		os.RemoveAll(archiveRoot)
		os.RemoveAll(root)
	})

	It("should produce one output per matching region", func() {
		outputs, err := sync.Sync(ctx, processor.Product{Name: "temp", Collection: processor.FireCollection, Variable: "Temp"}, plan, index, regions)
		Expect(err).NotTo(HaveOccurred())
		Expect(outputs).To(HaveLen(3))

		Expect(outputs[0].Region).To(Equal("R3"))
		Expect(outputs[0].Path).To(Equal(filepath.Join(root, "R3", "temp", "20230829T000117000Z.tif")))
		Expect(outputs[1].Region).To(Equal("R1"))
		Expect(outputs[1].Path).To(Equal(filepath.Join(root, "R1", "temp", "20230829T000617000Z.tif")))
		Expect(outputs[2].Region).To(Equal("R2"))
		for _, o := range outputs {
			Expect(o.Path).To(BeARegularFile())
			Expect(o.Product).To(Equal("temp"))
		}

		opts, ok := engine.WarpOptions(outputs[1].Path)
		Expect(ok).To(BeTrue())
		Expect(opts.Cutline).To(Equal("/regions/R1.geojson"))
		Expect(opts.SrcSRS).To(Equal("ESRI:102498"))
		Expect(opts.DstSRS).To(Equal("EPSG:3857"))
		opts, _ = engine.WarpOptions(outputs[0].Path)
		Expect(opts.CutlinePolygon).NotTo(BeNil())

		files, err := filepath.Glob(filepath.Join(root, "R1", "temp", "*.tif"))
		Expect(err).NotTo(HaveOccurred())
		Expect(files).To(HaveLen(1))
		Expect(filepath.Join(root, downloader.StagingDir)).NotTo(BeAnExistingFile())
	})

	It("should crop each region of a feature collection to its own polygon", func() {
		dir := filepath.Join(root, "regions")
		Expect(os.MkdirAll(dir, 0755)).To(Succeed())
		feature := func(p [4]common.Point) string {
			return fmt.Sprintf(`{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[%v,%v],[%v,%v],[%v,%v],[%v,%v],[%v,%v]]]}}`,
				p[0].X, p[0].Y, p[1].X, p[1].Y, p[2].X, p[2].Y, p[3].X, p[3].Y, p[0].X, p[0].Y)
		}
		file := filepath.Join(dir, "fires.geojson")
		Expect(os.WriteFile(file, []byte(`{"type":"FeatureCollection","features":[`+feature(square(0))+","+feature(square(100))+`]}`), 0644)).To(Succeed())
		loaded, err := region.LoadFile(file)
		Expect(err).NotTo(HaveOccurred())
		fires, err := common.NewRegionSet(loaded...)
		Expect(err).NotTo(HaveOccurred())

		key1, _ := common.ParseGranuleName(granuleName(processor.CloudCollection, t1))
		b := processor.NewIndexBuilder(fires.IDs())
		b.Offer("fires_0", 241, 0, key1, 0.7)
		b.Offer("fires_1", 241, 0, key1, 0.6)
		outputs, err := sync.Sync(ctx, processor.Product{Name: "temp", Collection: processor.FireCollection, Variable: "Temp"}, plan, b.Build(), fires)
		Expect(err).NotTo(HaveOccurred())
		Expect(outputs).To(HaveLen(2))

		tags := map[string]string{}
		for _, o := range outputs {
			opts, ok := engine.WarpOptions(o.Path)
			Expect(ok).To(BeTrue())
			Expect(opts.Cutline).To(BeEmpty())
			Expect(opts.CutlinePolygon).NotTo(BeNil())
			Expect(opts.CutlineSRS).To(Equal("ESRI:102498"))
			tags[o.Region] = rastertest.PolygonTag(*opts.CutlinePolygon)
		}
		Expect(tags).To(Equal(map[string]string{
			"fires_0": rastertest.PolygonTag(square(0)),
			"fires_1": rastertest.PolygonTag(square(100)),
		}))
	})

	It("should apply the transform of the product", func() {
		outputs, err := sync.Sync(ctx, processor.DefaultProducts()[0], plan, index, regions)
		Expect(err).NotTo(HaveOccurred())
		Expect(outputs).To(HaveLen(3))
		band, err := engine.ReadBand(ctx, outputs[1].Path)
		Expect(err).NotTo(HaveOccurred())
		Expect(band.Data).To(Equal([]float64{0.5, 0.5, 0.5, 0.5}))
		band, err = engine.ReadBand(ctx, outputs[0].Path)
		Expect(err).NotTo(HaveOccurred())
		Expect(band.Data).To(Equal([]float64{1, 1, 1, 1}))
	})

	It("should skip the granules that are not selected", func() {
		b := processor.NewIndexBuilder(regions.IDs())
		key1, _ := common.ParseGranuleName(granuleName(processor.CloudCollection, t1))
		b.Offer("R1", 241, 0, key1, 0.7)
		outputs, err := sync.Sync(ctx, processor.Product{Name: "mask", Collection: processor.FireCollection, Variable: "Mask"}, plan, b.Build(), regions)
		Expect(err).NotTo(HaveOccurred())
		Expect(outputs).To(HaveLen(1))
		Expect(engine.Extracted).To(HaveLen(1))
	})

	It("should export the outputs", func() {
		exportDir := filepath.Join(root, "export")
		storage, err := service.NewStorage(ctx, "file://"+exportDir)
		Expect(err).NotTo(HaveOccurred())
		sync.Storage = storage
		outputs, err := sync.Sync(ctx, processor.Product{Name: "mask", Collection: processor.FireCollection, Variable: "Mask"}, plan, index, regions)
		Expect(err).NotTo(HaveOccurred())
		Expect(outputs[1].URI).To(Equal(filepath.Join(exportDir, "R1", "mask", "20230829T000617000Z.tif")))
		Expect(outputs[1].URI).To(BeARegularFile())
	})

	It("should delete the exported outputs on error", func() {
		exportDir := filepath.Join(root, "export")
		storage, err := service.NewStorage(ctx, "file://"+exportDir)
		Expect(err).NotTo(HaveOccurred())
		sync.Storage = storage
		// R3 (t0) is exported before the granule of t1 fails
		engine.FailWarp["OR_ABI-L2-FDCC-M6_G16_s20232410006170_e20232410006179_c20232410006179_Mask.tif"] = os.ErrPermission
		outputs, err := sync.Sync(ctx, processor.Product{Name: "mask", Collection: processor.FireCollection, Variable: "Mask"}, plan, index, regions)
		Expect(err).To(MatchError(os.ErrPermission))
		Expect(outputs).To(HaveLen(1))
		Expect(outputs[0].Region).To(Equal("R3"))
		Expect(outputs[0].URI).To(BeEmpty())
		Expect(outputs[0].Path).To(BeARegularFile())
		Expect(filepath.Join(exportDir, "R3", "mask", "20230829T000117000Z.tif")).NotTo(BeAnExistingFile())
	})

	It("should release the staging on error", func() {
		engine.FailWarp["OR_ABI-L2-FDCC-M6_G16_s20232410006170_e20232410006179_c20232410006179_Temp.tif"] = os.ErrPermission
		_, err := sync.Sync(ctx, processor.Product{Name: "temp", Collection: processor.FireCollection, Variable: "Temp"}, plan, index, regions)
		Expect(err).To(MatchError(os.ErrPermission))
		Expect(filepath.Join(root, downloader.StagingDir)).NotTo(BeAnExistingFile())
	})
})
