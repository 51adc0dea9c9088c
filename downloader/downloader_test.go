package downloader_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/airbusgeo/goes-ingester/catalog"
	"github.com/airbusgeo/goes-ingester/common"
	"github.com/airbusgeo/goes-ingester/downloader"
	"github.com/airbusgeo/goes-ingester/interface/archive"
	"github.com/airbusgeo/goes-ingester/service"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// flakyArchive wraps an archive, throttling or failing the downloads
type flakyArchive struct {
	archive.Client
	throttles int
	err       error
	gets      int
}

func (a *flakyArchive) Get(ctx context.Context, keys []string, destDir string) error {
	a.gets++
	if a.throttles > 0 {
		a.throttles--
		return service.MakeThrottled(fmt.Errorf("TooManyRequests"))
	}
	if a.err != nil {
		return a.err
	}
	return a.Client.Get(ctx, keys, destDir)
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func writeGranule(root, product string, year, day, hour int, name string) {
	dir := filepath.Join(root, common.ArchivePath{Product: product, Year: year, Day: day, Hour: hour}.Prefix())
	Expect(os.MkdirAll(dir, 0755)).To(Succeed())
	Expect(os.WriteFile(filepath.Join(dir, name), []byte(name), 0644)).To(Succeed())
}

var _ = Describe("Staging", func() {
	var (
		root    string
		staging *downloader.Staging
	)

	BeforeEach(func() {
		var err error
		root, err = os.MkdirTemp("", "staging")
		Expect(err).NotTo(HaveOccurred())
		staging, err = downloader.NewStaging(root)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(root)
	})

	It("should create the directories lazily and idempotently", func() {
		Expect(staging.Root()).To(Equal(filepath.Join(root, downloader.StagingDir)))
		Expect(filepath.Join(staging.Root(), "241")).NotTo(BeADirectory())

		var wg sync.WaitGroup
		dirs := make([]string, 8)
		for i := range dirs {
			wg.Add(1)
			go func(i int) {
				defer GinkgoRecover()
				defer wg.Done()
				d, err := staging.Dir(241, 0)
				Expect(err).NotTo(HaveOccurred())
				dirs[i] = d
			}(i)
		}
		wg.Wait()
		for _, d := range dirs {
			Expect(d).To(Equal(filepath.Join(root, "tmp", "241", "0")))
		}
		Expect(dirs[0]).To(BeADirectory())
	})

	It("should list the staged files", func() {
		files, err := staging.Files(241, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(files).To(BeEmpty())

		d, err := staging.Dir(241, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(os.WriteFile(filepath.Join(d, "b.nc"), nil, 0644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(d, "a.nc"), nil, 0644)).To(Succeed())
		files, err = staging.Files(241, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(files).To(Equal([]string{filepath.Join(d, "a.nc"), filepath.Join(d, "b.nc")}))
	})

	It("should remove the whole tree on release", func() {
		_, err := staging.Dir(240, 23)
		Expect(err).NotTo(HaveOccurred())
		Expect(staging.Release()).To(Succeed())
		Expect(staging.Root()).NotTo(BeAnExistingFile())
		Expect(staging.Release()).To(Succeed())
		_, err = staging.Dir(240, 23)
		Expect(err).To(HaveOccurred())
		Expect(root).To(BeADirectory())
	})
})

var _ = Describe("Fetcher", func() {
	const (
		product = "ABI-L2-ACHAC"
		g1      = "OR_ABI-L2-ACHAC-M6_G16_s20232410001170_e20232410003543_c20232410004321.nc"
		g2      = "OR_ABI-L2-ACHAC-M6_G16_s20232410006170_e20232410008543_c20232410009321.nc"
		g3      = "OR_ABI-L2-ACHAC-M6_G16_s20232410101170_e20232410103543_c20232410104321.nc"
	)

	var (
		ctx         = context.Background()
		archiveRoot string
		workdir     string
		flaky       *flakyArchive
		walker      *catalog.Walker
		fetcher     *downloader.Fetcher
		staging     *downloader.Staging
	)

	BeforeEach(func() {
		var err error
		archiveRoot, err = os.MkdirTemp("", "archive")
		Expect(err).NotTo(HaveOccurred())
		workdir, err = os.MkdirTemp("", "workdir")
		Expect(err).NotTo(HaveOccurred())
		writeGranule(archiveRoot, product, 2023, 241, 0, g1)
		writeGranule(archiveRoot, product, 2023, 241, 0, g2)
		writeGranule(archiveRoot, product, 2023, 241, 0, "index.html")
		writeGranule(archiveRoot, product, 2023, 241, 1, g3)

		local := archive.NewLocalArchive(archiveRoot)
		retry := service.RetryPolicy{MaxAttempts: 3, Base: time.Second, Sleep: noSleep}
		flaky = &flakyArchive{Client: local}
		walker = &catalog.Walker{Archive: local, Retry: retry}
		fetcher = &downloader.Fetcher{Archive: flaky, Retry: retry}
		staging, err = downloader.NewStaging(workdir)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(staging.Release()).To(Succeed())
		os.RemoveAll(archiveRoot)
		os.RemoveAll(workdir)
	})

	plan := func() *catalog.Plan {
		return &catalog.Plan{Product: product, Year: 2023, Days: []catalog.DayPlan{{Day: 240}, {Day: 241, Hours: []int{0, 1, 2}}}}
	}

	It("should download all the granules of the plan", func() {
		staged, err := fetcher.FetchPlan(ctx, walker, plan(), staging, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(staged).To(HaveLen(3))
		Expect(staged[0].Key.Name).To(Equal(g1))
		Expect(staged[1].Key.Name).To(Equal(g2))
		Expect(staged[2].Hour).To(Equal(1))
		for _, s := range staged {
			Expect(s.Path).To(BeARegularFile())
		}
		files, err := staging.Files(241, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(files).To(HaveLen(2))
	})

	It("should only download the buckets accepted by the filter", func() {
		start := time.Date(2023, 8, 29, 0, 6, 17, 0, time.UTC)
		staged, err := fetcher.FetchPlan(ctx, walker, plan(), staging, func(day, hour int, b common.TimeBucket) bool {
			return b.Start.Equal(start)
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(staged).To(HaveLen(1))
		Expect(staged[0].Key.Name).To(Equal(g2))
		Expect(flaky.gets).To(Equal(1))
	})

	It("should retry the throttled downloads", func() {
		flaky.throttles = 2
		staged, err := fetcher.FetchPlan(ctx, walker, plan(), staging, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(staged).To(HaveLen(3))
		Expect(flaky.gets).To(Equal(4))
	})

	It("should fail when the retries are exhausted", func() {
		flaky.throttles = 3
		_, err := fetcher.FetchPlan(ctx, walker, plan(), staging, nil)
		Expect(err).To(MatchError(common.ErrDownloadFailed))
		Expect(err).To(MatchError(common.ErrThrottledRetryExceeded))
		Expect(flaky.gets).To(Equal(3))
	})

	It("should not retry the other errors", func() {
		flaky.err = fmt.Errorf("connection reset")
		err := fetcher.Fetch(ctx, []string{g1}, workdir)
		Expect(err).To(MatchError(common.ErrDownloadFailed))
		Expect(err).NotTo(MatchError(common.ErrThrottledRetryExceeded))
		Expect(flaky.gets).To(Equal(1))
	})
})
