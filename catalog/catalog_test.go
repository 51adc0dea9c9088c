package catalog_test

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/airbusgeo/goes-ingester/catalog"
	"github.com/airbusgeo/goes-ingester/common"
	"github.com/airbusgeo/goes-ingester/interface/archive"
	"github.com/airbusgeo/goes-ingester/service"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// fakeArchive implements archive.Client
type fakeArchive struct {
	tree      map[string][]string // prefix -> children (sub-prefixes end with '/')
	throttles int                 // number of throttled calls before success
	err       error
	calls     []string
}

func (a *fakeArchive) Name() string { return "fake" }

func (a *fakeArchive) List(ctx context.Context, prefix string) ([]archive.Entry, error) {
	a.calls = append(a.calls, prefix)
	if a.throttles > 0 {
		a.throttles--
		return nil, service.MakeThrottled(fmt.Errorf("SlowDown"))
	}
	if a.err != nil {
		return nil, a.err
	}
	var entries []archive.Entry
	for _, c := range a.tree[prefix] {
		entries = append(entries, archive.Entry{Key: prefix + c, IsDir: strings.HasSuffix(c, "/")})
	}
	return entries, nil
}

func (a *fakeArchive) Get(ctx context.Context, keys []string, destDir string) error {
	return fmt.Errorf("not implemented")
}

type sleepRecorder struct {
	sleeps []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.sleeps = append(s.sleeps, d)
	return nil
}

func newArchive() *fakeArchive {
	return &fakeArchive{tree: map[string][]string{
		"P/":          {"2022/", "2023/", "index.html"},
		"P/2023/":     {"239/", "240/", "241/"},
		"P/2023/239/": {"20/", "21/", "22/", "23/"},
		"P/2023/240/": {"00/", "01/", "02/", "03/", "04/", "05/", "06/", "07/", "08/", "09/", "10/", "11/", "12/"},
		"P/2023/241/": {"00/", "01/", "02/"},
		"P/2023/241/00/": {
			"OR_ABI-L2-ACMC-M6_G16_s20232410001170_e20232410003543_c20232410004321.nc",
			"OR_ABI-L2-ACMC-M6_G16_s20232410006170_e20232410008543_c20232410009321.nc",
			"sub/",
		},
	}}
}

var _ = Describe("Walker", func() {
	var (
		ctx     = context.Background()
		fake    *fakeArchive
		sleeper *sleepRecorder
		walker  *catalog.Walker
	)

	BeforeEach(func() {
		fake = newArchive()
		sleeper = &sleepRecorder{}
		walker = &catalog.Walker{Archive: fake, Retry: service.RetryPolicy{MaxAttempts: 3, Base: 120 * time.Second, Sleep: sleeper.Sleep}}
	})

	Context("listing", func() {
		It("should list the numeric partitions", func() {
			years, err := walker.ListYears(ctx, "P")
			Expect(err).NotTo(HaveOccurred())
			Expect(years).To(Equal([]int{2022, 2023}))

			days, err := walker.ListDays(ctx, "P", 2023)
			Expect(err).NotTo(HaveOccurred())
			Expect(days).To(Equal([]int{239, 240, 241}))

			hours, err := walker.ListHours(ctx, "P", 2023, 241)
			Expect(err).NotTo(HaveOccurred())
			Expect(hours).To(Equal([]int{0, 1, 2}))
		})

		It("should list the granules in listing order", func() {
			granules, err := walker.ListGranules(ctx, common.ArchivePath{Product: "P", Year: 2023, Day: 241, Hour: 0})
			Expect(err).NotTo(HaveOccurred())
			Expect(granules).To(HaveLen(2))
			Expect(granules[0].Name()).To(HavePrefix("OR_ABI-L2-ACMC-M6_G16_s20232410001170"))
		})

		It("should retry on throttling with an exponential backoff", func() {
			fake.throttles = 2
			years, err := walker.ListYears(ctx, "P")
			Expect(err).NotTo(HaveOccurred())
			Expect(years).To(Equal([]int{2022, 2023}))
			Expect(fake.calls).To(HaveLen(3))
			Expect(sleeper.sleeps).To(Equal([]time.Duration{120 * time.Second, 240 * time.Second}))
		})

		It("should fail when the retries are exhausted", func() {
			fake.throttles = 3
			_, err := walker.ListYears(ctx, "P")
			Expect(err).To(MatchError(common.ErrArchiveUnavailable))
			Expect(err).To(MatchError(common.ErrThrottledRetryExceeded))
			Expect(fake.calls).To(HaveLen(3))
			Expect(sleeper.sleeps).To(HaveLen(2))
		})

		It("should not retry other errors", func() {
			fake.err = fmt.Errorf("AccessDenied")
			_, err := walker.ListDays(ctx, "P", 2023)
			Expect(err).To(MatchError(common.ErrArchiveUnavailable))
			Expect(err).NotTo(MatchError(common.ErrThrottledRetryExceeded))
			Expect(fake.calls).To(HaveLen(1))
			Expect(sleeper.sleeps).To(BeEmpty())
		})
	})

	Context("planning", func() {
		It("should reject cross-year ranges without any remote call", func() {
			_, err := walker.Plan(ctx, "P", time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC), time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), 1)
			Expect(err).To(MatchError(common.ErrUnsupportedRange))
			Expect(fake.calls).To(BeEmpty())
		})

		It("should reject a year that is not in the archive", func() {
			_, err := walker.Plan(ctx, "P", time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2021, 5, 2, 0, 0, 0, 0, time.UTC), 1)
			Expect(err).To(MatchError(common.ErrUnsupportedRange))
		})

		It("should trim the hours of the first and last days", func() {
			start := time.Date(2023, 8, 27, 21, 0, 0, 0, time.UTC) // day 239
			end := time.Date(2023, 8, 28, 10, 0, 0, 0, time.UTC)   // day 240
			plan, err := walker.Plan(ctx, "P", start, end, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(plan.DroppedDay).To(Equal(0))
			Expect(plan.Days).To(Equal([]catalog.DayPlan{
				{Day: 239, Hours: []int{21, 22, 23}},
				{Day: 240, Hours: []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
			}))
		})

		It("should sample every Nth hour", func() {
			day := time.Date(2023, 8, 28, 0, 0, 0, 0, time.UTC) // day 240
			plan, err := walker.Plan(ctx, "P", day, day.Add(23*time.Hour), 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(plan.Days).To(Equal([]catalog.DayPlan{{Day: 240, Hours: []int{0, 3, 6, 9, 12}}}))
		})

		It("should shift the window when the end day is not in the archive", func() {
			start := time.Date(2023, 8, 29, 0, 0, 0, 0, time.UTC) // day 241
			end := time.Date(2023, 8, 30, 23, 0, 0, 0, time.UTC)  // day 242
			plan, err := walker.Plan(ctx, "P", start, end, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(plan.DroppedDay).To(Equal(241))
			Expect(plan.Days).To(HaveLen(2))
			Expect(plan.Days[0].Day).To(Equal(240))
			Expect(plan.Days[1]).To(Equal(catalog.DayPlan{Day: 241, Hours: []int{0, 1, 2}}))
			Expect(plan.Partitions()).To(HaveLen(13 + 3))
		})

		It("should plan the latest hour", func() {
			plan, err := walker.PlanLatest(ctx, "P", time.Date(2023, 8, 29, 3, 0, 0, 0, time.UTC))
			Expect(err).NotTo(HaveOccurred())
			Expect(plan.Year).To(Equal(2023))
			Expect(plan.Days).To(Equal([]catalog.DayPlan{{Day: 241, Hours: []int{2}}}))
			Expect(plan.Start).To(Equal(time.Date(2023, 8, 29, 2, 0, 0, 0, time.UTC)))
			Expect(plan.ForProduct("Q").Product).To(Equal("Q"))
			Expect(plan.Product).To(Equal("P"))
		})
	})
})

var _ = Describe("Bucketer", func() {
	It("should keep the boundary hours", func() {
		hours := []int{3, 4, 5, 6, 9, 10, 11, 12}
		Expect(catalog.SelectHours(hours, true, false, 5, 0, 1)).To(Equal([]int{5, 6, 9, 10, 11, 12}))
		Expect(catalog.SelectHours(hours, false, true, 0, 10, 1)).To(Equal([]int{3, 4, 5, 6, 9, 10}))
		Expect(catalog.SelectHours(hours, true, true, 5, 10, 0)).To(Equal([]int{5, 6, 9, 10}))
		Expect(catalog.SelectHours(hours, false, false, 5, 10, 0)).To(Equal(hours))
	})

	It("should sample before trimming", func() {
		hours := []int{0, 1, 2, 3, 4, 5, 6, 7}
		Expect(catalog.SelectHours(hours, true, false, 3, 0, 2)).To(Equal([]int{4, 6}))
	})

	It("should group the granules by start-time", func() {
		keys, objects, err := catalog.ParseEntries([]archive.Entry{
			{Key: "P/2023/241/00/OR_ABI-L2-CMIPC-M6C01_G16_s20232410001170_e20232410003543_c20232410004321.nc"},
			{Key: "P/2023/241/00/OR_ABI-L2-CMIPC-M6C02_G16_s20232410001170_e20232410003543_c20232410004322.nc"},
			{Key: "P/2023/241/00/OR_ABI-L2-CMIPC-M6C01_G16_s20232410006170_e20232410008543_c20232410009321.nc"},
			{Key: "P/2023/241/00/index.html"},
			{Key: "P/2023/241/00/sub/", IsDir: true},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(objects).To(HaveLen(3))
		buckets := catalog.Group(keys)
		Expect(buckets).To(HaveLen(2))
		Expect(buckets[0].Keys).To(HaveLen(2))
		Expect(buckets[0].Keys[0].Channel).To(Equal("C01"))
		Expect(buckets[0].Keys[1].Channel).To(Equal("C02"))
		Expect(buckets[1].Start).To(Equal(time.Date(2023, 8, 29, 0, 6, 17, 0, time.UTC)))
	})

	It("should fail on a malformed granule name", func() {
		_, _, err := catalog.ParseEntries([]archive.Entry{{Key: "P/2023/241/00/OR_ABI_G16.nc"}})
		Expect(err).To(MatchError(common.ErrFilenameFormat))
	})
})
