package stats

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fixshop/internal/domain"
)

func warrantyAt(issued time.Time, cost string, status domain.WarrantyStatus) domain.Warranty {
	w := domain.Warranty{IssuedAt: issued, Status: status}
	if cost != "" {
		c := decimal.RequireFromString(cost)
		w.RepairCost = &c
	}
	return w
}

func TestWindowStart(t *testing.T) {
	cases := []struct {
		now  time.Time
		want time.Time
	}{
		{time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC), time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := windowStart(tc.now); !got.Equal(tc.want) {
			t.Errorf("windowStart(%s) = %s, want %s", tc.now, got, tc.want)
		}
	}
}

func TestReduceWeeklyBuckets(t *testing.T) {
	// Saturday 15 June 2024.
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	warranties := []domain.Warranty{
		warrantyAt(time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC), "10", domain.WarrantyActive),
		warrantyAt(time.Date(2024, 6, 9, 23, 59, 59, 0, time.UTC), "5", domain.WarrantyActive),
		warrantyAt(time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC), "7", domain.WarrantyActive),
		warrantyAt(time.Date(2024, 6, 8, 23, 59, 59, 0, time.UTC), "1000", domain.WarrantyActive),
		warrantyAt(time.Date(2024, 6, 12, 9, 0, 0, 0, time.UTC), "", domain.WarrantyVoid),
	}

	b := reduce(now, warranties)

	labels := []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
	for i, p := range b.Weekly {
		if p.Label != labels[i] {
			t.Errorf("weekly[%d].Label = %s, want %s", i, p.Label, labels[i])
		}
	}
	if !b.Weekly[0].Value.Equal(decimal.NewFromInt(15)) {
		t.Errorf("weekly[0] = %s, want 15", b.Weekly[0].Value)
	}
	if !b.Weekly[6].Value.Equal(decimal.NewFromInt(7)) {
		t.Errorf("weekly[6] = %s, want 7", b.Weekly[6].Value)
	}
	if !b.Weekly[3].Value.IsZero() {
		t.Errorf("null cost should count as zero, got %s", b.Weekly[3].Value)
	}
	if !b.MonthlyRevenue.Equal(decimal.NewFromInt(1022)) {
		t.Errorf("monthly revenue = %s, want 1022", b.MonthlyRevenue)
	}
	if b.Active != 4 {
		t.Errorf("active = %d, want 4", b.Active)
	}
}

func TestReduceMonthlyBucketsMatchYearAndMonth(t *testing.T) {
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	warranties := []domain.Warranty{
		warrantyAt(time.Date(2023, 4, 2, 0, 0, 0, 0, time.UTC), "100", domain.WarrantyActive),
		warrantyAt(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "50", domain.WarrantyActive),
		warrantyAt(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), "25", domain.WarrantyClaimed),
		// Same month a year earlier falls outside the chart.
		warrantyAt(time.Date(2023, 3, 20, 0, 0, 0, 0, time.UTC), "999", domain.WarrantyActive),
	}

	b := reduce(now, warranties)

	if len(b.Monthly) != 12 || len(b.Jobs) != 12 {
		t.Fatalf("chart lengths = %d/%d, want 12", len(b.Monthly), len(b.Jobs))
	}
	if b.Monthly[0].Label != "Apr" || b.Monthly[11].Label != "Mar" {
		t.Fatalf("labels = %s..%s, want Apr..Mar", b.Monthly[0].Label, b.Monthly[11].Label)
	}
	if !b.Monthly[0].Value.Equal(decimal.NewFromInt(100)) || b.Jobs[0].Count != 1 {
		t.Errorf("april = %s/%d", b.Monthly[0].Value, b.Jobs[0].Count)
	}
	if !b.Monthly[11].Value.Equal(decimal.NewFromInt(75)) || b.Jobs[11].Count != 2 {
		t.Errorf("march = %s/%d", b.Monthly[11].Value, b.Jobs[11].Count)
	}
	var sum int64
	for _, j := range b.Jobs {
		sum += j.Count
	}
	if sum != 3 {
		t.Errorf("charted warranties = %d, want 3", sum)
	}
}

func TestReduceUsesReportingLocation(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	issued := time.Date(2024, 6, 30, 20, 0, 0, 0, time.UTC) // 1 July 01:30 IST
	now := time.Date(2024, 7, 1, 6, 0, 0, 0, time.UTC)
	warranties := []domain.Warranty{warrantyAt(issued, "300", domain.WarrantyActive)}

	local := reduce(now.In(ist), warranties)
	if !local.MonthlyRevenue.Equal(decimal.NewFromInt(300)) {
		t.Errorf("IST monthly revenue = %s, want 300", local.MonthlyRevenue)
	}
	if !local.Weekly[6].Value.Equal(decimal.NewFromInt(300)) {
		t.Errorf("IST today = %s, want 300", local.Weekly[6].Value)
	}

	utc := reduce(now, warranties)
	if !utc.MonthlyRevenue.IsZero() {
		t.Errorf("UTC monthly revenue = %s, want 0", utc.MonthlyRevenue)
	}
	if !utc.Weekly[5].Value.Equal(decimal.NewFromInt(300)) {
		t.Errorf("UTC yesterday = %s, want 300", utc.Weekly[5].Value)
	}
}

func TestDistributionOmitsCancelled(t *testing.T) {
	got := distribution(map[domain.JobStatus]int64{
		domain.JobReceived:  2,
		domain.JobDelivered: 5,
		domain.JobCancelled: 9,
	})
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	want := map[domain.JobStatus]int64{domain.JobReceived: 2, domain.JobInProgress: 0, domain.JobReady: 0, domain.JobDelivered: 5}
	for _, sc := range got {
		if sc.Count != want[sc.Status] {
			t.Errorf("%s = %d, want %d", sc.Status, sc.Count, want[sc.Status])
		}
	}
}
