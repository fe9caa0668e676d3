package stats

import (
	"time"

	"github.com/shopspring/decimal"

	"fixshop/internal/domain"
)

// Point is one labelled money bucket.
type Point struct {
	Label string          `json:"label"`
	Value decimal.Decimal `json:"value"`
}

// CountPoint is one labelled count bucket.
type CountPoint struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// StatusCount is the number of jobs currently in a status.
type StatusCount struct {
	Status domain.JobStatus `json:"status"`
	Count  int64            `json:"count"`
}

// distributionStatuses are the statuses reported in the job distribution.
// Cancelled jobs are left out.
var distributionStatuses = []domain.JobStatus{
	domain.JobReceived,
	domain.JobInProgress,
	domain.JobReady,
	domain.JobDelivered,
}

// windowStart is 00:00 on the first day of the month eleven months before
// the month containing now.
func windowStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month()-11, 1, 0, 0, 0, 0, now.Location())
}

func monthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

// buckets holds everything derived from one fetched warranty set.
type buckets struct {
	Active         int64
	MonthlyRevenue decimal.Decimal
	Weekly         []Point
	Monthly        []Point
	Jobs           []CountPoint
}

// reduce folds warranties into day and month buckets. now must already be in
// the reporting location.
func reduce(now time.Time, warranties []domain.Warranty) buckets {
	loc := now.Location()
	b := buckets{
		MonthlyRevenue: decimal.Zero,
		Weekly:         make([]Point, 7),
		Monthly:        make([]Point, 12),
		Jobs:           make([]CountPoint, 12),
	}

	type day struct{ from, to time.Time }
	days := make([]day, 7)
	for i := range days {
		from := time.Date(now.Year(), now.Month(), now.Day()-6+i, 0, 0, 0, 0, loc)
		days[i] = day{from: from, to: time.Date(from.Year(), from.Month(), from.Day()+1, 0, 0, 0, 0, loc)}
		b.Weekly[i] = Point{Label: from.Weekday().String()[:3], Value: decimal.Zero}
	}

	type month struct {
		year int
		m    time.Month
	}
	months := make([]month, 12)
	for i := range months {
		first := time.Date(now.Year(), now.Month()-11+time.Month(i), 1, 0, 0, 0, 0, loc)
		months[i] = month{year: first.Year(), m: first.Month()}
		label := first.Month().String()[:3]
		b.Monthly[i] = Point{Label: label, Value: decimal.Zero}
		b.Jobs[i] = CountPoint{Label: label}
	}

	currentMonth := monthStart(now)
	for _, w := range warranties {
		issued := w.IssuedAt.In(loc)
		cost := decimal.Zero
		if w.RepairCost != nil {
			cost = *w.RepairCost
		}
		if w.Status == domain.WarrantyActive {
			b.Active++
		}
		if !issued.Before(currentMonth) {
			b.MonthlyRevenue = b.MonthlyRevenue.Add(cost)
		}
		for i, d := range days {
			if !issued.Before(d.from) && issued.Before(d.to) {
				b.Weekly[i].Value = b.Weekly[i].Value.Add(cost)
				break
			}
		}
		for i, m := range months {
			if issued.Year() == m.year && issued.Month() == m.m {
				b.Monthly[i].Value = b.Monthly[i].Value.Add(cost)
				b.Jobs[i].Count++
				break
			}
		}
	}
	return b
}

func distribution(counts map[domain.JobStatus]int64) []StatusCount {
	out := make([]StatusCount, 0, len(distributionStatuses))
	for _, s := range distributionStatuses {
		out = append(out, StatusCount{Status: s, Count: counts[s]})
	}
	return out
}
