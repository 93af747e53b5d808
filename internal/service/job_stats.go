package service

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"time"

	"github.com/hireloop/hireloop/internal/model"
)

// MaxStatsDays bounds the inclusive day count of a stats query.
const MaxStatsDays = 366

// JobStats returns the careers funnel of a job between from and to, both
// inclusive UTC days. Zero values default to the last 30 days.
func (s *JobService) JobStats(ctx context.Context, companyID, jobID string, from, to time.Time) (*model.JobStats, error) {
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -29)
	}
	from, to = from.UTC().Truncate(24*time.Hour), to.UTC().Truncate(24*time.Hour)
	if to.Before(from) {
		return nil, invalidf("from must not be after to")
	}
	if days := int(to.Sub(from)/(24*time.Hour)) + 1; days > MaxStatsDays {
		return nil, invalidf("range must not exceed %d days", MaxStatsDays)
	}

	if _, err := s.GetJob(ctx, companyID, jobID); err != nil {
		return nil, err
	}
	daily, err := s.store.ListDailyJobViews(ctx, jobID, from, to)
	if err != nil {
		return nil, err
	}
	apps, err := s.store.CountJobApplications(ctx, companyID, jobID, from, to)
	if err != nil {
		return nil, err
	}
	return buildJobStats(jobID, from, to, daily, apps), nil
}

// buildJobStats fills every day of the range, so days without views appear
// as zeroes.
func buildJobStats(jobID string, from, to time.Time, daily []*model.DailyJobViews, apps int64) *model.JobStats {
	stats := &model.JobStats{JobID: jobID}
	stats.Period.From = from.Format(time.DateOnly)
	stats.Period.To = to.Format(time.DateOnly)
	stats.Summary.Applications = apps

	byDay := make(map[string]*model.DailyJobViews, len(daily))
	sources := map[string]int64{}
	referrers := map[string]int64{}
	for _, d := range daily {
		byDay[d.Date.UTC().Format(time.DateOnly)] = d
		stats.Summary.Views += d.Views
		stats.Summary.UniqueVisitors += d.UniqueVisitors
		for k, v := range d.Sources {
			sources[k] += v
		}
		for k, v := range d.Referrers {
			referrers[k] += v
		}
	}

	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		key := day.Format(time.DateOnly)
		point := model.DailyViewPoint{Date: key}
		if d, ok := byDay[key]; ok {
			point.Views = d.Views
			point.UniqueVisitors = d.UniqueVisitors
		}
		stats.Daily = append(stats.Daily, point)
	}

	if stats.Summary.UniqueVisitors > 0 {
		stats.Summary.ConversionRate = float64(apps) / float64(stats.Summary.UniqueVisitors)
	}
	stats.Sources = sortedCounts(sources)
	stats.Referrers = sortedCounts(referrers)
	return stats
}

// sortedCounts orders by count descending, then key.
func sortedCounts(counts map[string]int64) []model.CountBreakdown {
	out := make([]model.CountBreakdown, 0, len(counts))
	for _, k := range slices.Sorted(maps.Keys(counts)) {
		out = append(out, model.CountBreakdown{Key: k, Count: counts[k]})
	}
	slices.SortStableFunc(out, func(a, b model.CountBreakdown) int {
		return cmp.Compare(b.Count, a.Count)
	})
	return out
}
