package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hireloop/hireloop/internal/model"
)

// InsertJobViews stores raw view events. Events already stored under the
// same stream ID are skipped, so redelivered batches are harmless.
func (r *Repository) InsertJobViews(ctx context.Context, views []*model.JobView) error {
	if len(views) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, v := range views {
		batch.Queue(`
			INSERT INTO job_view_events (
				id, event_id, company_id, job_id, source, referrer,
				visitor_hash, country_code, viewed_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (event_id) DO NOTHING
		`, v.ID, v.EventID, v.CompanyID, v.JobID, v.Source, v.Referrer,
			v.VisitorHash, v.CountryCode, v.ViewedAt)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := range views {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert view %d: %w", i, err)
		}
	}
	return nil
}

// RefreshDailyJobViews recomputes the daily rows touched by views from the
// raw events, so running it twice gives the same result.
func (r *Repository) RefreshDailyJobViews(ctx context.Context, views []*model.JobView) error {
	for _, key := range uniqueDailyKeys(views) {
		acc, err := r.recalculateDailyViews(ctx, key.jobID, key.date)
		if err != nil {
			return fmt.Errorf("recalculate daily views %s:%s: %w", key.jobID, key.date.Format(time.DateOnly), err)
		}
		if err := r.upsertDailyViews(ctx, acc); err != nil {
			return fmt.Errorf("upsert daily views %s:%s: %w", key.jobID, key.date.Format(time.DateOnly), err)
		}
	}
	return nil
}

type dailyViewsKey struct {
	jobID string
	date  time.Time
}

func uniqueDailyKeys(views []*model.JobView) []dailyViewsKey {
	seen := make(map[dailyViewsKey]struct{})
	keys := make([]dailyViewsKey, 0)
	for _, v := range views {
		key := dailyViewsKey{jobID: v.JobID, date: truncateDay(v.ViewedAt)}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

func truncateDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

func (r *Repository) recalculateDailyViews(ctx context.Context, jobID string, day time.Time) (*model.DailyJobViews, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT source, referrer, visitor_hash
		FROM job_view_events
		WHERE job_id = $1 AND viewed_at >= $2 AND viewed_at < $3
	`, jobID, day, day.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("query view events: %w", err)
	}
	defer rows.Close()

	var views []*model.JobView
	for rows.Next() {
		v := &model.JobView{}
		if err := rows.Scan(&v.Source, &v.Referrer, &v.VisitorHash); err != nil {
			return nil, fmt.Errorf("scan view event: %w", err)
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate view events: %w", err)
	}

	acc := accumulateDailyViews(views)
	acc.JobID = jobID
	acc.Date = day
	return acc, nil
}

// accumulateDailyViews totals one day of events. Referrers are reduced to
// their host; an empty referrer counts as "(direct)".
func accumulateDailyViews(views []*model.JobView) *model.DailyJobViews {
	acc := &model.DailyJobViews{
		Sources:   make(map[string]int64),
		Referrers: make(map[string]int64),
	}
	visitors := make(map[string]struct{})

	for _, v := range views {
		acc.Views++
		if v.VisitorHash != "" {
			if _, ok := visitors[v.VisitorHash]; !ok {
				visitors[v.VisitorHash] = struct{}{}
				acc.UniqueVisitors++
			}
		}
		source := v.Source
		if source == "" {
			source = "careers_page"
		}
		acc.Sources[source]++
		acc.Referrers[referrerDomain(v.Referrer)]++
	}
	return acc
}

func referrerDomain(ref string) string {
	if ref == "" {
		return "(direct)"
	}
	parsed, err := url.Parse(ref)
	if err != nil || parsed.Host == "" {
		return "(unknown)"
	}
	return parsed.Host
}

func (r *Repository) upsertDailyViews(ctx context.Context, acc *model.DailyJobViews) error {
	sources, err := json.Marshal(acc.Sources)
	if err != nil {
		return err
	}
	referrers, err := json.Marshal(acc.Referrers)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO job_daily_views (job_id, day, views, unique_visitors, source_breakdown, referrer_breakdown, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (job_id, day) DO UPDATE SET
			views = EXCLUDED.views,
			unique_visitors = EXCLUDED.unique_visitors,
			source_breakdown = EXCLUDED.source_breakdown,
			referrer_breakdown = EXCLUDED.referrer_breakdown,
			updated_at = NOW()
	`, acc.JobID, acc.Date, acc.Views, acc.UniqueVisitors, sources, referrers)
	return err
}

// ListDailyJobViews returns the daily rows of a job between from and to,
// inclusive, oldest first. Days without views are absent.
func (r *Repository) ListDailyJobViews(ctx context.Context, jobID string, from, to time.Time) ([]*model.DailyJobViews, error) {
	rows, err := r.db(ctx).Query(ctx, `
		SELECT job_id, day, views, unique_visitors, source_breakdown, referrer_breakdown
		FROM job_daily_views
		WHERE job_id = $1 AND day BETWEEN $2 AND $3
		ORDER BY day
	`, jobID, truncateDay(from), truncateDay(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list daily views: %w", err)
	}
	defer rows.Close()

	var out []*model.DailyJobViews
	for rows.Next() {
		d := &model.DailyJobViews{}
		var sources, referrers []byte
		if err := rows.Scan(&d.JobID, &d.Date, &d.Views, &d.UniqueVisitors, &sources, &referrers); err != nil {
			return nil, fmt.Errorf("failed to scan daily views: %w", err)
		}
		if err := json.Unmarshal(sources, &d.Sources); err != nil {
			return nil, fmt.Errorf("failed to decode source breakdown: %w", err)
		}
		if err := json.Unmarshal(referrers, &d.Referrers); err != nil {
			return nil, fmt.Errorf("failed to decode referrer breakdown: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CountJobApplications counts applications to a job created between from
// and to, inclusive of both days.
func (r *Repository) CountJobApplications(ctx context.Context, companyID, jobID string, from, to time.Time) (int64, error) {
	var n int64
	err := r.db(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM applications
		WHERE company_id = $1 AND job_id = $2 AND created_at >= $3 AND created_at < $4
	`, companyID, jobID, truncateDay(from), truncateDay(to).Add(24*time.Hour)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count applications: %w", err)
	}
	return n, nil
}
