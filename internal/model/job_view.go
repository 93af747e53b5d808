package model

import "time"

// JobView is one careers-page view of a published job.
type JobView struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"` // stream ID, the idempotency key
	CompanyID   string    `json:"company_id"`
	JobID       string    `json:"job_id"`
	Source      string    `json:"source,omitempty"`   // utm_source or "careers_page"
	Referrer    string    `json:"referrer,omitempty"` // scheme, host and path only
	VisitorHash string    `json:"visitor_hash"`       // SHA256(IP + UA + daily salt)[0:16]
	CountryCode string    `json:"country_code,omitempty"`
	ViewedAt    time.Time `json:"viewed_at"`
}

// DailyJobViews is the pre-aggregated view count of a job for one UTC day.
type DailyJobViews struct {
	JobID          string           `json:"job_id"`
	Date           time.Time        `json:"date"`
	Views          int64            `json:"views"`
	UniqueVisitors int64            `json:"unique_visitors"`
	Sources        map[string]int64 `json:"sources,omitempty"`
	Referrers      map[string]int64 `json:"referrers,omitempty"`
}

// JobStats is the careers funnel for a job over a date range.
type JobStats struct {
	JobID  string `json:"job_id"`
	Period struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"period"`
	Summary struct {
		Views          int64   `json:"views"`
		UniqueVisitors int64   `json:"unique_visitors"`
		Applications   int64   `json:"applications"`
		ConversionRate float64 `json:"conversion_rate"` // applications per unique visitor
	} `json:"summary"`
	Daily     []DailyViewPoint `json:"daily"`
	Sources   []CountBreakdown `json:"sources"`
	Referrers []CountBreakdown `json:"referrers"`
}

// DailyViewPoint is one day of a JobStats series.
type DailyViewPoint struct {
	Date           string `json:"date"`
	Views          int64  `json:"views"`
	UniqueVisitors int64  `json:"unique_visitors"`
}

// CountBreakdown is a labelled count, sorted by count in responses.
type CountBreakdown struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}
