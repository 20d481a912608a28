package models

// OverviewTotals are the raw visit totals for one window.
type OverviewTotals struct {
	UniqueVisitors     int64
	TotalVisits        int64
	TotalPageviews     int64
	AvgSessionDuration float64
	BouncedVisits      int64
}

// PageTotals is one row of the pageview grouping by page_url.
type PageTotals struct {
	PageURL       string
	Views         int64
	UniqueViews   int64
	AvgTimeOnPage float64
}

// LandingTotals counts visits that started on a page and how many bounced.
type LandingTotals struct {
	Visits  int64
	Bounces int64
}

// GroupCount is a label with the number of visits carrying it.
type GroupCount struct {
	Label string
	Count int64
}

type RealtimePage struct {
	PageURL   string `json:"page_url"`
	PageTitle string `json:"page_title"`
	Viewers   int64  `json:"viewers"`
}

type RealtimeStats struct {
	TotalActiveUsers int64          `json:"total_active_users"`
	ActivePages      []RealtimePage `json:"active_pages"`
}

// CountMetric is an integer metric with its prior-window value and growth percent.
type CountMetric struct {
	Value    int64   `json:"value"`
	Previous int64   `json:"previous"`
	Growth   float64 `json:"growth"`
}

// RateMetric is a float metric with its prior-window value and growth.
type RateMetric struct {
	Value    float64 `json:"value"`
	Previous float64 `json:"previous"`
	Growth   float64 `json:"growth"`
}

type Dashboard struct {
	Period             string      `json:"period"`
	StartDate          string      `json:"start_date"`
	EndDate            string      `json:"end_date"`
	UniqueVisitors     CountMetric `json:"unique_visitors"`
	TotalPageviews     CountMetric `json:"total_pageviews"`
	TotalVisits        CountMetric `json:"total_visits"`
	AvgSessionDuration RateMetric  `json:"avg_session_duration"`
	BounceRate         RateMetric  `json:"bounce_rate"`
}

type TopPage struct {
	Page          string  `json:"page"`
	Views         int64   `json:"views"`
	UniqueViews   int64   `json:"unique_views"`
	AvgTimeOnPage float64 `json:"avg_time_on_page"`
	BounceRate    float64 `json:"bounce_rate"`
}

type ReferrerStat struct {
	Source     string  `json:"source"`
	Visits     int64   `json:"visits"`
	Percentage float64 `json:"percentage"`
}

type DeviceStat struct {
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

type CountryStat struct {
	Country    string  `json:"country"`
	Visits     int64   `json:"visits"`
	Percentage float64 `json:"percentage"`
}
