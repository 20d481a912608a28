package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cmsanalytics/api/models"

	"github.com/lib/pq"
)

// All window queries use visit_date/view_date >= start AND < end.

// Overview returns visit totals for the window, or ErrNoData when it has no visits.
func (s *AnalyticsStore) Overview(ctx context.Context, w models.Window) (models.OverviewTotals, error) {
	query := `
		SELECT
			COUNT(DISTINCT visitor_id),
			COUNT(*),
			COALESCE(SUM(pages_viewed), 0),
			COALESCE(AVG(session_duration), 0),
			COUNT(*) FILTER (WHERE is_bounce)
		FROM analytics_visits
		WHERE visit_date >= $1 AND visit_date < $2
	`
	var totals models.OverviewTotals
	err := s.DB.QueryRowContext(ctx, query, w.Start, w.End).Scan(
		&totals.UniqueVisitors,
		&totals.TotalVisits,
		&totals.TotalPageviews,
		&totals.AvgSessionDuration,
		&totals.BouncedVisits,
	)
	if err != nil {
		return models.OverviewTotals{}, fmt.Errorf("failed to query overview totals: %w", err)
	}
	if totals.TotalVisits == 0 {
		return models.OverviewTotals{}, ErrNoData
	}
	return totals, nil
}

// VisitCount is the denominator for the percentage breakdowns.
func (s *AnalyticsStore) VisitCount(ctx context.Context, w models.Window) (int64, error) {
	var count int64
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM analytics_visits WHERE visit_date >= $1 AND visit_date < $2`,
		w.Start, w.End,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count visits: %w", err)
	}
	return count, nil
}

func (s *AnalyticsStore) TopPages(ctx context.Context, w models.Window, limit int) ([]models.PageTotals, error) {
	query := `
		SELECT
			page_url,
			COUNT(*) AS views,
			COUNT(DISTINCT visitor_id) AS unique_views,
			COALESCE(AVG(time_on_page), 0) AS avg_time_on_page
		FROM analytics_pageviews
		WHERE view_date >= $1 AND view_date < $2
		GROUP BY page_url
		ORDER BY views DESC, page_url ASC
		LIMIT $3
	`
	rows, err := s.DB.QueryContext(ctx, query, w.Start, w.End, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top pages: %w", err)
	}
	defer rows.Close()

	var results []models.PageTotals
	for rows.Next() {
		var p models.PageTotals
		if err := rows.Scan(&p.PageURL, &p.Views, &p.UniqueViews, &p.AvgTimeOnPage); err != nil {
			s.logger.WithError(err).Warn("Error scanning row for top pages")
			continue
		}
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for top pages: %w", err)
	}
	if len(results) == 0 {
		return nil, ErrNoData
	}
	return results, nil
}

// LandingBounces counts, per landing page, the visits that started there and
// how many of them bounced.
func (s *AnalyticsStore) LandingBounces(ctx context.Context, w models.Window, pages []string) (map[string]models.LandingTotals, error) {
	result := make(map[string]models.LandingTotals, len(pages))
	if len(pages) == 0 {
		return result, nil
	}

	query := `
		SELECT landing_page, COUNT(*), COUNT(*) FILTER (WHERE is_bounce)
		FROM analytics_visits
		WHERE visit_date >= $1 AND visit_date < $2 AND landing_page = ANY($3)
		GROUP BY landing_page
	`
	rows, err := s.DB.QueryContext(ctx, query, w.Start, w.End, pq.Array(pages))
	if err != nil {
		return nil, fmt.Errorf("failed to query landing page bounces: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var page string
		var totals models.LandingTotals
		if err := rows.Scan(&page, &totals.Visits, &totals.Bounces); err != nil {
			s.logger.WithError(err).Warn("Error scanning row for landing page bounces")
			continue
		}
		result[page] = totals
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for landing page bounces: %w", err)
	}
	return result, nil
}

// ReferrerCounts returns raw referrer_url counts; NULL referrers come back as "".
// Classification into sources happens in the caller.
func (s *AnalyticsStore) ReferrerCounts(ctx context.Context, w models.Window) ([]models.GroupCount, error) {
	query := `
		SELECT COALESCE(referrer_url, '') AS referrer, COUNT(*) AS visits
		FROM analytics_visits
		WHERE visit_date >= $1 AND visit_date < $2
		GROUP BY COALESCE(referrer_url, '')
		ORDER BY visits DESC, referrer ASC
	`
	return s.groupCounts(ctx, "referrers", query, w.Start, w.End)
}

func (s *AnalyticsStore) DeviceCounts(ctx context.Context, w models.Window) ([]models.GroupCount, error) {
	query := `
		SELECT COALESCE(NULLIF(device_type, ''), 'unknown') AS device, COUNT(*) AS visits
		FROM analytics_visits
		WHERE visit_date >= $1 AND visit_date < $2
		GROUP BY COALESCE(NULLIF(device_type, ''), 'unknown')
		ORDER BY visits DESC, device ASC
	`
	return s.groupCounts(ctx, "devices", query, w.Start, w.End)
}

// CountryCounts excludes visits without a country.
func (s *AnalyticsStore) CountryCounts(ctx context.Context, w models.Window, limit int) ([]models.GroupCount, error) {
	query := `
		SELECT country, COUNT(*) AS visits
		FROM analytics_visits
		WHERE visit_date >= $1 AND visit_date < $2
			AND country IS NOT NULL AND country <> ''
		GROUP BY country
		ORDER BY visits DESC, country ASC
		LIMIT $3
	`
	return s.groupCounts(ctx, "geography", query, w.Start, w.End, limit)
}

func (s *AnalyticsStore) groupCounts(ctx context.Context, family, query string, args ...interface{}) ([]models.GroupCount, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", family, err)
	}
	defer rows.Close()

	var results []models.GroupCount
	for rows.Next() {
		var g models.GroupCount
		if err := rows.Scan(&g.Label, &g.Count); err != nil {
			s.logger.WithError(err).WithField("family", family).Warn("Error scanning grouped row")
			continue
		}
		results = append(results, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for %s: %w", family, err)
	}
	if len(results) == 0 {
		return nil, ErrNoData
	}
	return results, nil
}

// Realtime counts distinct visitors with a pageview since the given instant
// and lists the most viewed pages in that span.
func (s *AnalyticsStore) Realtime(ctx context.Context, since time.Time, limit int) (models.RealtimeStats, error) {
	stats := models.RealtimeStats{ActivePages: []models.RealtimePage{}}

	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT visitor_id) FROM analytics_pageviews WHERE view_date >= $1`,
		since,
	).Scan(&stats.TotalActiveUsers)
	if err != nil {
		return stats, fmt.Errorf("failed to count active visitors: %w", err)
	}

	query := `
		SELECT page_url, COALESCE(MAX(page_title), '') AS page_title, COUNT(DISTINCT visitor_id) AS viewers
		FROM analytics_pageviews
		WHERE view_date >= $1
		GROUP BY page_url
		ORDER BY viewers DESC, page_url ASC
		LIMIT $2
	`
	rows, err := s.DB.QueryContext(ctx, query, since, limit)
	if err != nil {
		return stats, fmt.Errorf("failed to query active pages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.RealtimePage
		var title sql.NullString
		if err := rows.Scan(&p.PageURL, &title, &p.Viewers); err != nil {
			s.logger.WithError(err).Warn("Error scanning row for active pages")
			continue
		}
		p.PageTitle = title.String
		stats.ActivePages = append(stats.ActivePages, p)
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("error iterating rows for active pages: %w", err)
	}
	return stats, nil
}
