// api/store/analytics_store.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cmsanalytics/api/models"

	"github.com/sirupsen/logrus"
)

// ErrNoData means the window holds no rows for the requested family. It is
// not a failure: callers substitute an empty payload.
var ErrNoData = errors.New("no data")

// AnalyticsStore reads and writes the analytics_* tables in Postgres.
type AnalyticsStore struct {
	DB     *sql.DB
	logger *logrus.Logger
}

func NewAnalyticsStore(db *sql.DB, logger *logrus.Logger) *AnalyticsStore {
	return &AnalyticsStore{
		DB:     db,
		logger: logger,
	}
}

// The unique constraint on session_id turns "find visit or create it" into a
// single atomic statement, so concurrent first beacons of one session end up
// on the same row.
const upsertVisitQuery = `
	INSERT INTO analytics_visits (
		id, visitor_id, session_id, ip_address, user_agent, device_type,
		operating_system, browser, country, city, visit_date,
		session_duration, pages_viewed, is_bounce, referrer_url, landing_page, exit_page
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, 1, TRUE, $12, $13, $13)
	ON CONFLICT (session_id) DO UPDATE SET
		exit_page = EXCLUDED.exit_page,
		pages_viewed = analytics_visits.pages_viewed + 1,
		is_bounce = FALSE,
		session_duration = GREATEST(
			analytics_visits.session_duration,
			CAST(EXTRACT(EPOCH FROM (EXCLUDED.visit_date - analytics_visits.visit_date)) AS INTEGER)
		)
	RETURNING id`

const insertPageviewQuery = `
	INSERT INTO analytics_pageviews (
		id, visit_id, visitor_id, page_url, page_title, time_on_page, scroll_depth, view_date
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// RecordPageview creates or advances the session's visit and appends the
// pageview in one transaction. It returns the id of the owning visit.
func (s *AnalyticsStore) RecordPageview(ctx context.Context, visit models.Visit, pv models.Pageview) (string, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin pageview transaction: %w", err)
	}
	defer tx.Rollback()

	var visitID string
	err = tx.QueryRowContext(ctx, upsertVisitQuery,
		visit.ID,
		visit.VisitorID,
		visit.SessionID,
		nullString(visit.IPAddress),
		nullString(visit.UserAgent),
		nullString(visit.DeviceType),
		nullString(visit.OperatingSystem),
		nullString(visit.Browser),
		nullString(visit.Country),
		nullString(visit.City),
		visit.VisitDate,
		nullString(visit.ReferrerURL),
		visit.LandingPage,
	).Scan(&visitID)
	if err != nil {
		return "", fmt.Errorf("failed to upsert visit for session %s: %w", visit.SessionID, err)
	}

	_, err = tx.ExecContext(ctx, insertPageviewQuery,
		pv.ID,
		visitID,
		pv.VisitorID,
		pv.PageURL,
		nullString(pv.PageTitle),
		pv.TimeOnPage,
		pv.ScrollDepth,
		pv.ViewDate,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert pageview: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit pageview transaction: %w", err)
	}
	return visitID, nil
}

const insertEventQuery = `
	INSERT INTO analytics_events (
		id, visit_id, visitor_id, event_type, event_name, event_value, event_date
	) VALUES (
		$1, (SELECT id FROM analytics_visits WHERE session_id = $2 LIMIT 1), $3, $4, $5, $6, $7
	)
	RETURNING visit_id`

// RecordEvent appends an event row. The visit is resolved from sessionID; an
// event that arrives before any pageview is stored with a NULL visit_id.
func (s *AnalyticsStore) RecordEvent(ctx context.Context, event models.Event, sessionID string) (*string, error) {
	var visitID sql.NullString
	err := s.DB.QueryRowContext(ctx, insertEventQuery,
		event.ID,
		sessionID,
		event.VisitorID,
		event.EventType,
		event.EventName,
		nullString(event.EventValue),
		event.EventDate,
	).Scan(&visitID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert event %s/%s: %w", event.EventType, event.EventName, err)
	}

	if !visitID.Valid {
		s.logger.WithField("session_id", sessionID).Debug("Event recorded without a matching visit")
		return nil, nil
	}
	return &visitID.String, nil
}

// Ping is used by the health endpoint.
func (s *AnalyticsStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// nullString stores empty optional strings as NULL.
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
