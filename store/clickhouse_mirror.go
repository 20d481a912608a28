package store

import (
	"context"
	"fmt"

	"cmsanalytics/api/database"
	"cmsanalytics/api/models"

	"github.com/sirupsen/logrus"
)

// ClickHouseMirror copies accepted beacons into ClickHouse for long-range
// querying outside the dashboard. Postgres stays the source of truth.
type ClickHouseMirror struct {
	DB     *database.ClickHouseClient
	logger *logrus.Logger
}

func NewClickHouseMirror(chClient *database.ClickHouseClient, logger *logrus.Logger) *ClickHouseMirror {
	return &ClickHouseMirror{
		DB:     chClient,
		logger: logger,
	}
}

const mirrorTableDDL = `
	CREATE TABLE IF NOT EXISTS analytics_events (
		event_id    String,
		event_type  LowCardinality(String),
		event_name  String,
		event_value String,
		visitor_id  String,
		session_id  String,
		timestamp   DateTime64(3),
		page_path   String,
		page_title  String,
		referrer    String,
		user_agent  String,
		ip_address  String,
		duration_ms Int64,
		country     LowCardinality(String),
		device_type LowCardinality(String)
	)
	ENGINE = MergeTree
	PARTITION BY toYYYYMM(timestamp)
	ORDER BY (event_type, timestamp)`

// EnsureSchema creates the mirror table when it does not exist yet.
func (m *ClickHouseMirror) EnsureSchema(ctx context.Context) error {
	if m.DB == nil || m.DB.Conn == nil {
		return fmt.Errorf("clickhouse mirror is not connected")
	}
	if err := m.DB.Conn.Exec(ctx, mirrorTableDDL); err != nil {
		return fmt.Errorf("failed to create ClickHouse analytics_events table: %w", err)
	}
	for _, stmt := range mirrorMigrations {
		if err := m.DB.Conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate ClickHouse analytics_events table: %w", err)
		}
	}
	return nil
}

// mirrorMigrations bring tables created by earlier releases up to date.
var mirrorMigrations = []string{
	`ALTER TABLE analytics_events ADD COLUMN IF NOT EXISTS event_value String AFTER event_name`,
}

func (m *ClickHouseMirror) MirrorPageview(ctx context.Context, visit models.Visit, pv models.Pageview) error {
	return m.InsertRows(ctx, []models.BeaconRecord{pageviewRecord(visit, pv)})
}

func (m *ClickHouseMirror) MirrorEvent(ctx context.Context, event models.Event, sessionID string) error {
	return m.InsertRows(ctx, []models.BeaconRecord{eventRecord(event, sessionID)})
}

func pageviewRecord(visit models.Visit, pv models.Pageview) models.BeaconRecord {
	return models.BeaconRecord{
		EventID:    pv.ID,
		EventType:  models.BeaconPageview,
		VisitorID:  pv.VisitorID,
		SessionID:  visit.SessionID,
		Timestamp:  pv.ViewDate,
		PagePath:   pv.PageURL,
		PageTitle:  pv.PageTitle,
		Referrer:   visit.ReferrerURL,
		UserAgent:  visit.UserAgent,
		IPAddress:  visit.IPAddress,
		DurationMs: pv.TimeOnPage * 1000,
		Country:    visit.Country,
		DeviceType: visit.DeviceType,
	}
}

func eventRecord(event models.Event, sessionID string) models.BeaconRecord {
	return models.BeaconRecord{
		EventID:    event.ID,
		EventType:  event.EventType,
		EventName:  event.EventName,
		EventValue: event.EventValue,
		VisitorID:  event.VisitorID,
		SessionID:  sessionID,
		Timestamp:  event.EventDate,
	}
}

func (m *ClickHouseMirror) InsertRows(ctx context.Context, rows []models.BeaconRecord) error {
	if len(rows) == 0 {
		return nil
	}
	if m.DB == nil || m.DB.Conn == nil {
		return fmt.Errorf("clickhouse mirror is not connected")
	}

	// Column order must match the ClickHouse table definition.
	batch, err := m.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO analytics_events (
			event_id, event_type, event_name, event_value, visitor_id, session_id, timestamp,
			page_path, page_title, referrer, user_agent, ip_address, duration_ms, country, device_type
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, row := range rows {
		err := batch.Append(
			row.EventID,
			row.EventType,
			row.EventName,
			row.EventValue,
			row.VisitorID,
			row.SessionID,
			row.Timestamp,
			row.PagePath,
			row.PageTitle,
			row.Referrer,
			row.UserAgent,
			row.IPAddress,
			row.DurationMs,
			row.Country,
			row.DeviceType,
		)
		if err != nil {
			m.logger.WithError(err).WithField("event_id", row.EventID).Warn("Error appending row to ClickHouse batch")
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}
