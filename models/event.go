// api/models/event.go
package models

import (
	"time"
)

// BeaconRecord is one accepted pageview or event as copied to the ClickHouse
// analytics_events table.
type BeaconRecord struct {
	EventID    string    `json:"eventId"`
	EventType  string    `json:"eventType"`
	EventName  string    `json:"eventName"`
	EventValue string    `json:"eventValue,omitempty"`
	VisitorID  string    `json:"visitorId"`
	SessionID  string    `json:"sessionId"`
	Timestamp  time.Time `json:"timestamp"`
	PagePath   string    `json:"pagePath"`
	PageTitle  string    `json:"pageTitle"`
	Referrer   string    `json:"referrer"`
	UserAgent  string    `json:"userAgent"`
	IPAddress  string    `json:"ipAddress"`
	DurationMs int64     `json:"durationMs"`
	Country    string    `json:"country,omitempty"`
	DeviceType string    `json:"deviceType,omitempty"`
}

// Beacon types in BeaconRecord.EventType besides custom event categories.
const BeaconPageview = "page_view"
