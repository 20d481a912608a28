// api/models/analytics.go
package models

import (
	"strings"
	"time"
)

// Device types stored on a visit.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
)

// Column widths from the analytics_* migrations.
const (
	MaxIDLength        = 255
	MaxEventTypeLength = 100
	MaxEventNameLength = 255
	MaxAttributeLength = 100
)

// NormalizeDeviceType lower-cases a client supplied device type and returns ""
// for anything that is not desktop, mobile or tablet.
func NormalizeDeviceType(device string) string {
	switch d := strings.ToLower(strings.TrimSpace(device)); d {
	case DeviceDesktop, DeviceMobile, DeviceTablet:
		return d
	default:
		return ""
	}
}

// Visit is one browsing session, unique per SessionID.
type Visit struct {
	ID              string    `json:"id"`
	VisitorID       string    `json:"visitor_id"`
	SessionID       string    `json:"session_id"`
	IPAddress       string    `json:"ip_address"`
	UserAgent       string    `json:"user_agent"`
	DeviceType      string    `json:"device_type"`
	OperatingSystem string    `json:"operating_system"`
	Browser         string    `json:"browser"`
	Country         string    `json:"country"`
	City            string    `json:"city"`
	VisitDate       time.Time `json:"visit_date"`
	SessionDuration int64     `json:"session_duration"`
	PagesViewed     int64     `json:"pages_viewed"`
	IsBounce        bool      `json:"is_bounce"`
	ReferrerURL     string    `json:"referrer_url"`
	LandingPage     string    `json:"landing_page"`
	ExitPage        string    `json:"exit_page"`
}

// Pageview is one page impression inside a visit.
type Pageview struct {
	ID          string    `json:"id"`
	VisitID     string    `json:"visit_id"`
	VisitorID   string    `json:"visitor_id"`
	PageURL     string    `json:"page_url"`
	PageTitle   string    `json:"page_title"`
	TimeOnPage  int64     `json:"time_on_page"`
	ScrollDepth int64     `json:"scroll_depth"`
	ViewDate    time.Time `json:"view_date"`
}

// Event is a custom interaction. VisitID is nil when no visit exists for the session yet.
type Event struct {
	ID         string    `json:"id"`
	VisitID    *string   `json:"visit_id"`
	VisitorID  string    `json:"visitor_id"`
	EventType  string    `json:"event_type"`
	EventName  string    `json:"event_name"`
	EventValue string    `json:"event_value"`
	EventDate  time.Time `json:"event_date"`
}

// PageviewBeacon is the body of POST /analytics/track.
type PageviewBeacon struct {
	VisitorID       string `json:"visitor_id"`
	SessionID       string `json:"session_id"`
	PageURL         string `json:"page_url"`
	PageTitle       string `json:"page_title"`
	Referrer        string `json:"referrer"`
	UserAgent       string `json:"user_agent"`
	IPAddress       string `json:"-"`
	TimeOnPage      int64  `json:"time_on_page"`
	ScrollDepth     int64  `json:"scroll_depth"`
	DeviceType      string `json:"device_type"`
	OperatingSystem string `json:"operating_system"`
	Browser         string `json:"browser"`
	Country         string `json:"country"`
	City            string `json:"city"`
}

// Validate checks the fields required before the store is touched.
func (b PageviewBeacon) Validate() error {
	return validateFields(map[string]requiredField{
		"visitor_id": {b.VisitorID, MaxIDLength},
		"session_id": {b.SessionID, MaxIDLength},
		"page_url":   {b.PageURL, 0},
	})
}

// TruncateAttributes cuts the optional descriptive fields to their column
// width so an oversized value never fails the visit upsert.
func (b *PageviewBeacon) TruncateAttributes() {
	b.OperatingSystem = truncate(b.OperatingSystem, MaxAttributeLength)
	b.Browser = truncate(b.Browser, MaxAttributeLength)
	b.Country = truncate(b.Country, MaxAttributeLength)
	b.City = truncate(b.City, MaxAttributeLength)
}

// EventBeacon is the body of POST /analytics/event.
type EventBeacon struct {
	VisitorID     string `json:"visitor_id"`
	SessionID     string `json:"session_id"`
	EventCategory string `json:"event_category"`
	EventAction   string `json:"event_action"`
	EventLabel    string `json:"event_label"`
}

func (b EventBeacon) Validate() error {
	return validateFields(map[string]requiredField{
		"visitor_id":     {b.VisitorID, MaxIDLength},
		"session_id":     {b.SessionID, MaxIDLength},
		"event_category": {b.EventCategory, MaxEventTypeLength},
		"event_action":   {b.EventAction, MaxEventNameLength},
	})
}

// Window is a half-open interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Period pairs a window with the equally long window right before it.
type Period struct {
	Days     int    `json:"days"`
	Current  Window `json:"current"`
	Previous Window `json:"previous"`
}
