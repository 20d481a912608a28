package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"cmsanalytics/api/metrics"
	"cmsanalytics/api/models"
	"cmsanalytics/api/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultLimit   = 10
	ExportLimit    = 100
	RealtimeWindow = 5 * time.Minute
	RealtimeLimit  = 10
)

// EventStore is the persistence the service needs. *store.AnalyticsStore
// implements it; report methods return store.ErrNoData for empty windows.
type EventStore interface {
	RecordPageview(ctx context.Context, visit models.Visit, pv models.Pageview) (string, error)
	RecordEvent(ctx context.Context, event models.Event, sessionID string) (*string, error)
	Overview(ctx context.Context, w models.Window) (models.OverviewTotals, error)
	VisitCount(ctx context.Context, w models.Window) (int64, error)
	TopPages(ctx context.Context, w models.Window, limit int) ([]models.PageTotals, error)
	LandingBounces(ctx context.Context, w models.Window, pages []string) (map[string]models.LandingTotals, error)
	ReferrerCounts(ctx context.Context, w models.Window) ([]models.GroupCount, error)
	DeviceCounts(ctx context.Context, w models.Window) ([]models.GroupCount, error)
	CountryCounts(ctx context.Context, w models.Window, limit int) ([]models.GroupCount, error)
	Realtime(ctx context.Context, since time.Time, limit int) (models.RealtimeStats, error)
	Ping(ctx context.Context) error
}

// BeaconMirror receives a copy of every stored beacon.
type BeaconMirror interface {
	MirrorPageview(ctx context.Context, visit models.Visit, pv models.Pageview) error
	MirrorEvent(ctx context.Context, event models.Event, sessionID string) error
}

// ReportCache holds computed report payloads for a short time.
type ReportCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
}

type Options struct {
	Store    EventStore
	Mirror   BeaconMirror
	Cache    ReportCache
	Enricher Enricher
	Metrics  *metrics.Metrics
	Location *time.Location
	Logger   *logrus.Logger
	Now      func() time.Time
}

// Service records tracking beacons and computes the dashboard reports.
type Service struct {
	store    EventStore
	mirror   BeaconMirror
	cache    ReportCache
	enricher Enricher
	metrics  *metrics.Metrics
	loc      *time.Location
	logger   *logrus.Logger
	now      func() time.Time
}

func NewService(opts Options) *Service {
	s := &Service{
		store:    opts.Store,
		mirror:   opts.Mirror,
		cache:    opts.Cache,
		enricher: opts.Enricher,
		metrics:  opts.Metrics,
		loc:      opts.Location,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// TrackPageview stores a pageview and creates or advances its visit.
func (s *Service) TrackPageview(ctx context.Context, b models.PageviewBeacon) error {
	if err := b.Validate(); err != nil {
		s.metrics.RecordBeacon("pageview", "invalid")
		return err
	}
	s.enricher.Enrich(&b)
	b.TruncateAttributes()

	now := s.now()
	visit := models.Visit{
		ID:              uuid.NewString(),
		VisitorID:       b.VisitorID,
		SessionID:       b.SessionID,
		IPAddress:       b.IPAddress,
		UserAgent:       b.UserAgent,
		DeviceType:      b.DeviceType,
		OperatingSystem: b.OperatingSystem,
		Browser:         b.Browser,
		Country:         b.Country,
		City:            b.City,
		VisitDate:       now,
		PagesViewed:     1,
		IsBounce:        true,
		ReferrerURL:     b.Referrer,
		LandingPage:     b.PageURL,
		ExitPage:        b.PageURL,
	}
	pv := models.Pageview{
		ID:          uuid.NewString(),
		VisitorID:   b.VisitorID,
		PageURL:     b.PageURL,
		PageTitle:   b.PageTitle,
		TimeOnPage:  clamp(b.TimeOnPage, 0, math.MaxInt32),
		ScrollDepth: clamp(b.ScrollDepth, 0, 100),
		ViewDate:    now,
	}

	visitID, err := s.store.RecordPageview(ctx, visit, pv)
	if err != nil {
		s.metrics.RecordBeacon("pageview", "error")
		return fmt.Errorf("failed to record pageview: %w", err)
	}
	visit.ID = visitID
	pv.VisitID = visitID
	s.metrics.RecordBeacon("pageview", "ok")

	if s.mirror != nil {
		if err := s.mirror.MirrorPageview(ctx, visit, pv); err != nil {
			s.metrics.RecordMirrorFailure()
			s.logger.WithError(err).WithField("session_id", b.SessionID).Warn("Failed to mirror pageview")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"visit_id": visitID,
		"page_url": pv.PageURL,
	}).Debug("Pageview recorded")
	return nil
}

// TrackEvent stores a custom interaction, linked to the session's visit when
// one exists.
func (s *Service) TrackEvent(ctx context.Context, b models.EventBeacon) error {
	if err := b.Validate(); err != nil {
		s.metrics.RecordBeacon("event", "invalid")
		return err
	}

	event := models.Event{
		ID:         uuid.NewString(),
		VisitorID:  b.VisitorID,
		EventType:  b.EventCategory,
		EventName:  b.EventAction,
		EventValue: b.EventLabel,
		EventDate:  s.now(),
	}
	visitID, err := s.store.RecordEvent(ctx, event, b.SessionID)
	if err != nil {
		s.metrics.RecordBeacon("event", "error")
		return fmt.Errorf("failed to record event: %w", err)
	}
	event.VisitID = visitID
	s.metrics.RecordBeacon("event", "ok")

	if s.mirror != nil {
		if err := s.mirror.MirrorEvent(ctx, event, b.SessionID); err != nil {
			s.metrics.RecordMirrorFailure()
			s.logger.WithError(err).WithField("session_id", b.SessionID).Warn("Failed to mirror event")
		}
	}
	return nil
}

func (s *Service) Dashboard(ctx context.Context, period string) (models.Dashboard, error) {
	p := s.resolve(period)
	return cached(ctx, s, "dashboard", cacheKey("dashboard", p, 0), func() (models.Dashboard, error) {
		d, _, err := s.dashboard(ctx, p)
		return d, err
	})
}

func (s *Service) TopPages(ctx context.Context, period string, limit int) ([]models.TopPage, error) {
	p := s.resolve(period)
	limit = normalizeLimit(limit)
	return cached(ctx, s, "pages", cacheKey("pages", p, limit), func() ([]models.TopPage, error) {
		return s.topPages(ctx, p, limit)
	})
}

func (s *Service) Referrers(ctx context.Context, period string, limit int) ([]models.ReferrerStat, error) {
	p := s.resolve(period)
	limit = normalizeLimit(limit)
	return cached(ctx, s, "referrers", cacheKey("referrers", p, limit), func() ([]models.ReferrerStat, error) {
		return s.referrers(ctx, p, limit)
	})
}

func (s *Service) Devices(ctx context.Context, period string) (map[string]models.DeviceStat, error) {
	p := s.resolve(period)
	return cached(ctx, s, "devices", cacheKey("devices", p, 0), func() (map[string]models.DeviceStat, error) {
		return s.devices(ctx, p)
	})
}

func (s *Service) Geography(ctx context.Context, period string, limit int) ([]models.CountryStat, error) {
	p := s.resolve(period)
	limit = normalizeLimit(limit)
	return cached(ctx, s, "geography", cacheKey("geography", p, limit), func() ([]models.CountryStat, error) {
		return s.geography(ctx, p, limit)
	})
}

// Realtime reports visitors active in the last five minutes. It is never cached.
func (s *Service) Realtime(ctx context.Context) (models.RealtimeStats, error) {
	defer s.metrics.ObserveQuery("realtime", time.Now())

	stats, err := s.store.Realtime(ctx, s.now().Add(-RealtimeWindow), RealtimeLimit)
	if err != nil {
		return models.RealtimeStats{ActivePages: []models.RealtimePage{}}, err
	}
	return stats, nil
}

// Export renders one report family as a CSV or JSON attachment.
func (s *Service) Export(ctx context.Context, exportType, format, period string) (*Download, error) {
	if format != FormatCSV && format != FormatJSON {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	defer s.metrics.ObserveQuery("export", time.Now())

	p := s.resolve(period)
	records, err := s.exportRecords(ctx, exportType, p)
	if err != nil {
		return nil, err
	}

	now := s.now().In(s.loc)
	filename := ExportFilename(exportType, periodLabel(p), format, now)
	return Export(records, format, filename, now)
}

func (s *Service) resolve(period string) models.Period {
	return ResolvePeriod(period, s.now().In(s.loc))
}

func (s *Service) dashboard(ctx context.Context, p models.Period) (models.Dashboard, bool, error) {
	cur, hasData, err := s.overview(ctx, p.Current)
	if err != nil {
		return models.Dashboard{}, false, err
	}
	prev, _, err := s.overview(ctx, p.Previous)
	if err != nil {
		return models.Dashboard{}, false, err
	}

	curBounce := Percentage(cur.BouncedVisits, cur.TotalVisits)
	prevBounce := Percentage(prev.BouncedVisits, prev.TotalVisits)
	curDuration := round(cur.AvgSessionDuration, 2)
	prevDuration := round(prev.AvgSessionDuration, 2)

	return models.Dashboard{
		Period:         periodLabel(p),
		StartDate:      p.Current.Start.Format("2006-01-02"),
		EndDate:        p.Current.End.AddDate(0, 0, -1).Format("2006-01-02"),
		UniqueVisitors: countMetric(cur.UniqueVisitors, prev.UniqueVisitors),
		TotalPageviews: countMetric(cur.TotalPageviews, prev.TotalPageviews),
		TotalVisits:    countMetric(cur.TotalVisits, prev.TotalVisits),
		AvgSessionDuration: models.RateMetric{
			Value:    curDuration,
			Previous: prevDuration,
			Growth:   Growth(curDuration, prevDuration),
		},
		BounceRate: models.RateMetric{
			Value:    curBounce,
			Previous: prevBounce,
			Growth:   RateDelta(curBounce, prevBounce),
		},
	}, hasData, nil
}

func (s *Service) overview(ctx context.Context, w models.Window) (models.OverviewTotals, bool, error) {
	totals, err := s.store.Overview(ctx, w)
	if errors.Is(err, store.ErrNoData) {
		return models.OverviewTotals{}, false, nil
	}
	if err != nil {
		return models.OverviewTotals{}, false, err
	}
	return totals, true, nil
}

func (s *Service) topPages(ctx context.Context, p models.Period, limit int) ([]models.TopPage, error) {
	totals, err := s.store.TopPages(ctx, p.Current, limit)
	if errors.Is(err, store.ErrNoData) {
		return []models.TopPage{}, nil
	}
	if err != nil {
		return nil, err
	}

	urls := make([]string, len(totals))
	for i, t := range totals {
		urls[i] = t.PageURL
	}
	landings, err := s.store.LandingBounces(ctx, p.Current, urls)
	if err != nil {
		return nil, err
	}

	pages := make([]models.TopPage, 0, len(totals))
	for _, t := range totals {
		l := landings[t.PageURL]
		pages = append(pages, models.TopPage{
			Page:          t.PageURL,
			Views:         t.Views,
			UniqueViews:   t.UniqueViews,
			AvgTimeOnPage: round(t.AvgTimeOnPage, 2),
			BounceRate:    Percentage(l.Bounces, l.Visits),
		})
	}
	return pages, nil
}

func (s *Service) referrers(ctx context.Context, p models.Period, limit int) ([]models.ReferrerStat, error) {
	counts, err := s.store.ReferrerCounts(ctx, p.Current)
	if errors.Is(err, store.ErrNoData) {
		return []models.ReferrerStat{}, nil
	}
	if err != nil {
		return nil, err
	}
	return ReferrerBreakdown(counts, sumCounts(counts), limit), nil
}

func (s *Service) devices(ctx context.Context, p models.Period) (map[string]models.DeviceStat, error) {
	counts, err := s.store.DeviceCounts(ctx, p.Current)
	if errors.Is(err, store.ErrNoData) {
		return map[string]models.DeviceStat{}, nil
	}
	if err != nil {
		return nil, err
	}

	total := sumCounts(counts)
	result := make(map[string]models.DeviceStat, len(counts))
	for _, c := range counts {
		stat := result[c.Label]
		stat.Count += c.Count
		stat.Percentage = Percentage(stat.Count, total)
		result[c.Label] = stat
	}
	return result, nil
}

func (s *Service) geography(ctx context.Context, p models.Period, limit int) ([]models.CountryStat, error) {
	counts, err := s.store.CountryCounts(ctx, p.Current, limit)
	if errors.Is(err, store.ErrNoData) {
		return []models.CountryStat{}, nil
	}
	if err != nil {
		return nil, err
	}
	total, err := s.store.VisitCount(ctx, p.Current)
	if err != nil {
		return nil, err
	}

	stats := make([]models.CountryStat, 0, len(counts))
	for _, c := range counts {
		stats = append(stats, models.CountryStat{
			Country:    c.Label,
			Visits:     c.Count,
			Percentage: Percentage(c.Count, total),
		})
	}
	return stats, nil
}

func (s *Service) exportRecords(ctx context.Context, exportType string, p models.Period) ([]Record, error) {
	switch exportType {
	case "overview":
		d, hasData, err := s.dashboard(ctx, p)
		if err != nil || !hasData {
			return nil, err
		}
		return []Record{{
			{"period", d.Period},
			{"start_date", d.StartDate},
			{"end_date", d.EndDate},
			{"unique_visitors", d.UniqueVisitors.Value},
			{"unique_visitors_growth", d.UniqueVisitors.Growth},
			{"total_pageviews", d.TotalPageviews.Value},
			{"pageviews_growth", d.TotalPageviews.Growth},
			{"total_visits", d.TotalVisits.Value},
			{"visits_growth", d.TotalVisits.Growth},
			{"avg_session_duration", d.AvgSessionDuration.Value},
			{"session_duration_growth", d.AvgSessionDuration.Growth},
			{"bounce_rate", d.BounceRate.Value},
			{"bounce_rate_change", d.BounceRate.Growth},
		}}, nil

	case "pages":
		pages, err := s.topPages(ctx, p, ExportLimit)
		if err != nil {
			return nil, err
		}
		records := make([]Record, 0, len(pages))
		for _, pg := range pages {
			records = append(records, Record{
				{"page", pg.Page},
				{"views", pg.Views},
				{"unique_views", pg.UniqueViews},
				{"avg_time_on_page", pg.AvgTimeOnPage},
				{"bounce_rate", pg.BounceRate},
			})
		}
		return records, nil

	case "referrers":
		refs, err := s.referrers(ctx, p, 0)
		if err != nil {
			return nil, err
		}
		records := make([]Record, 0, len(refs))
		for _, r := range refs {
			records = append(records, Record{
				{"source", r.Source},
				{"visits", r.Visits},
				{"percentage", r.Percentage},
			})
		}
		return records, nil

	case "devices":
		devices, err := s.devices(ctx, p)
		if err != nil {
			return nil, err
		}
		labels := make([]string, 0, len(devices))
		for label := range devices {
			labels = append(labels, label)
		}
		sort.Slice(labels, func(i, j int) bool {
			a, b := devices[labels[i]], devices[labels[j]]
			if a.Count != b.Count {
				return a.Count > b.Count
			}
			return labels[i] < labels[j]
		})
		records := make([]Record, 0, len(labels))
		for _, label := range labels {
			records = append(records, Record{
				{"device_type", label},
				{"count", devices[label].Count},
				{"percentage", devices[label].Percentage},
			})
		}
		return records, nil

	case "geography":
		countries, err := s.geography(ctx, p, ExportLimit)
		if err != nil {
			return nil, err
		}
		records := make([]Record, 0, len(countries))
		for _, c := range countries {
			records = append(records, Record{
				{"country", c.Country},
				{"visits", c.Visits},
				{"percentage", c.Percentage},
			})
		}
		return records, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedExport, exportType)
	}
}

// cached serves a report from the cache when possible. Cache failures are
// logged and the report is computed from the store.
func cached[T any](ctx context.Context, s *Service, report, key string, load func() (T, error)) (T, error) {
	defer s.metrics.ObserveQuery(report, time.Now())

	if s.cache != nil {
		var hit T
		ok, err := s.cache.Get(ctx, key, &hit)
		switch {
		case err != nil:
			s.metrics.RecordCache("error")
			s.logger.WithError(err).WithField("key", key).Warn("Report cache read failed")
		case ok:
			s.metrics.RecordCache("hit")
			return hit, nil
		default:
			s.metrics.RecordCache("miss")
		}
	}

	value, err := load()
	if err != nil {
		return value, fmt.Errorf("failed to compute %s report: %w", report, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, value); err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("Report cache write failed")
		}
	}
	return value, nil
}

func cacheKey(report string, p models.Period, limit int) string {
	return fmt.Sprintf("%s:%s:%s:%d",
		report,
		p.Current.Start.Format("20060102"),
		p.Current.End.Format("20060102"),
		limit,
	)
}

func periodLabel(p models.Period) string {
	return fmt.Sprintf("%dd", p.Days)
}

func countMetric(current, previous int64) models.CountMetric {
	return models.CountMetric{
		Value:    current,
		Previous: previous,
		Growth:   Growth(float64(current), float64(previous)),
	}
}

func sumCounts(counts []models.GroupCount) int64 {
	var total int64
	for _, c := range counts {
		total += c.Count
	}
	return total
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
