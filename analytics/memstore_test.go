package analytics

import (
	"context"
	"sort"
	"sync"
	"time"

	"cmsanalytics/api/models"
	"cmsanalytics/api/store"
)

// memStore aggregates in memory the same way the SQL queries do.
type memStore struct {
	mu        sync.Mutex
	visits    []*models.Visit
	pageviews []models.Pageview
	events    []models.Event
	failWith  error
	reads     int
}

func newMemStore() *memStore {
	return &memStore{}
}

func (m *memStore) seedVisit(v models.Visit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.ID == "" {
		v.ID = v.SessionID
	}
	m.visits = append(m.visits, &v)
}

func (m *memStore) visitBySession(sessionID string) *models.Visit {
	for _, v := range m.visits {
		if v.SessionID == sessionID {
			return v
		}
	}
	return nil
}

func (m *memStore) inWindow(t time.Time, w models.Window) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (m *memStore) RecordPageview(_ context.Context, visit models.Visit, pv models.Pageview) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return "", m.failWith
	}

	v := m.visitBySession(visit.SessionID)
	if v == nil {
		copied := visit
		m.visits = append(m.visits, &copied)
		v = &copied
	} else {
		v.ExitPage = visit.ExitPage
		v.PagesViewed++
		v.IsBounce = false
		if d := int64(visit.VisitDate.Sub(v.VisitDate).Seconds()); d > v.SessionDuration {
			v.SessionDuration = d
		}
	}
	pv.VisitID = v.ID
	m.pageviews = append(m.pageviews, pv)
	return v.ID, nil
}

func (m *memStore) RecordEvent(_ context.Context, event models.Event, sessionID string) (*string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	if v := m.visitBySession(sessionID); v != nil {
		id := v.ID
		event.VisitID = &id
	}
	m.events = append(m.events, event)
	return event.VisitID, nil
}

func (m *memStore) Overview(_ context.Context, w models.Window) (models.OverviewTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.failWith != nil {
		return models.OverviewTotals{}, m.failWith
	}

	var totals models.OverviewTotals
	visitors := map[string]bool{}
	var duration int64
	for _, v := range m.visits {
		if !m.inWindow(v.VisitDate, w) {
			continue
		}
		visitors[v.VisitorID] = true
		totals.TotalVisits++
		totals.TotalPageviews += v.PagesViewed
		duration += v.SessionDuration
		if v.IsBounce {
			totals.BouncedVisits++
		}
	}
	if totals.TotalVisits == 0 {
		return models.OverviewTotals{}, store.ErrNoData
	}
	totals.UniqueVisitors = int64(len(visitors))
	totals.AvgSessionDuration = float64(duration) / float64(totals.TotalVisits)
	return totals, nil
}

func (m *memStore) VisitCount(_ context.Context, w models.Window) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, v := range m.visits {
		if m.inWindow(v.VisitDate, w) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) TopPages(_ context.Context, w models.Window, limit int) ([]models.PageTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.failWith != nil {
		return nil, m.failWith
	}

	byPage := map[string]*models.PageTotals{}
	viewers := map[string]map[string]bool{}
	var order []string
	for _, pv := range m.pageviews {
		if !m.inWindow(pv.ViewDate, w) {
			continue
		}
		t, ok := byPage[pv.PageURL]
		if !ok {
			t = &models.PageTotals{PageURL: pv.PageURL}
			byPage[pv.PageURL] = t
			viewers[pv.PageURL] = map[string]bool{}
			order = append(order, pv.PageURL)
		}
		t.AvgTimeOnPage = (t.AvgTimeOnPage*float64(t.Views) + float64(pv.TimeOnPage)) / float64(t.Views+1)
		t.Views++
		viewers[pv.PageURL][pv.VisitorID] = true
	}
	if len(order) == 0 {
		return nil, store.ErrNoData
	}

	results := make([]models.PageTotals, 0, len(order))
	for _, url := range order {
		t := *byPage[url]
		t.UniqueViews = int64(len(viewers[url]))
		results = append(results, t)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Views != results[j].Views {
			return results[i].Views > results[j].Views
		}
		return results[i].PageURL < results[j].PageURL
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *memStore) LandingBounces(_ context.Context, w models.Window, pages []string) (map[string]models.LandingTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := map[string]bool{}
	for _, p := range pages {
		wanted[p] = true
	}
	result := map[string]models.LandingTotals{}
	for _, v := range m.visits {
		if !m.inWindow(v.VisitDate, w) || !wanted[v.LandingPage] {
			continue
		}
		t := result[v.LandingPage]
		t.Visits++
		if v.IsBounce {
			t.Bounces++
		}
		result[v.LandingPage] = t
	}
	return result, nil
}

func (m *memStore) group(w models.Window, label func(*models.Visit) (string, bool), limit int) ([]models.GroupCount, error) {
	counts := map[string]int64{}
	for _, v := range m.visits {
		if !m.inWindow(v.VisitDate, w) {
			continue
		}
		if l, ok := label(v); ok {
			counts[l]++
		}
	}
	if len(counts) == 0 {
		return nil, store.ErrNoData
	}
	results := make([]models.GroupCount, 0, len(counts))
	for l, c := range counts {
		results = append(results, models.GroupCount{Label: l, Count: c})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Count != results[j].Count {
			return results[i].Count > results[j].Count
		}
		return results[i].Label < results[j].Label
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *memStore) ReferrerCounts(_ context.Context, w models.Window) ([]models.GroupCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.group(w, func(v *models.Visit) (string, bool) { return v.ReferrerURL, true }, 0)
}

func (m *memStore) DeviceCounts(_ context.Context, w models.Window) ([]models.GroupCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.group(w, func(v *models.Visit) (string, bool) {
		if v.DeviceType == "" {
			return "unknown", true
		}
		return v.DeviceType, true
	}, 0)
}

func (m *memStore) CountryCounts(_ context.Context, w models.Window, limit int) ([]models.GroupCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.group(w, func(v *models.Visit) (string, bool) { return v.Country, v.Country != "" }, limit)
}

func (m *memStore) Realtime(_ context.Context, since time.Time, limit int) (models.RealtimeStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := models.RealtimeStats{ActivePages: []models.RealtimePage{}}
	active := map[string]bool{}
	viewers := map[string]map[string]bool{}
	titles := map[string]string{}
	for _, pv := range m.pageviews {
		if pv.ViewDate.Before(since) {
			continue
		}
		active[pv.VisitorID] = true
		if viewers[pv.PageURL] == nil {
			viewers[pv.PageURL] = map[string]bool{}
		}
		viewers[pv.PageURL][pv.VisitorID] = true
		titles[pv.PageURL] = pv.PageTitle
	}
	stats.TotalActiveUsers = int64(len(active))
	for url, v := range viewers {
		stats.ActivePages = append(stats.ActivePages, models.RealtimePage{
			PageURL:   url,
			PageTitle: titles[url],
			Viewers:   int64(len(v)),
		})
	}
	sort.Slice(stats.ActivePages, func(i, j int) bool {
		a, b := stats.ActivePages[i], stats.ActivePages[j]
		if a.Viewers != b.Viewers {
			return a.Viewers > b.Viewers
		}
		return a.PageURL < b.PageURL
	})
	if len(stats.ActivePages) > limit {
		stats.ActivePages = stats.ActivePages[:limit]
	}
	return stats, nil
}

func (m *memStore) Ping(context.Context) error {
	return m.failWith
}
