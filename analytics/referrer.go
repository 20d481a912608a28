package analytics

import (
	"net"
	"net/url"
	"sort"
	"strings"

	"cmsanalytics/api/models"

	"golang.org/x/net/publicsuffix"
)

const DirectReferrer = "Direct"

// knownReferrers are checked in order; the first substring match wins.
var knownReferrers = []string{
	"google.com",
	"facebook.com",
	"linkedin.com",
	"twitter.com",
	"youtube.com",
}

// ClassifyReferrer maps a raw referrer URL to its traffic source label.
func ClassifyReferrer(raw string) string {
	ref := strings.ToLower(strings.TrimSpace(raw))
	if ref == "" || ref == "null" {
		return DirectReferrer
	}

	for _, known := range knownReferrers {
		if strings.Contains(ref, known) {
			return known
		}
	}
	return referrerDomain(ref)
}

func referrerDomain(ref string) string {
	if !strings.Contains(ref, "://") {
		ref = "http://" + ref
	}
	u, err := url.Parse(ref)
	if err != nil || u.Hostname() == "" {
		return strings.TrimPrefix(strings.TrimPrefix(ref, "http://"), "https://")
	}

	host := strings.TrimPrefix(u.Hostname(), "www.")
	if net.ParseIP(host) != nil {
		return host
	}
	if domain, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return domain
	}

	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

// ReferrerBreakdown classifies raw referrer counts, merges equal sources and
// orders them by visits. Equal counts keep the order in which their source
// first appeared in counts. total is the number of visits in the window.
func ReferrerBreakdown(counts []models.GroupCount, total int64, limit int) []models.ReferrerStat {
	index := make(map[string]int)
	stats := make([]models.ReferrerStat, 0, len(counts))
	for _, c := range counts {
		source := ClassifyReferrer(c.Label)
		if i, ok := index[source]; ok {
			stats[i].Visits += c.Count
			continue
		}
		index[source] = len(stats)
		stats = append(stats, models.ReferrerStat{Source: source, Visits: c.Count})
	}

	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].Visits > stats[j].Visits
	})

	if limit > 0 && len(stats) > limit {
		stats = stats[:limit]
	}
	for i := range stats {
		stats[i].Percentage = Percentage(stats[i].Visits, total)
	}
	return stats
}
