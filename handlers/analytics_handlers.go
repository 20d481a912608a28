// api/handlers/analytics_handlers.go
package handlers

import (
	"context"
	"time"

	"cmsanalytics/api/analytics"
	"cmsanalytics/api/models"

	"github.com/sirupsen/logrus"
)

const (
	readTimeout  = 10 * time.Second
	writeTimeout = 15 * time.Second
)

// AnalyticsService is implemented by *analytics.Service.
type AnalyticsService interface {
	TrackPageview(ctx context.Context, b models.PageviewBeacon) error
	TrackEvent(ctx context.Context, b models.EventBeacon) error
	Dashboard(ctx context.Context, period string) (models.Dashboard, error)
	TopPages(ctx context.Context, period string, limit int) ([]models.TopPage, error)
	Referrers(ctx context.Context, period string, limit int) ([]models.ReferrerStat, error)
	Devices(ctx context.Context, period string) (map[string]models.DeviceStat, error)
	Geography(ctx context.Context, period string, limit int) ([]models.CountryStat, error)
	Realtime(ctx context.Context) (models.RealtimeStats, error)
	Export(ctx context.Context, exportType, format, period string) (*analytics.Download, error)
	Ping(ctx context.Context) error
}

type AnalyticsHandlers struct {
	Service AnalyticsService
	logger  *logrus.Logger
}

func NewAnalyticsHandlers(s AnalyticsService, logger *logrus.Logger) *AnalyticsHandlers {
	return &AnalyticsHandlers{
		Service: s,
		logger:  logger,
	}
}
