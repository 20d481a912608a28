package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cmsanalytics/api/analytics"
	"cmsanalytics/api/utils"

	"github.com/gin-gonic/gin"
)

const defaultPeriod = "30d"

func (h *AnalyticsHandlers) GetDashboard(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	result, err := h.Service.Dashboard(ctx, c.DefaultQuery("period", defaultPeriod))
	if err != nil {
		h.queryFailed(c, err, "dashboard")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *AnalyticsHandlers) GetTopPages(c *gin.Context) {
	limit, ok := h.limit(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	result, err := h.Service.TopPages(ctx, c.DefaultQuery("period", defaultPeriod), limit)
	if err != nil {
		h.queryFailed(c, err, "top pages")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *AnalyticsHandlers) GetReferrers(c *gin.Context) {
	limit, ok := h.limit(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	result, err := h.Service.Referrers(ctx, c.DefaultQuery("period", defaultPeriod), limit)
	if err != nil {
		h.queryFailed(c, err, "referrer")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *AnalyticsHandlers) GetDevices(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	result, err := h.Service.Devices(ctx, c.DefaultQuery("period", defaultPeriod))
	if err != nil {
		h.queryFailed(c, err, "device")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *AnalyticsHandlers) GetGeography(c *gin.Context) {
	limit, ok := h.limit(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	result, err := h.Service.Geography(ctx, c.DefaultQuery("period", defaultPeriod), limit)
	if err != nil {
		h.queryFailed(c, err, "geography")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *AnalyticsHandlers) GetRealtime(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	result, err := h.Service.Realtime(ctx)
	if err != nil {
		h.queryFailed(c, err, "realtime")
		return
	}
	c.JSON(http.StatusOK, result)
}

// Export sends a report family as a file attachment.
func (h *AnalyticsHandlers) Export(c *gin.Context) {
	format := c.DefaultQuery("format", analytics.FormatCSV)
	exportType := c.DefaultQuery("type", "overview")
	if !utils.IsValidExportFormat(format) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'format' parameter. Use 'csv' or 'json'."})
		return
	}
	if !utils.IsValidExportType(exportType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'type' parameter. Use overview, pages, referrers, devices or geography."})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	download, err := h.Service.Export(ctx, exportType, format, c.DefaultQuery("period", defaultPeriod))
	switch {
	case errors.Is(err, analytics.ErrNoExportData):
		c.JSON(http.StatusNotFound, gin.H{"error": "No data available for export"})
		return
	case errors.Is(err, analytics.ErrUnsupportedFormat), errors.Is(err, analytics.ErrUnsupportedExport):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.queryFailed(c, err, "export")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	c.Data(http.StatusOK, download.ContentType, download.Body)
}

// Health reports whether Postgres is reachable.
func (h *AnalyticsHandlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	if err := h.Service.Ping(ctx); err != nil {
		h.logger.WithError(err).Warn("Health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *AnalyticsHandlers) limit(c *gin.Context) (int, bool) {
	limit, err := utils.ParseLimit(c.Query("limit"), analytics.DefaultLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit' parameter. Must be a positive integer."})
		return 0, false
	}
	return limit, true
}

func (h *AnalyticsHandlers) queryFailed(c *gin.Context, err error, report string) {
	h.logger.WithError(err).WithField("path", c.FullPath()).Errorf("Error getting %s statistics", report)
	c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to retrieve %s statistics", report)})
}
