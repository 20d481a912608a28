package handlers

import (
	"context"
	"errors"
	"net/http"

	"cmsanalytics/api/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TrackPageview ingests a pageview beacon from the public site.
func (h *AnalyticsHandlers) TrackPageview(c *gin.Context) {
	var beacon models.PageviewBeacon
	if err := c.ShouldBindJSON(&beacon); err != nil {
		h.logger.WithError(err).Debug("Error binding pageview beacon")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	beacon.IPAddress = c.ClientIP()
	if beacon.UserAgent == "" {
		beacon.UserAgent = c.Request.UserAgent()
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), writeTimeout)
	defer cancel()

	if err := h.Service.TrackPageview(ctx, beacon); err != nil {
		h.trackFailed(c, err, "pageview", logrus.Fields{"session_id": beacon.SessionID, "page_url": beacon.PageURL})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// TrackEvent ingests a custom interaction event.
func (h *AnalyticsHandlers) TrackEvent(c *gin.Context) {
	var beacon models.EventBeacon
	if err := c.ShouldBindJSON(&beacon); err != nil {
		h.logger.WithError(err).Debug("Error binding event beacon")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), writeTimeout)
	defer cancel()

	if err := h.Service.TrackEvent(ctx, beacon); err != nil {
		h.trackFailed(c, err, "event", logrus.Fields{"session_id": beacon.SessionID, "event_category": beacon.EventCategory})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// OptIn and OptOut acknowledge the visitor's choice. Consent is kept on the
// client; nothing is stored here.
func (h *AnalyticsHandlers) OptIn(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Analytics tracking enabled"})
}

func (h *AnalyticsHandlers) OptOut(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Analytics tracking disabled"})
}

func (h *AnalyticsHandlers) trackFailed(c *gin.Context, err error, kind string, fields logrus.Fields) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "missing": verr.Missing, "too_long": verr.TooLong})
		return
	}
	h.logger.WithError(err).WithFields(fields).Errorf("Error recording %s", kind)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record " + kind})
}
