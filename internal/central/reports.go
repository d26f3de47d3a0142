package central

import (
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/why-xn/infradesk/internal/alerts"
	"github.com/why-xn/infradesk/internal/models"
	"github.com/why-xn/infradesk/internal/reporting"
)

const (
	defaultAuditPerPage = 50
	maxAuditPerPage     = 500
	defaultActivityRows = 50
)

// loadSnapshot reads every collection or writes an error response.
func (s *HTTPServer) loadSnapshot(c *gin.Context) (*reporting.Snapshot, bool) {
	snap, err := reporting.LoadSnapshot(c.Request.Context(), s.store)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return snap, true
}

func (s *HTTPServer) handleDashboard(c *gin.Context) {
	snap, ok := s.loadSnapshot(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, reporting.BuildDashboard(snap, s.engine, s.now()))
}

// handleNotifications returns the current alerts. ?priority= and ?kind=
// narrow the list; counts always cover every alert.
func (s *HTTPServer) handleNotifications(c *gin.Context) {
	snap, ok := s.loadSnapshot(c)
	if !ok {
		return
	}
	notifications, counts := s.engine.Evaluate(reporting.AlertInput(snap), s.now())

	priority := alerts.Priority(c.Query("priority"))
	kind := alerts.Kind(c.Query("kind"))
	notifications = lo.Filter(notifications, func(n alerts.Notification, _ int) bool {
		return (priority == "" || n.Priority == priority) && (kind == "" || n.Kind == kind)
	})

	c.JSON(http.StatusOK, gin.H{
		"notifications": emptyIfNil(notifications),
		"counts":        counts,
		"total":         counts.Total(),
	})
}

func (s *HTTPServer) handleGrowth(c *gin.Context) {
	months := reporting.DefaultGrowthMonths
	if v := c.Query("months"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "months must be a positive integer"})
			return
		}
		months = n
	}
	snap, ok := s.loadSnapshot(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"growth": reporting.Growth(snap, s.now(), months)})
}

func (s *HTTPServer) handleCustomerSummaries(c *gin.Context) {
	snap, ok := s.loadSnapshot(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"customers": emptyIfNil(reporting.CustomerSummaries(snap, s.now()))})
}

// parseDateParam accepts RFC 3339 timestamps or plain dates. A plain date
// used as an upper bound covers the whole day.
func parseDateParam(v string, endOfDay bool) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q", v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Microsecond)
	}
	return &t, nil
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return n, nil
}

func (s *HTTPServer) handleAuditLogs(c *gin.Context) {
	filter := models.AuditLogFilter{
		TableName: c.Query("table"),
		Operation: models.AuditOperation(c.Query("operation")),
		RecordID:  c.Query("record_id"),
		ChangedBy: c.Query("changed_by"),
	}
	var err error
	if filter.From, err = parseDateParam(c.Query("from"), false); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if filter.To, err = parseDateParam(c.Query("to"), true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if filter.Page, err = queryInt(c, "page", 1); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if filter.PerPage, err = queryInt(c, "per_page", defaultAuditPerPage); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	filter.PerPage = min(filter.PerPage, maxAuditPerPage)

	logs, total, err := s.store.ListAuditLogs(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"audit_logs": emptyIfNil(logs),
		"total":      total,
		"page":       filter.Page,
		"per_page":   filter.PerPage,
	})
}

func (s *HTTPServer) handleActivityLogs(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultActivityRows)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	logs, err := s.store.ListActivityLogs(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity_logs": emptyIfNil(logs)})
}

func csvAttachment(c *gin.Context, filename, body string) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(body))
}

func (s *HTTPServer) handleExport(c *gin.Context) {
	entity := c.Param("entity")
	if !slices.Contains(reporting.Entities(), entity) {
		respondError(c, unknownEntity(entity))
		return
	}
	snap, ok := s.loadSnapshot(c)
	if !ok {
		return
	}
	body, err := reporting.Export(snap, entity)
	if err != nil {
		respondError(c, err)
		return
	}
	csvAttachment(c, fmt.Sprintf("%s-%s.csv", entity, s.now().Format("2006-01-02")), body)
}

func (s *HTTPServer) handleTemplate(c *gin.Context) {
	entity := c.Param("entity")
	body, err := reporting.Template(entity)
	if err != nil {
		respondError(c, unknownEntity(entity))
		return
	}
	csvAttachment(c, entity+"-template.csv", body)
}

// handleImportPreview parses an uploaded file without storing anything. The
// file is either the raw request body or a multipart field named "file".
func (s *HTTPServer) handleImportPreview(c *gin.Context) {
	entity := c.Param("entity")
	if !slices.Contains(reporting.Entities(), entity) {
		respondError(c, unknownEntity(entity))
		return
	}

	var r io.Reader = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	if c.ContentType() == "multipart/form-data" {
		fh, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read upload"})
			return
		}
		defer f.Close()
		r = io.LimitReader(f, maxBodyBytes)
	}
	content, err := io.ReadAll(r)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read upload"})
		return
	}

	preview, err := reporting.Preview(entity, string(content))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, preview)
}
