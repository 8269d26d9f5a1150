package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/export"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/service"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/response"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/telemetry"
)

// ReportQueries is the read-only side of the report service
type ReportQueries interface {
	Summary(ctx context.Context, filter bson.M) (*service.RegistrationSummary, error)
	Duplicates(ctx context.Context, filter bson.M) (*domain.DuplicateReport, error)
	Discrepancies(ctx context.Context, filter bson.M) ([]domain.Discrepancy, error)
	TicketCounts(ctx context.Context) (*service.TicketCountReport, error)
}

// ReportHandler serves the aggregation reports. It never writes.
type ReportHandler struct {
	reports ReportQueries
}

// NewReportHandler creates a new report handler
func NewReportHandler(reports ReportQueries) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// filterFromQuery builds a registrations filter from registrationType,
// paymentStatus and since (RFC 3339)
func filterFromQuery(c *gin.Context) (bson.M, error) {
	filter := bson.M{}
	if v := c.Query("registrationType"); v != "" {
		filter["registrationType"] = v
	}
	if v := c.Query("paymentStatus"); v != "" {
		filter["paymentStatus"] = v
	}
	if v := c.Query("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("since must be RFC 3339: %w", err)
		}
		filter["createdAt"] = bson.M{"$gte": since}
	}
	return filter, nil
}

// build runs the named report
func (h *ReportHandler) build(c *gin.Context, name string) (*export.Report, error) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.report."+name)
	defer span.End()
	telemetry.SetSpanAttributes(ctx, telemetry.ReportKey.String(name))

	filter, err := filterFromQuery(c)
	if err != nil {
		return nil, &badRequestError{err}
	}

	switch name {
	case "tickets":
		r, err := h.reports.TicketCounts(ctx)
		if err != nil {
			return nil, err
		}
		return export.TicketCountsReport(r), nil
	case "registrations":
		r, err := h.reports.Summary(ctx, filter)
		if err != nil {
			return nil, err
		}
		return export.SummaryReport(r), nil
	case "duplicates":
		r, err := h.reports.Duplicates(ctx, filter)
		if err != nil {
			return nil, err
		}
		return export.DuplicatesReport(r), nil
	case "discrepancies":
		r, err := h.reports.Discrepancies(ctx, filter)
		if err != nil {
			return nil, err
		}
		return export.DiscrepanciesReport("discrepancies", r), nil
	}
	return nil, errUnknownReport
}

type badRequestError struct{ err error }

func (e *badRequestError) Error() string { return e.err.Error() }

var errUnknownReport = errors.New("unknown report")

func (h *ReportHandler) fail(c *gin.Context, err error) {
	var bad *badRequestError
	switch {
	case errors.As(err, &bad):
		response.BadRequest(c, bad.Error())
	case errors.Is(err, errUnknownReport):
		response.NotFound(c, "unknown report "+c.Param("report"))
	case errors.Is(err, context.DeadlineExceeded):
		response.ServiceUnavailable(c, "report timed out")
	default:
		response.InternalError(c, err)
	}
}

// Get handles GET /api/v1/reports/:report
func (h *ReportHandler) Get(c *gin.Context) {
	r, err := h.build(c, c.Param("report"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if list, ok := r.Payload.([]domain.Discrepancy); ok {
		response.List(c, list, len(list))
		return
	}
	response.Success(c, r.Payload)
}

// Export handles GET /api/v1/reports/:report/export?format=json|csv|xlsx
func (h *ReportHandler) Export(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	r, err := h.build(c, c.Param("report"))
	if err != nil {
		h.fail(c, err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, r, format); err != nil {
		response.InternalError(c, err)
		return
	}
	filename := fmt.Sprintf("%s.%s", r.Name, format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType(format), buf.Bytes())
}

func contentType(f export.Format) string {
	switch f {
	case export.FormatCSV:
		return "text/csv; charset=utf-8"
	case export.FormatExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/json; charset=utf-8"
}
