package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/middleware"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/service"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/logger"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/response"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/telemetry"
)

// Reconciler runs the reconcile pipeline
type Reconciler interface {
	Run(ctx context.Context, opts service.RunOptions) (*domain.RunSummary, error)
	ReconcileOne(ctx context.Context, id string, opts service.RunOptions) (*domain.RunSummary, error)
}

// Run states
const (
	RunStateRunning   = "running"
	RunStateCompleted = "completed"
	RunStateFailed    = "failed"
)

// DefaultRunHistory is how many runs GET /api/v1/runs/:id can still find
const DefaultRunHistory = 100

// StartRunRequest is the body of POST /api/v1/runs
type StartRunRequest struct {
	DryRun           *bool  `json:"dryRun"`
	RegistrationID   string `json:"registrationId"`
	RegistrationType string `json:"registrationType"`
	PaymentStatus    string `json:"paymentStatus"`
	CorrectTickets   bool   `json:"correctTickets"`
}

// RunStatus is a run started through the API
type RunStatus struct {
	RunID       string             `json:"runId"`
	State       string             `json:"state"`
	DryRun      bool               `json:"dryRun"`
	RequestedBy string             `json:"requestedBy,omitempty"`
	StartedAt   time.Time          `json:"startedAt"`
	Error       string             `json:"error,omitempty"`
	Summary     *domain.RunSummary `json:"summary,omitempty"`
}

// RunHandler starts reconcile runs and reports their progress
type RunHandler struct {
	reconciler Reconciler
	log        *logger.Logger

	mu    sync.RWMutex
	runs  map[string]*RunStatus
	order []string
	limit int
	wg    sync.WaitGroup
}

// NewRunHandler creates a new run handler
func NewRunHandler(reconciler Reconciler, log *logger.Logger) *RunHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &RunHandler{
		reconciler: reconciler,
		log:        log,
		runs:       make(map[string]*RunStatus),
		limit:      DefaultRunHistory,
	}
}

// Start handles POST /api/v1/runs. A run scoped to one registration
// completes inline; a full run is started in the background and answered
// with 202 and the run id. Runs are dry unless dryRun is explicitly false.
func (h *RunHandler) Start(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.start_run")
	defer span.End()

	var req StartRunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request body: "+err.Error())
			return
		}
	}

	opts := service.RunOptions{
		RunID:  uuid.New().String(),
		DryRun: req.DryRun == nil || *req.DryRun,
		Filter: bson.M{},

		CorrectTickets: req.CorrectTickets,
	}
	if req.RegistrationType != "" {
		opts.Filter["registrationType"] = req.RegistrationType
	}
	if req.PaymentStatus != "" {
		opts.Filter["paymentStatus"] = req.PaymentStatus
	}

	status := &RunStatus{
		RunID:       opts.RunID,
		State:       RunStateRunning,
		DryRun:      opts.DryRun,
		RequestedBy: middleware.GetSubject(c),
		StartedAt:   time.Now().UTC(),
	}
	telemetry.SetSpanAttributes(ctx, telemetry.RunAttributes(opts.RunID, opts.DryRun)...)
	h.log.Info("reconcile run requested",
		zap.String("run_id", opts.RunID),
		zap.Bool("dry_run", opts.DryRun),
		zap.String("registration_id", req.RegistrationID),
		zap.String("requested_by", status.RequestedBy),
	)

	if req.RegistrationID != "" {
		summary, err := h.reconciler.ReconcileOne(ctx, req.RegistrationID, opts)
		if err != nil {
			telemetry.SetSpanError(ctx, err)
			h.failRun(c, err)
			return
		}
		if len(summary.SkipReasons) > 0 && summary.SkipReasons[service.ReasonNotFound] > 0 {
			response.NotFound(c, "registration "+req.RegistrationID+" not found")
			return
		}
		status.State = RunStateCompleted
		status.Summary = summary
		h.store(status)
		response.Success(c, status)
		return
	}

	accepted := *status
	h.store(status)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		// The run outlives the request
		summary, err := h.reconciler.Run(context.WithoutCancel(ctx), opts)
		h.finish(opts.RunID, summary, err)
	}()

	c.Header("Location", "/api/v1/runs/"+opts.RunID)
	response.Accepted(c, accepted, opts.RunID)
}

// Get handles GET /api/v1/runs/:id
func (h *RunHandler) Get(c *gin.Context) {
	h.mu.RLock()
	status, ok := h.runs[c.Param("id")]
	var snapshot RunStatus
	if ok {
		snapshot = *status
	}
	h.mu.RUnlock()

	if !ok {
		response.NotFound(c, "run not found")
		return
	}
	response.Success(c, snapshot)
}

// Wait blocks until background runs have finished or ctx is done
func (h *RunHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *RunHandler) store(status *RunStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.runs[status.RunID]; !ok {
		h.order = append(h.order, status.RunID)
	}
	h.runs[status.RunID] = status
	h.evict()
}

// evict forgets the oldest finished runs beyond the limit. Runs still in
// progress are never dropped. Callers hold mu.
func (h *RunHandler) evict() {
	excess := len(h.runs) - h.limit
	if excess <= 0 {
		return
	}
	kept := h.order[:0]
	for _, id := range h.order {
		if excess > 0 && h.runs[id].State != RunStateRunning {
			delete(h.runs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	h.order = kept
}

func (h *RunHandler) finish(runID string, summary *domain.RunSummary, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	defer h.evict()

	status := h.runs[runID]
	status.Summary = summary
	if err != nil {
		status.State = RunStateFailed
		status.Error = err.Error()
		h.log.Error("reconcile run failed", zap.String("run_id", runID), zap.Error(err))
		return
	}
	status.State = RunStateCompleted
}

func (h *RunHandler) failRun(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrRunLocked):
		response.Conflict(c, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		response.ServiceUnavailable(c, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, "RUN_FAILED", "reconcile run failed", err.Error())
	}
}
