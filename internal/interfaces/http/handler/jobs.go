package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/erp/manufacture/internal/domain/marketplace"
	"github.com/erp/manufacture/internal/infrastructure/scheduler"
	"github.com/erp/manufacture/internal/interfaces/http/dto"
)

// JobScheduler accepts sync jobs and reports finished ones
type JobScheduler interface {
	Schedule(kind scheduler.JobKind, account marketplace.AccountID, runAt time.Time) (*scheduler.Job, error)
	History(limit int) []*scheduler.Job
}

// TriggerJobRequest is the body of POST /jobs. Account is ignored for purge.
type TriggerJobRequest struct {
	Kind    string `json:"kind" binding:"required,oneof=orders stocks purge fbs-reset"`
	Account string `json:"account"`
}

// HistoryQuery bounds the number of jobs returned
type HistoryQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

// JobResponse is a job as exposed by the API
type JobResponse struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Account     string     `json:"account,omitempty"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	RunAt       time.Time  `json:"run_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	RetryCount  int        `json:"retry_count"`
}

func toJobResponse(j *scheduler.Job) JobResponse {
	return JobResponse{
		ID:          j.ID.String(),
		Kind:        string(j.Kind),
		Account:     j.Account.String(),
		Status:      string(j.Status),
		Error:       j.Error,
		RunAt:       j.RunAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		RetryCount:  j.RetryCount,
	}
}

// JobHandler lets operators run a sync job out of schedule and inspect recent runs
type JobHandler struct {
	BaseHandler
	scheduler JobScheduler
	accounts  marketplace.AccountProvider
	now       func() time.Time
}

func NewJobHandler(s JobScheduler, accounts marketplace.AccountProvider) *JobHandler {
	return &JobHandler{scheduler: s, accounts: accounts, now: time.Now}
}

// Trigger handles POST /jobs
func (h *JobHandler) Trigger(c *gin.Context) {
	var req TriggerJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	kind := scheduler.JobKind(req.Kind)
	var account marketplace.AccountID
	if kind.PerAccount() {
		id, err := marketplace.NewAccountID(req.Account)
		if err != nil {
			h.BadRequest(c, err.Error())
			return
		}
		a, err := h.accounts.Account(id)
		if err != nil {
			h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, err.Error())
			return
		}
		if !a.Active() {
			h.Error(c, http.StatusUnprocessableEntity, dto.ErrCodeInvalidState, "account is disabled or has no token")
			return
		}
		account = id
	}

	job, err := h.scheduler.Schedule(kind, account, h.now().UTC())
	switch {
	case err == nil:
		h.Accepted(c, toJobResponse(job))
	case errors.Is(err, scheduler.ErrJobAlreadyInProgress):
		h.Error(c, http.StatusConflict, dto.ErrCodeConflict, err.Error())
	case errors.Is(err, scheduler.ErrJobQueueFull), errors.Is(err, scheduler.ErrSchedulerNotRunning):
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeUnavailable, err.Error())
	default:
		h.HandleError(c, err)
	}
}

// History handles GET /jobs?limit=
func (h *JobHandler) History(c *gin.Context) {
	q := HistoryQuery{Limit: 20}
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}

	jobs := h.scheduler.History(q.Limit)
	resp := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp = append(resp, toJobResponse(j))
	}
	h.Success(c, resp)
}
