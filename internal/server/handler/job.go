package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

// maxJobBody bounds the request envelope size.
const maxJobBody = 1 << 20

// JobRunner executes one keeper job.
type JobRunner interface {
	Execute(ctx context.Context, job domain.Job) (domain.BatchReport, error)
}

// jobRequest is the adapter envelope posted by the job scheduler.
type jobRequest struct {
	ID   string  `json:"id"`
	Data jobData `json:"data"`
}

type jobData struct {
	Method          string `json:"method"`
	Sport           string `json:"sport"`
	ContractAddress string `json:"contractAddress"`
	DaysInAdvance   int    `json:"daysInAdvance"`
	// StartBuffer is in seconds.
	StartBuffer  int64 `json:"startBuffer"`
	AffiliateIDs []int `json:"affiliateIds"`
}

type jobResponse struct {
	JobRunID   string        `json:"jobRunID"`
	StatusCode int           `json:"statusCode"`
	Data       jobResultData `json:"data"`
}

type jobResultData struct {
	BatchID     string              `json:"batchId"`
	Policy      domain.Policy       `json:"policy"`
	Succeeded   int                 `json:"succeeded"`
	Failed      int                 `json:"failed"`
	Skipped     int                 `json:"skipped"`
	Submissions []domain.Submission `json:"submissions"`
	Result      int                 `json:"result"`
}

type jobErrorResponse struct {
	JobRunID   string      `json:"jobRunID"`
	Status     string      `json:"status"`
	StatusCode int         `json:"statusCode"`
	Error      jobErrorMsg `json:"error"`
}

type jobErrorMsg struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// JobHandler serves the job adapter endpoint.
type JobHandler struct {
	jobs   JobRunner
	logger *slog.Logger
}

// NewJobHandler creates a JobHandler.
func NewJobHandler(jobs JobRunner, logger *slog.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, logger: logger.With(slog.String("handler", "job"))}
}

// Run decodes the envelope, executes the job and answers in the adapter
// envelope format.
// POST /
func (h *JobHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxJobBody))
	if err != nil {
		writeJobError(w, "", http.StatusBadRequest, "ReadError", err.Error())
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeJobError(w, "", http.StatusBadRequest, "ValidationError", "invalid request body: "+err.Error())
		return
	}
	if req.ID == "" {
		req.ID = "1"
	}

	job, err := req.job()
	if err != nil {
		status, name := classify(err)
		writeJobError(w, req.ID, status, name, err.Error())
		return
	}

	report, err := h.jobs.Execute(r.Context(), job)
	if err != nil {
		status, name := classify(err)
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: job failed",
				slog.String("job_run_id", req.ID),
				slog.String("error", err.Error()),
			)
		}
		writeJobError(w, req.ID, status, name, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, jobResponse{
		JobRunID:   req.ID,
		StatusCode: http.StatusOK,
		Data: jobResultData{
			BatchID:     report.BatchID,
			Policy:      report.Result.Policy,
			Succeeded:   report.Result.Succeeded,
			Failed:      report.Result.Failed,
			Skipped:     report.Result.Skipped,
			Submissions: report.Result.Submissions,
			Result:      report.Result.Succeeded,
		},
	})
}

func (req jobRequest) job() (domain.Job, error) {
	method, err := domain.ParseMethod(req.Data.Method)
	if err != nil {
		return domain.Job{}, err
	}
	if req.Data.StartBuffer < 0 {
		return domain.Job{}, domain.Configurationf("startBuffer", "", "must not be negative")
	}
	return domain.Job{
		ID:              req.ID,
		Method:          method,
		Sport:           domain.Sport(req.Data.Sport),
		ContractAddress: req.Data.ContractAddress,
		DaysInAdvance:   req.Data.DaysInAdvance,
		StartBuffer:     time.Duration(req.Data.StartBuffer) * time.Second,
		AffiliateIDs:    req.Data.AffiliateIDs,
	}, nil
}

// classify maps a job error to its HTTP status and error name.
func classify(err error) (int, string) {
	var abort *domain.BatchAbortError
	switch {
	case errors.As(err, &abort):
		// An abort may wrap any cause, including a configuration error.
		return http.StatusUnprocessableEntity, "BatchAbortError"
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusBadRequest, "ConfigurationError"
	case errors.Is(err, domain.ErrAccountBusy):
		return http.StatusConflict, "AccountBusyError"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TimeoutError"
	default:
		return http.StatusInternalServerError, "AdapterError"
	}
}

func writeJobError(w http.ResponseWriter, jobRunID string, status int, name, msg string) {
	writeJSON(w, status, jobErrorResponse{
		JobRunID:   jobRunID,
		Status:     "errored",
		StatusCode: status,
		Error:      jobErrorMsg{Name: name, Message: msg},
	})
}
