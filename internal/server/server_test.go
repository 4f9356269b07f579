package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/marketkeeper/internal/crypto"
	"github.com/alanyoungcy/marketkeeper/internal/domain"
	"github.com/alanyoungcy/marketkeeper/internal/server/handler"
)

type fakeRunner struct {
	got    domain.Job
	report domain.BatchReport
	err    error
}

func (f *fakeRunner) Execute(_ context.Context, job domain.Job) (domain.BatchReport, error) {
	f.got = job
	return f.report, f.err
}

type fakeHistory struct {
	reports []domain.BatchReport
}

func (f *fakeHistory) ListRecent(_ context.Context, limit int) ([]domain.BatchReport, error) {
	if limit < len(f.reports) {
		return f.reports[:limit], nil
	}
	return f.reports, nil
}

func (f *fakeHistory) Load(_ context.Context, id string) (domain.BatchReport, error) {
	for _, r := range f.reports {
		if r.BatchID == id {
			return r, nil
		}
	}
	return domain.BatchReport{}, domain.ErrNotFound
}

func testHandler(cfg Config, runner *fakeRunner, checks map[string]handler.CheckFunc) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	history := &fakeHistory{reports: []domain.BatchReport{{BatchID: "b2"}, {BatchID: "b1"}}}
	return NewHandler(cfg, Handlers{
		Health:  handler.NewHealthHandler(checks, logger),
		Jobs:    handler.NewJobHandler(runner, logger),
		Batches: handler.NewBatchHandler(history, history, logger),
	}, nil, nil, logger)
}

func postJob(h http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestJobEnvelopeSuccess(t *testing.T) {
	runner := &fakeRunner{report: domain.BatchReport{
		BatchID: "b9",
		Result:  domain.BatchResult{Policy: domain.PolicyLenientPoke, Succeeded: 3, Failed: 1, Skipped: 2},
	}}
	h := testHandler(Config{}, runner, nil)

	rec := postJob(h, `{"id":"42","data":{"method":"CREATE","sport":"nfl","contractAddress":"0xabc","daysInAdvance":2,"startBuffer":60,"affiliateIds":[1,3]}}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}

	want := domain.Job{ID: "42", Method: domain.MethodCreate, Sport: domain.SportNFL, ContractAddress: "0xabc",
		DaysInAdvance: 2, StartBuffer: time.Minute, AffiliateIDs: []int{1, 3}}
	if fmt.Sprint(runner.got) != fmt.Sprint(want) {
		t.Errorf("job = %+v, want %+v", runner.got, want)
	}

	var resp struct {
		JobRunID   string `json:"jobRunID"`
		StatusCode int    `json:"statusCode"`
		Data       struct {
			BatchID   string `json:"batchId"`
			Succeeded int    `json:"succeeded"`
			Failed    int    `json:"failed"`
			Skipped   int    `json:"skipped"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.JobRunID != "42" || resp.StatusCode != 200 || resp.Data.BatchID != "b9" ||
		resp.Data.Succeeded != 3 || resp.Data.Failed != 1 || resp.Data.Skipped != 2 {
		t.Errorf("response = %+v", resp)
	}
}

func TestJobEnvelopeErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantName string
	}{
		{"malformed json", `{"id":`, nil, http.StatusBadRequest, "ValidationError"},
		{"unknown method", `{"id":"1","data":{"method":"burn"}}`, nil, http.StatusBadRequest, "ConfigurationError"},
		{"configuration", `{"id":"1","data":{"method":"create","sport":"cricket"}}`,
			domain.Configurationf("sport", "cricket", "unsupported sport"), http.StatusBadRequest, "ConfigurationError"},
		{"account busy", `{"id":"1","data":{"method":"poke"}}`,
			fmt.Errorf("%w: 0xabc", domain.ErrAccountBusy), http.StatusConflict, "AccountBusyError"},
		{"batch abort", `{"id":"1","data":{"method":"resolve"}}`,
			&domain.BatchAbortError{Coin: "ETH", Err: errors.New("rpc down")}, http.StatusUnprocessableEntity, "BatchAbortError"},
		{"batch abort on bad feed", `{"id":"1","data":{"method":"resolve"}}`,
			&domain.BatchAbortError{Coin: "ETH", Err: domain.Configurationf("priceFeed", "0x0", "zero address")},
			http.StatusUnprocessableEntity, "BatchAbortError"},
		{"other", `{"id":"1","data":{"method":"poke"}}`,
			errors.New("chain: dial: refused"), http.StatusInternalServerError, "AdapterError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testHandler(Config{}, &fakeRunner{err: tt.err}, nil)
			rec := postJob(h, tt.body, nil)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body)
			}
			var resp struct {
				Status     string `json:"status"`
				StatusCode int    `json:"statusCode"`
				Error      struct {
					Name    string `json:"name"`
					Message string `json:"message"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != "errored" || resp.StatusCode != tt.wantCode || resp.Error.Name != tt.wantName || resp.Error.Message == "" {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestAuth(t *testing.T) {
	sig := &crypto.RequestAuth{Secret: "s3cret", Tolerance: time.Hour}
	cfg := Config{APIKey: "key", Signature: sig}
	body := `{"id":"1","data":{"method":"poke","contractAddress":"0xabc"}}`

	signed := sig.Headers(http.MethodPost, "/", body, time.Now().Unix())
	tampered := sig.Headers(http.MethodPost, "/", body+" ", time.Now().Unix())

	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"no credentials", nil, http.StatusUnauthorized},
		{"wrong key", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"bearer", map[string]string{"Authorization": "Bearer key"}, http.StatusOK},
		{"api key header", map[string]string{"X-API-Key": "key"}, http.StatusOK},
		{"signature", signed, http.StatusOK},
		{"signature over other body", tampered, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			rec := postJob(testHandler(cfg, runner, nil), body, tt.headers)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body)
			}
			if tt.want == http.StatusOK && runner.got.ContractAddress != "0xabc" {
				t.Errorf("body not passed through auth: %+v", runner.got)
			}
		})
	}

	rec := httptest.NewRecorder()
	testHandler(cfg, &fakeRunner{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health behind auth: %d", rec.Code)
	}
}

func TestHealthReportsDegradedDependency(t *testing.T) {
	h := testHandler(Config{}, &fakeRunner{}, map[string]handler.CheckFunc{
		"redis":    func(context.Context) error { return nil },
		"postgres": func(context.Context) error { return errors.New("connection refused") },
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "degraded" || resp.Dependencies["redis"] != "ok" || resp.Dependencies["postgres"] != "connection refused" {
		t.Errorf("response = %+v", resp)
	}
}

func TestBatchEndpoints(t *testing.T) {
	h := testHandler(Config{}, &fakeRunner{}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/batches?limit=1", nil))
	var list struct {
		Batches []domain.BatchReport `json:"batches"`
		Count   int                  `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || list.Count != 1 || list.Batches[0].BatchID != "b2" {
		t.Errorf("list: %d %+v", rec.Code, list)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/batches/b1", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"batch_id":"b1"`) {
		t.Errorf("get: %d %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/batches/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing: %d", rec.Code)
	}
}
