package s3blob

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

// fakeS3 is a path-style object store good enough for PutObject, GetObject
// and HeadBucket.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		f.types[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", f.types[key])
		w.Write(body)
	case http.MethodHead:
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestArchive(t *testing.T) (*ReportArchive, *fakeS3, *Client) {
	t.Helper()
	store := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(store)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), ClientConfig{
		Endpoint:       srv.URL,
		Region:         "us-east-1",
		Bucket:         "keeper-reports",
		Prefix:         "/batches/",
		AccessKey:      "test",
		SecretKey:      "test",
		ForcePathStyle: true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return NewReportArchive(c), store, c
}

func TestReportArchiveRoundTrip(t *testing.T) {
	archive, store, _ := newTestArchive(t)
	ctx := context.Background()

	report := domain.BatchReport{
		BatchID:    "6f1c2b9e-3d4a-4f5b-8c7d-0e1f2a3b4c5d",
		Method:     domain.MethodResolve,
		Contract:   "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		StartedAt:  time.Date(2026, 10, 16, 20, 1, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 10, 16, 20, 1, 3, 0, time.UTC),
		Result: domain.BatchResult{
			Policy:      domain.PolicyStrictResolve,
			Succeeded:   1,
			Submissions: []domain.Submission{{Label: "create_and_resolve", Nonce: 12, TxHash: "0xabc"}},
		},
	}
	if err := archive.Record(ctx, report); err != nil {
		t.Fatalf("Record: %v", err)
	}

	key := "keeper-reports/batches/" + report.BatchID + ".json"
	if _, ok := store.objects[key]; !ok {
		t.Fatalf("object %s not stored; have %v", key, store.objects)
	}
	if store.types[key] != "application/json" {
		t.Errorf("content type = %q", store.types[key])
	}

	got, err := archive.Load(ctx, report.BatchID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Result.Submissions[0].TxHash != "0xabc" || !got.FinishedAt.Equal(report.FinishedAt) {
		t.Errorf("loaded %+v", got)
	}
}

func TestReportArchiveMissingAndInvalid(t *testing.T) {
	archive, _, c := newTestArchive(t)
	ctx := context.Background()

	if _, err := archive.Load(ctx, "never-archived"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing err = %v, want ErrNotFound", err)
	}
	if _, err := archive.Load(ctx, "../etc/passwd"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("traversal err = %v, want ErrNotFound", err)
	}
	if err := archive.Record(ctx, domain.BatchReport{BatchID: "a/b"}); err == nil {
		t.Error("expected invalid batch id error")
	}
	if err := c.Health(ctx); err != nil {
		t.Errorf("Health: %v", err)
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in     string
		useSSL bool
		want   string
	}{
		{"http://localhost:9000", true, "http://localhost:9000"},
		{"minio:9000", false, "http://minio:9000"},
		{"s3.example.com", true, "https://s3.example.com"},
	}
	for _, tt := range tests {
		if got := normaliseEndpoint(tt.in, tt.useSSL); got != tt.want {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", tt.in, tt.useSSL, got, tt.want)
		}
	}
}

func TestReaderRefusesOversizedObject(t *testing.T) {
	_, store, c := newTestArchive(t)
	store.objects["keeper-reports/big.json"] = []byte(`{"batch_id":"big"}`)
	store.types["keeper-reports/big.json"] = "application/json"

	r := NewReader(c)
	r.maxSize = 4
	if _, err := r.Get(context.Background(), "big.json"); err == nil || errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want size limit error", err)
	}

	r.maxSize = maxObjectSize
	body, err := r.Get(context.Background(), "big.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer body.Close()
	if b, _ := io.ReadAll(body); string(b) != `{"batch_id":"big"}` {
		t.Errorf("body = %s", b)
	}
}

func TestIsMissing(t *testing.T) {
	notFound := &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusNotFound}},
		Err:      errors.New("not found"),
	}
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"no such key", &types.NoSuchKey{}, true},
		{"api code", &smithy.GenericAPIError{Code: "NotFound"}, true},
		{"bare 404", notFound, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"transport", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isMissing(tt.err); got != tt.want {
				t.Errorf("isMissing = %v, want %v", got, tt.want)
			}
		})
	}
}
