package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"

	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

var batchIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// ReportArchive stores one JSON object per batch report under
// <prefix>/<batch_id>.json. It implements domain.ReportSink.
type ReportArchive struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	prefix string
}

// NewReportArchive creates a ReportArchive on the client's bucket and prefix.
func NewReportArchive(c *Client) *ReportArchive {
	return newReportArchive(NewWriter(c), NewReader(c), c.prefix)
}

func newReportArchive(w domain.BlobWriter, r domain.BlobReader, prefix string) *ReportArchive {
	return &ReportArchive{writer: w, reader: r, prefix: prefix}
}

func (a *ReportArchive) Name() string { return "s3" }

// Key returns the object key for a batch id.
func (a *ReportArchive) Key(batchID string) string {
	return path.Join(a.prefix, batchID+".json")
}

// Record uploads report.
func (a *ReportArchive) Record(ctx context.Context, report domain.BatchReport) error {
	if !batchIDPattern.MatchString(report.BatchID) {
		return fmt.Errorf("s3blob: invalid batch id %q", report.BatchID)
	}
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal report %s: %w", report.BatchID, err)
	}
	return a.writer.Put(ctx, a.Key(report.BatchID), bytes.NewReader(body), "application/json")
}

// Load fetches an archived report. It returns domain.ErrNotFound when the
// batch was never archived.
func (a *ReportArchive) Load(ctx context.Context, batchID string) (domain.BatchReport, error) {
	if !batchIDPattern.MatchString(batchID) {
		return domain.BatchReport{}, fmt.Errorf("s3blob: batch %q: %w", batchID, domain.ErrNotFound)
	}
	body, err := a.reader.Get(ctx, a.Key(batchID))
	if err != nil {
		return domain.BatchReport{}, err
	}
	defer body.Close()

	var report domain.BatchReport
	if err := json.NewDecoder(body).Decode(&report); err != nil {
		return domain.BatchReport{}, fmt.Errorf("s3blob: decode report %s: %w", batchID, err)
	}
	return report, nil
}

var _ domain.ReportSink = (*ReportArchive)(nil)
