package domain

import "context"

// BatchStore persists batch reports and their submissions.
type BatchStore interface {
	SaveReport(ctx context.Context, report BatchReport) error
	ListRecent(ctx context.Context, limit int) ([]BatchReport, error)
}
