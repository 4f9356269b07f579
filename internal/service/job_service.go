package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

// defaultLockTTL bounds how long a crashed keeper can block the account.
const defaultLockTTL = 10 * time.Minute

// JobService validates jobs, serialises them per signing account and fans
// the resulting report out to the configured sinks.
type JobService struct {
	markets *MarketOrchestrator
	events  *EventService
	account domain.Account
	locks   domain.LockManager
	sinks   []domain.ReportSink
	lockTTL time.Duration
	nowFunc func() time.Time
	logger  *slog.Logger
}

// NewJobService creates a JobService. sinks may be empty.
func NewJobService(
	markets *MarketOrchestrator,
	events *EventService,
	account domain.Account,
	locks domain.LockManager,
	sinks []domain.ReportSink,
	logger *slog.Logger,
) *JobService {
	return &JobService{
		markets: markets,
		events:  events,
		account: account,
		locks:   locks,
		sinks:   sinks,
		lockTTL: defaultLockTTL,
		nowFunc: time.Now,
		logger:  logger,
	}
}

// SetLockTTL changes the account lock lifetime.
func (s *JobService) SetLockTTL(ttl time.Duration) {
	if ttl > 0 {
		s.lockTTL = ttl
	}
}

// AccountLockKey is the lock name guarding one signing account.
func AccountLockKey(address string) string {
	return "account:" + strings.ToLower(address)
}

// Execute runs one job to completion. Configuration problems are returned
// before the account lock is taken; batch errors are returned after the
// report has been recorded.
func (s *JobService) Execute(ctx context.Context, job domain.Job) (domain.BatchReport, error) {
	profile, err := validateJob(job)
	if err != nil {
		return domain.BatchReport{}, err
	}

	report := domain.BatchReport{
		BatchID:  uuid.New().String(),
		JobID:    job.ID,
		Method:   job.Method,
		Sport:    profile.Sport,
		Contract: job.ContractAddress,
		Account:  s.account.Address(),
	}

	unlock, err := s.locks.Acquire(ctx, AccountLockKey(report.Account), s.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return domain.BatchReport{}, fmt.Errorf("%w: %s", domain.ErrAccountBusy, report.Account)
		}
		return domain.BatchReport{}, fmt.Errorf("job_service: account lock: %w", err)
	}
	defer unlock()

	log := s.logger.With(
		slog.String("batch_id", report.BatchID),
		slog.String("job_id", job.ID),
		slog.String("method", string(job.Method)),
		slog.String("sport", string(profile.Sport)),
	)
	log.InfoContext(ctx, "job_service: batch started", slog.String("contract", job.ContractAddress))

	report.StartedAt = s.nowFunc().UTC()
	result, runErr := s.run(ctx, job, profile)
	report.FinishedAt = s.nowFunc().UTC()
	report.Result = result
	if runErr != nil {
		report.Error = runErr.Error()
		log.ErrorContext(ctx, "job_service: batch failed", slog.String("error", runErr.Error()))
	} else {
		log.InfoContext(ctx, "job_service: batch finished",
			slog.Int("succeeded", result.Succeeded),
			slog.Int("failed", result.Failed),
			slog.Int("skipped", result.Skipped),
			slog.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
		)
	}

	s.record(ctx, report)
	return report, runErr
}

func (s *JobService) run(ctx context.Context, job domain.Job, profile domain.SportProfile) (domain.BatchResult, error) {
	switch job.Method {
	case domain.MethodPoke:
		return s.markets.Poke(ctx, job.ContractAddress)
	case domain.MethodResolve:
		return s.markets.Resolve(ctx, job.ContractAddress)
	case domain.MethodCreate:
		return s.events.Create(ctx, CreateRequest{
			Profile:       profile,
			Contract:      job.ContractAddress,
			DaysInAdvance: job.DaysInAdvance,
			StartBuffer:   job.StartBuffer,
			AffiliateIDs:  job.AffiliateIDs,
		})
	default:
		return domain.BatchResult{}, domain.Configurationf("method", string(job.Method), "method not supported")
	}
}

// record hands the report to every sink. Sink failures never change the
// job's outcome.
func (s *JobService) record(ctx context.Context, report domain.BatchReport) {
	for _, sink := range s.sinks {
		if err := sink.Record(ctx, report); err != nil {
			s.logger.WarnContext(ctx, "job_service: report sink failed",
				slog.String("sink", sink.Name()),
				slog.String("batch_id", report.BatchID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// validateJob checks the method/sport combination and the contract address.
func validateJob(job domain.Job) (domain.SportProfile, error) {
	sport := job.Sport
	if sport == "" && (job.Method == domain.MethodPoke || job.Method == domain.MethodResolve) {
		sport = domain.SportCrypto
	}
	profile, err := domain.ParseSport(string(sport))
	if err != nil {
		return domain.SportProfile{}, err
	}
	if strings.TrimSpace(job.ContractAddress) == "" {
		return domain.SportProfile{}, domain.Configurationf("contractAddress", "", "required")
	}

	switch job.Method {
	case domain.MethodPoke, domain.MethodResolve:
		if profile.Family != domain.FamilyCrypto {
			return domain.SportProfile{}, domain.Configurationf("sport", string(profile.Sport),
				"method %s only applies to crypto markets", job.Method)
		}
	case domain.MethodCreate:
		if profile.Family == domain.FamilyCrypto {
			return domain.SportProfile{}, domain.Configurationf("sport", string(profile.Sport),
				"crypto markets are created by resolve")
		}
		if job.DaysInAdvance <= 0 {
			return domain.SportProfile{}, domain.Configurationf("daysInAdvance", fmt.Sprint(job.DaysInAdvance), "must be positive")
		}
	default:
		return domain.SportProfile{}, domain.Configurationf("method", string(job.Method), "method not supported")
	}
	return profile, nil
}
