package businessflow

import (
	"context"
	"log"
	"time"

	"github.com/amirphl/Kiriban/app/services"
	"github.com/amirphl/Kiriban/repository"
	"github.com/amirphl/Kiriban/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// IssuanceOutcome tags what happened to the milestone check of one visit
type IssuanceOutcome string

const (
	// OutcomeSkipped means no owner was supplied or the count is not a milestone
	OutcomeSkipped IssuanceOutcome = "skipped"
	// OutcomeIssued means this call issued the token
	OutcomeIssued IssuanceOutcome = "issued"
	// OutcomeAlreadySeen means another call holds or completed the guard for this count
	OutcomeAlreadySeen IssuanceOutcome = "already_seen"
	// OutcomeFailed means the external issuer failed and the guard was released
	OutcomeFailed IssuanceOutcome = "failed"
)

// IssuanceResult is the outcome of one guarded issuance attempt
type IssuanceResult struct {
	Outcome IssuanceOutcome
	TokenID string
}

// VisitResult is what a visitor gets back for one page view
type VisitResult struct {
	Count      int64
	DigitWidth int
	Issued     bool
	Outcome    IssuanceOutcome
	TokenID    string
}

// VisitFlow records visits and issues at most one token per milestone count.
// The increment is durable before any issuance is attempted, and an issuance
// failure never rolls it back.
type VisitFlow interface {
	RecordVisit(ctx context.Context, counterID, callerOrigin string, ownerID *string) (*VisitResult, error)
	IssueForMilestone(ctx context.Context, counterID string, count int64, ownerID string) (*IssuanceResult, error)
	RetryMilestone(ctx context.Context, counterID string, count int64, ownerID string) (*IssuanceResult, error)
}

type VisitFlowImpl struct {
	counterRepo     repository.CounterRepository
	guard           IssuanceGuard
	issuer          services.IssuanceClient
	assets          AssetFlow
	issuanceTimeout time.Duration
	logger          *log.Logger
}

func NewVisitFlow(
	counterRepo repository.CounterRepository,
	guard IssuanceGuard,
	issuer services.IssuanceClient,
	assets AssetFlow,
	issuanceTimeout time.Duration,
	logger *log.Logger,
) VisitFlow {
	if issuanceTimeout <= 0 {
		issuanceTimeout = utils.DefaultIssuanceTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	return &VisitFlowImpl{
		counterRepo:     counterRepo,
		guard:           guard,
		issuer:          issuer,
		assets:          assets,
		issuanceTimeout: issuanceTimeout,
		logger:          logger,
	}
}

func (f *VisitFlowImpl) RecordVisit(ctx context.Context, counterID, callerOrigin string, ownerID *string) (*VisitResult, error) {
	ctx, span := tracer.Start(ctx, "VisitFlow.RecordVisit")
	defer span.End()
	span.SetAttributes(attribute.String("counter.id", counterID))

	counter, err := f.counterRepo.Increment(ctx, counterID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "increment failed")
		return nil, NewBusinessErrorf("COUNTER_INCREMENT_FAILED", "Failed to increment counter %s", err, counterID)
	}
	if counter == nil {
		return nil, ErrCounterNotFound
	}
	span.SetAttributes(attribute.Int64("counter.count", counter.Count))

	if callerOrigin != "" {
		if err := f.counterRepo.UpdateLastAccessor(ctx, counterID, callerOrigin); err != nil {
			f.logger.Printf("failed to record last accessor for counter %s: %v", counterID, err)
		}
	}

	result := &VisitResult{
		Count:      counter.Count,
		DigitWidth: counter.DigitWidth,
		Outcome:    OutcomeSkipped,
	}

	if utils.IsBlank(ownerID) || !IsMilestone(counter.MilestoneKind, counter.Count) {
		visitsTotal.WithLabelValues(string(result.Outcome)).Inc()
		return result, nil
	}

	issuance, err := f.IssueForMilestone(ctx, counterID, counter.Count, utils.StringValue(ownerID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "issuance guard failed")
		return nil, err
	}

	result.Outcome = issuance.Outcome
	result.TokenID = issuance.TokenID
	result.Issued = issuance.Outcome == OutcomeIssued
	visitsTotal.WithLabelValues(string(result.Outcome)).Inc()
	return result, nil
}

// IssueForMilestone runs the guarded issuance for one (counterID, count) key.
// Only guard storage errors are returned; issuer failures are reported as
// OutcomeFailed after the guard is released.
func (f *VisitFlowImpl) IssueForMilestone(ctx context.Context, counterID string, count int64, ownerID string) (*IssuanceResult, error) {
	ctx, span := tracer.Start(ctx, "VisitFlow.IssueForMilestone")
	defer span.End()
	span.SetAttributes(
		attribute.String("counter.id", counterID),
		attribute.Int64("milestone.count", count),
	)

	acquired, err := f.guard.Acquire(ctx, counterID, count, ownerID)
	if err != nil {
		return nil, NewBusinessError("ISSUANCE_GUARD_FAILED", "Failed to acquire issuance guard", err)
	}
	if !acquired {
		span.SetAttributes(attribute.String("issuance.outcome", string(OutcomeAlreadySeen)))
		return &IssuanceResult{Outcome: OutcomeAlreadySeen}, nil
	}

	// The guard now has to observe the issuer's outcome even if the caller goes away.
	issueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.issuanceTimeout)
	defer cancel()
	// Guard and asset writes get their own deadline so an expired issuer call
	// cannot strand the guard.
	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), utils.DefaultPersistTimeout)
	defer cancelPersist()
	reqID := requestID(ctx)

	start := time.Now()
	tokenID, err := f.issuer.Issue(issueCtx, ownerID)
	issuanceDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		issuanceTotal.WithLabelValues("failure").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "issuance failed")
		f.logger.Printf("[%s] issuance failed for counter %s at %d: %v", reqID, counterID, count, err)

		if relErr := f.guard.Release(persistCtx, counterID, count); relErr != nil {
			f.logger.Printf("[%s] failed to release issuance guard for counter %s at %d: %v", reqID, counterID, count, relErr)
		}
		return &IssuanceResult{Outcome: OutcomeFailed}, nil
	}
	issuanceTotal.WithLabelValues("success").Inc()
	span.SetAttributes(attribute.String("token.id", tokenID))

	if err := f.guard.Complete(persistCtx, counterID, count, tokenID); err != nil {
		// the token exists externally; the pending guard is left for the reconciler
		f.logger.Printf("[%s] failed to mark issuance complete for counter %s at %d (token %s): %v", reqID, counterID, count, tokenID, err)
	}

	if _, err := f.assets.Create(persistCtx, counterID, tokenID, count); err != nil {
		assetPersistFailures.Inc()
		f.logger.Printf("[%s] failed to store asset for counter %s token %s: %v", reqID, counterID, tokenID, err)
	}

	f.logger.Printf("[%s] issued token %s to %s for counter %s at %d", reqID, tokenID, ownerID, counterID, count)
	return &IssuanceResult{Outcome: OutcomeIssued, TokenID: tokenID}, nil
}

// RetryMilestone re-attempts issuance for a milestone the counter has already
// passed. It is rejected for counts that are not milestones, counts not yet
// reached, and keys whose guard is held or completed.
func (f *VisitFlowImpl) RetryMilestone(ctx context.Context, counterID string, count int64, ownerID string) (*IssuanceResult, error) {
	if ownerID == "" {
		return nil, ErrOwnerIDRequired
	}

	counter, err := f.counterRepo.ByCounterID(ctx, counterID)
	if err != nil {
		return nil, NewBusinessError("COUNTER_LOOKUP_FAILED", "Failed to lookup counter", err)
	}
	if counter == nil {
		return nil, ErrCounterNotFound
	}
	if !IsMilestone(counter.MilestoneKind, count) {
		return nil, ErrNotMilestone
	}
	if count > counter.Count {
		return nil, ErrMilestoneNotReached
	}

	return f.IssueForMilestone(ctx, counterID, count, ownerID)
}

// requestID returns the request id set by the HTTP layer, or "-" outside a request
func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(utils.RequestIDKey).(string); ok && id != "" {
		return id
	}
	return "-"
}
