package businessflow

import (
	"context"
	"strings"

	"github.com/amirphl/Kiriban/models"
	"github.com/amirphl/Kiriban/repository"
	"github.com/amirphl/Kiriban/utils"
	"github.com/google/uuid"
)

// CreateCounterInput describes a counter to create. An empty CounterID gets a generated one.
type CreateCounterInput struct {
	CounterID     string
	InitialCount  int64
	DigitWidth    int
	MilestoneKind string
}

// CounterFlow creates and reads counters
type CounterFlow interface {
	Create(ctx context.Context, in CreateCounterInput) (*models.Counter, error)
	Get(ctx context.Context, counterID string) (*models.Counter, error)
}

type CounterFlowImpl struct {
	repo repository.CounterRepository
}

func NewCounterFlow(repo repository.CounterRepository) CounterFlow {
	return &CounterFlowImpl{repo: repo}
}

func (f *CounterFlowImpl) Create(ctx context.Context, in CreateCounterInput) (*models.Counter, error) {
	if in.InitialCount < 0 {
		return nil, ErrInvalidInitialCount
	}
	if in.DigitWidth < utils.MinDigitWidth || in.DigitWidth > utils.MaxDigitWidth {
		return nil, ErrInvalidDigitWidth
	}
	kind, err := ParseMilestoneKind(in.MilestoneKind)
	if err != nil {
		return nil, err
	}

	counterID := strings.TrimSpace(in.CounterID)
	if counterID == "" {
		counterID = uuid.NewString()
	}

	counter := &models.Counter{
		CounterID:     counterID,
		Count:         in.InitialCount,
		DigitWidth:    in.DigitWidth,
		MilestoneKind: kind,
	}
	created, err := f.repo.Create(ctx, counter)
	if err != nil {
		return nil, NewBusinessError("COUNTER_CREATE_FAILED", "Failed to create counter", err)
	}
	if !created {
		return nil, ErrCounterAlreadyExists
	}
	return counter, nil
}

func (f *CounterFlowImpl) Get(ctx context.Context, counterID string) (*models.Counter, error) {
	counter, err := f.repo.ByCounterID(ctx, counterID)
	if err != nil {
		return nil, NewBusinessError("COUNTER_LOOKUP_FAILED", "Failed to lookup counter", err)
	}
	if counter == nil {
		return nil, ErrCounterNotFound
	}
	return counter, nil
}
