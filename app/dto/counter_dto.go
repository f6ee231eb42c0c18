package dto

import "time"

// CreateCounterRequest is the body of POST /api/v1/counters
type CreateCounterRequest struct {
	CounterID     string `json:"counter_id,omitempty" validate:"omitempty,max=64,printascii,excludesall=/?#%"`
	InitialCount  int64  `json:"initial_count" validate:"gte=0"`
	DigitWidth    int    `json:"digit_width" validate:"required,gte=1,lte=8"`
	MilestoneKind string `json:"milestone_kind,omitempty" validate:"omitempty,oneof=round_or_repdigit_100 round_or_repdigit_10"`
}

// CounterResponse describes a counter
type CounterResponse struct {
	CounterID     string    `json:"counter_id"`
	Count         int64     `json:"count"`
	DigitWidth    int       `json:"digit_width"`
	MilestoneKind string    `json:"milestone_kind"`
	ImageURL      string    `json:"image_url"`
	CreatedAt     time.Time `json:"created_at"`
}

// RetryMilestoneRequest asks for issuance of a milestone the counter already passed
type RetryMilestoneRequest struct {
	OwnerID string `json:"owner_id" validate:"required,max=256"`
}

// RetryMilestoneResponse reports the outcome of a retried issuance
type RetryMilestoneResponse struct {
	CounterID string  `json:"counter_id"`
	Count     int64   `json:"count"`
	Outcome   string  `json:"outcome"`
	TokenID   *string `json:"token_id,omitempty"`
}

// HealthResponse is returned by the health probe
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Version   string            `json:"version"`
	Service   string            `json:"service"`
	Checks    map[string]string `json:"checks,omitempty"`
}
