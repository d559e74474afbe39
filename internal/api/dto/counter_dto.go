package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// CounterUpdateRequest drives PUT /api/admin/counters/:type.
type CounterUpdateRequest struct {
	Action string `json:"action"`
	Value  *int64 `json:"value"`
}

// CounterResponse is the current value of a billing counter.
type CounterResponse struct {
	Type      domain.CounterName `json:"type"`
	Value     int64              `json:"value"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// NewCounterResponse maps a counter.
func NewCounterResponse(c *domain.Counter) CounterResponse {
	return CounterResponse{Type: c.Name, Value: c.Value, UpdatedAt: c.UpdatedAt}
}
