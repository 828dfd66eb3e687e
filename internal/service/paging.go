package service

import (
	"fmt"

	"github.com/alanyoungcy/marketindexer/internal/domain"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100

	DefaultDays = 30
	MaxDays     = 365
)

// Page validates a limit/offset pair. A zero limit selects DefaultLimit.
func Page(limit, offset int) (domain.ListOpts, error) {
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 1 || limit > MaxLimit {
		return domain.ListOpts{}, fmt.Errorf("limit must be 1-%d: %w", MaxLimit, domain.ErrInvalidInput)
	}
	if offset < 0 {
		return domain.ListOpts{}, fmt.Errorf("offset must be >= 0: %w", domain.ErrInvalidInput)
	}
	return domain.ListOpts{Limit: limit, Offset: offset}, nil
}
