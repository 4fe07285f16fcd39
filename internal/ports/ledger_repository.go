package ports

import (
	"context"

	"github.com/bnema/xhs-pilot/internal/domain"
)

type LedgerRepository interface {
	Load(ctx context.Context) (domain.LedgerState, error)
	Save(ctx context.Context, state domain.LedgerState) error
}

// StrategyRepository returns a zero profile when nothing was saved yet.
type StrategyRepository interface {
	Load(ctx context.Context) (domain.StrategyProfile, error)
	Save(ctx context.Context, profile domain.StrategyProfile) error
}
