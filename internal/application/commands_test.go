package application

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/xhs-pilot/internal/domain"
)

func TestExploreParamsValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		params  ExploreParams
		wantErr string
	}{
		{name: "defaults", params: ExploreParams{Count: 10, LikeProbability: 0.3, CollectProbability: 0.1}},
		{name: "at cap", params: ExploreParams{Count: MaxExploreCount}},
		{name: "zero count", params: ExploreParams{}, wantErr: "count must be positive"},
		{name: "over cap", params: ExploreParams{Count: MaxExploreCount + 1}, wantErr: "count must be at most 100"},
		{name: "max int", params: ExploreParams{Count: math.MaxInt}, wantErr: "count must be at most"},
		{name: "collect above one", params: ExploreParams{Count: 1, CollectProbability: 1.01}, wantErr: "collect probability"},
		{name: "negative like", params: ExploreParams{Count: 1, LikeProbability: -0.1}, wantErr: "like probability"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.params.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, domain.ErrPrecondition)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
