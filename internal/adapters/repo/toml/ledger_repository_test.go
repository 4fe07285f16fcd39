package toml

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/xhs-pilot/internal/domain"
)

func newLedgerRepo(t *testing.T, path string) *LedgerRepository {
	t.Helper()

	config := viper.New()
	config.Set(LedgerPathKey, path)

	repo, err := NewLedgerRepository(config)
	require.NoError(t, err)
	return repo
}

func TestLedgerRepositoryRoundTrip(t *testing.T) {
	t.Parallel()

	repo := newLedgerRepo(t, filepath.Join(t.TempDir(), "ledger.toml"))

	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	state := domain.LedgerState{
		Windows: map[domain.ActionType]domain.QuotaWindow{
			domain.ActionLike:     {Action: domain.ActionLike, WindowStart: day, Count: 12},
			domain.ActionNavigate: {Action: domain.ActionNavigate, WindowStart: day, Count: 40},
		},
		Records: []domain.ActionRecord{
			{Action: domain.ActionNavigate, Timestamp: day.Add(10 * time.Hour), Outcome: domain.ActionOutcomeSuccess},
			{Action: domain.ActionLike, Timestamp: day.Add(10*time.Hour + 1500*time.Millisecond), Outcome: domain.ActionOutcomeRateLimited, Detail: "操作频繁"},
		},
	}

	require.NoError(t, repo.Save(context.Background(), state))

	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state, got)
}

func TestLedgerRepositoryMissingFileLoadsEmptyState(t *testing.T) {
	t.Parallel()

	repo := newLedgerRepo(t, filepath.Join(t.TempDir(), "missing", "ledger.toml"))

	state, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, state.Windows)
	assert.Empty(t, state.Records)
}

func TestLedgerRepositorySaveCreatesDirectoryAndEnforcesPermissions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	config := viper.New()
	config.Set(StateDirKey, filepath.Join(dir, ".xhs"))

	repo, err := NewLedgerRepository(config)
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), domain.LedgerState{}))

	path := filepath.Join(dir, ".xhs", "ledger.toml")
	assert.Equal(t, path, repo.Path())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "version = 1")
}

func TestLedgerRepositorySkipsUnknownWindows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.toml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join([]string{
		"version = 1",
		"",
		"[[windows]]",
		"action = \"share\"",
		"window_start = \"2026-03-01T00:00:00Z\"",
		"count = 3",
		"",
		"[[windows]]",
		"action = \"like\"",
		"window_start = \"2026-03-01T00:00:00Z\"",
		"count = 5",
		"",
	}, "\n")), 0o600))

	state, err := newLedgerRepo(t, path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, state.Windows, 1)
	assert.Equal(t, 5, state.Windows[domain.ActionLike].Count)
}

func TestLedgerRepositoryLoadErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "malformed", content: "windows = [", wantErr: "decode ledger file"},
		{name: "future version", content: "version = 999\n", wantErr: "unsupported ledger schema version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "ledger.toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := newLedgerRepo(t, path).Load(context.Background())
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLedgerRepositorySaveCanceledContextReturnsContextError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.toml")
	repo := newLedgerRepo(t, path)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := repo.Save(ctx, domain.LedgerState{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}
