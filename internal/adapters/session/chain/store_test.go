package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bnema/xhs-pilot/internal/adapters/session/file"
)

const key = file.CookiesKey

type mockBackend struct {
	mock.Mock
	name string
}

func newMockBackend(t *testing.T, name string) *mockBackend {
	m := &mockBackend{name: name}
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *mockBackend) Location(key string) string {
	return m.name + ":" + key
}

func (m *mockBackend) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *mockBackend) Put(ctx context.Context, key string, value string) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *mockBackend) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func newChain(t *testing.T) (*Store, *mockBackend, *mockBackend) {
	t.Helper()

	primary := newMockBackend(t, "pass")
	fallback := newMockBackend(t, "file")
	store, err := NewStore(primary, fallback)
	require.NoError(t, err)
	return store, primary, fallback
}

func TestNewStoreRejectsNilBackends(t *testing.T) {
	t.Parallel()

	_, err := NewStore(nil, newMockBackend(t, "file"))
	require.ErrorIs(t, err, errNilPrimaryStore)

	_, err = NewStore(newMockBackend(t, "pass"), nil)
	require.ErrorIs(t, err, errNilFallbackStore)
}

func TestStoreGetUsesPrimaryWhenItSucceeds(t *testing.T) {
	t.Parallel()

	store, primary, _ := newChain(t)
	primary.On("Get", mock.Anything, key).Return("from-pass", nil).Once()

	value, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "from-pass", value)
}

func TestStoreGetFallsBackWhenPrimaryFails(t *testing.T) {
	t.Parallel()

	store, primary, fallback := newChain(t)
	primary.On("Get", mock.Anything, key).Return("", errors.New("pass unavailable")).Once()
	fallback.On("Get", mock.Anything, key).Return("from-file", nil).Once()

	value, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "from-file", value)
}

func TestStoreGetKeepsNotFoundWhenBothBackendsMiss(t *testing.T) {
	t.Parallel()

	store, primary, fallback := newChain(t)
	primary.On("Get", mock.Anything, key).Return("", errors.New("not in the password store")).Once()
	fallback.On("Get", mock.Anything, key).Return("", file.ErrSessionNotFound).Once()

	_, err := store.Get(context.Background(), key)
	require.Error(t, err)
	assert.ErrorIs(t, err, file.ErrSessionNotFound)
	assert.ErrorContains(t, err, "primary backend")
	assert.ErrorContains(t, err, "fallback backend")
}

func TestStorePutFallsBackWhenPrimaryFails(t *testing.T) {
	t.Parallel()

	store, primary, fallback := newChain(t)
	primary.On("Put", mock.Anything, key, "[]").Return(errors.New("pass failed")).Once()
	fallback.On("Put", mock.Anything, key, "[]").Return(nil).Once()

	require.NoError(t, store.Put(context.Background(), key, "[]"))
}

func TestStorePutDoesNotCallFallbackWhenPrimarySucceeds(t *testing.T) {
	t.Parallel()

	store, primary, _ := newChain(t)
	primary.On("Put", mock.Anything, key, "[]").Return(nil).Once()

	require.NoError(t, store.Put(context.Background(), key, "[]"))
}

func TestStoreDeleteClearsBothBackends(t *testing.T) {
	t.Parallel()

	store, primary, fallback := newChain(t)
	primary.On("Delete", mock.Anything, key).Return(nil).Once()
	fallback.On("Delete", mock.Anything, key).Return(nil).Once()

	require.NoError(t, store.Delete(context.Background(), key))
}

func TestStoreDeleteFailsOnlyWhenBothBackendsFail(t *testing.T) {
	t.Parallel()

	store, primary, fallback := newChain(t)
	primary.On("Delete", mock.Anything, key).Return(errors.New("pass failed")).Once()
	fallback.On("Delete", mock.Anything, key).Return(errors.New("file failed")).Once()

	err := store.Delete(context.Background(), key)
	require.Error(t, err)
	assert.ErrorContains(t, err, "pass failed")
	assert.ErrorContains(t, err, "file failed")
}

func TestStoreGetDoesNotFallbackOnCanceledContextError(t *testing.T) {
	t.Parallel()

	store, primary, _ := newChain(t)
	primary.On("Get", mock.Anything, key).Return("", context.Canceled).Once()

	_, err := store.Get(context.Background(), key)
	require.ErrorIs(t, err, context.Canceled)
}

func TestStoreLocationNamesBothBackends(t *testing.T) {
	t.Parallel()

	store, _, _ := newChain(t)
	assert.Equal(t, "pass:cookies.json (fallback file:cookies.json)", store.Location(key))
}
