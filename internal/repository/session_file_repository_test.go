package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-ledger-api/internal/models"
	appErrors "github.com/noah-isme/attendance-ledger-api/pkg/errors"
	"github.com/noah-isme/attendance-ledger-api/pkg/storage"
)

func newSessionFixture(t *testing.T) (*SessionFileRepository, string) {
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	return NewSessionFileRepository(store, time.Second), dir
}

func testSession(id, code string, createdAt time.Time) *models.Session {
	return &models.Session{ID: id, Code: code, ClassID: "C1", SubjectID: "MATH", CreatedAt: createdAt, ExpiryMinutes: 30, Active: true}
}

func TestSessionFileRepositoryCreateDeactivatesSameCode(t *testing.T) {
	repo, _ := newSessionFixture(t)
	ctx := context.Background()

	deactivated, err := repo.Create(ctx, testSession("s-1", "ABC", fixedNow))
	require.NoError(t, err)
	assert.Empty(t, deactivated)
	_, err = repo.Create(ctx, testSession("s-other", "XYZ", fixedNow))
	require.NoError(t, err)

	deactivated, err = repo.Create(ctx, testSession("s-2", "ABC", fixedNow.Add(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, []string{"s-1"}, deactivated)

	active, err := repo.ListActiveByCode(ctx, "ABC")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "s-2", active[0].ID)

	old, err := repo.FindByID(ctx, "s-1")
	require.NoError(t, err)
	assert.False(t, old.Active)

	other, err := repo.FindByID(ctx, "s-other")
	require.NoError(t, err)
	assert.True(t, other.Active)
}

func TestSessionFileRepositoryFindByIDNotFound(t *testing.T) {
	repo, _ := newSessionFixture(t)
	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionFileRepositoryDeactivateIdempotent(t *testing.T) {
	repo, dir := newSessionFixture(t)
	ctx := context.Background()
	_, err := repo.Create(ctx, testSession("s-1", "ABC", fixedNow))
	require.NoError(t, err)

	changed, err := repo.Deactivate(ctx, "s-1")
	require.NoError(t, err)
	assert.True(t, changed)

	path := filepath.Join(dir, SessionTableFile)
	before, err := os.Stat(path)
	require.NoError(t, err)

	changed, err = repo.Deactivate(ctx, "s-1")
	require.NoError(t, err)
	assert.False(t, changed)

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())

	_, err = repo.Deactivate(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionFileRepositoryDeactivateExpired(t *testing.T) {
	repo, _ := newSessionFixture(t)
	ctx := context.Background()
	_, err := repo.Create(ctx, testSession("s-old", "OLD", fixedNow))
	require.NoError(t, err)
	_, err = repo.Create(ctx, testSession("s-new", "NEW", fixedNow.Add(20*time.Minute)))
	require.NoError(t, err)

	boundary := fixedNow.Add(30 * time.Minute)
	expired, err := repo.DeactivateExpired(ctx, boundary)
	require.NoError(t, err)
	assert.Empty(t, expired)

	expired, err = repo.DeactivateExpired(ctx, boundary.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, []string{"s-old"}, expired)

	expired, err = repo.DeactivateExpired(ctx, boundary.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, expired)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "s-new", active[0].ID)
}

func TestSessionFileRepositoryListOrdersChronologically(t *testing.T) {
	repo, _ := newSessionFixture(t)
	ctx := context.Background()
	_, err := repo.Create(ctx, testSession("b", "B", fixedNow.Add(time.Hour)))
	require.NoError(t, err)
	_, err = repo.Create(ctx, testSession("z", "Z", fixedNow))
	require.NoError(t, err)
	_, err = repo.Create(ctx, testSession("a", "A", fixedNow))
	require.NoError(t, err)
	other := testSession("c", "C", fixedNow)
	other.ClassID = "C2"
	_, err = repo.Create(ctx, other)
	require.NoError(t, err)

	sessions, err := repo.List(ctx, models.SessionFilter{ClassID: "C1"})
	require.NoError(t, err)
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"a", "z", "b"}, ids)
}

func TestSessionFileRepositoryCorruptRegistry(t *testing.T) {
	repo, dir := newSessionFixture(t)
	path := filepath.Join(dir, SessionTableFile)
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, err := repo.Create(context.Background(), testSession("s-1", "ABC", fixedNow))
	assert.ErrorIs(t, err, appErrors.ErrStorageCorrupt)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "not json", string(raw))
}
