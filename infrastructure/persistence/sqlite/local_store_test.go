package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"goaltrack/domain/goal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(filepath.Join(t.TempDir(), "goals.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestGoal(t *testing.T, title string) *goal.Goal {
	t.Helper()
	g, err := goal.New(title, "description", "3 months", "", nil, []goal.Milestone{
		{Week: 1, Task: "first step"},
	})
	require.NoError(t, err)
	return g
}

func TestCreateAssignsSequentialIDs(t *testing.T) {
	store := newTestStore(t)

	a, err := store.Create(newTestGoal(t, "Goal A"))
	require.NoError(t, err)
	b, err := store.Create(newTestGoal(t, "Goal B"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, int64(2), b.ID)
}

func TestCreateIsIdempotentOnContent(t *testing.T) {
	store := newTestStore(t)

	first, err := store.Create(newTestGoal(t, "Learn Go"))
	require.NoError(t, err)

	// Same content differing only in case and whitespace.
	dup, err := goal.New("  LEARN GO ", "Description", "3 months", "", nil, []goal.Milestone{
		{Week: 1, Task: "First Step"},
	})
	require.NoError(t, err)

	second, err := store.Create(dup)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	goals, err := store.List()
	require.NoError(t, err)
	assert.Len(t, goals, 1)
	assert.Len(t, store.Signatures(), 1)
}

func TestDeleteReleasesIdentity(t *testing.T) {
	store := newTestStore(t)

	created, err := store.Create(newTestGoal(t, "Learn Go"))
	require.NoError(t, err)

	deleted, err := store.Delete(created.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Empty(t, store.Signatures())

	// Same content is legitimately creatable again under a new id.
	recreated, err := store.Create(newTestGoal(t, "Learn Go"))
	require.NoError(t, err)
	assert.NotEqual(t, created.ID, recreated.ID)
}

func TestDeleteUnknownID(t *testing.T) {
	store := newTestStore(t)

	deleted, err := store.Delete(42)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestListSweepsOrphanSignatures(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create(newTestGoal(t, "Kept"))
	require.NoError(t, err)
	require.NoError(t, store.AddSignature("stale|entry|with|no|goal"))
	require.Len(t, store.Signatures(), 2)

	goals, err := store.List()
	require.NoError(t, err)
	assert.Len(t, goals, 1)
	assert.Len(t, store.Signatures(), 1)
}

func TestCreatePurgesOrphanEntry(t *testing.T) {
	store := newTestStore(t)

	g := newTestGoal(t, "Learn Go")
	require.NoError(t, store.AddSignature(goal.Signature(g)))

	// The indexed signature has no matching goal, so creation proceeds.
	created, err := store.Create(g)
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)

	goals, err := store.List()
	require.NoError(t, err)
	assert.Len(t, goals, 1)
	assert.Len(t, store.Signatures(), 1)
}

func TestRenameHealsSignatureIndex(t *testing.T) {
	store := newTestStore(t)

	created, err := store.Create(newTestGoal(t, "Learn Go"))
	require.NoError(t, err)

	title := "Master Go"
	_, err = store.Update(created.ID, goal.Patch{Title: &title})
	require.NoError(t, err)

	// The read path restores the renamed signature.
	_, err = store.List()
	require.NoError(t, err)
	sigs := store.Signatures()
	require.Len(t, sigs, 1)
	assert.Equal(t, goal.Signature(newTestGoal(t, "Master Go")), sigs[0])

	// Recreating the renamed content is idempotent, not a duplicate.
	again, err := store.Create(newTestGoal(t, "Master Go"))
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)

	goals, err := store.List()
	require.NoError(t, err)
	assert.Len(t, goals, 1)

	// The old content is free again.
	old, err := store.Create(newTestGoal(t, "Learn Go"))
	require.NoError(t, err)
	assert.NotEqual(t, created.ID, old.ID)
}

func TestCreateIdempotentWithStaleIndex(t *testing.T) {
	store := newTestStore(t)

	created, err := store.Create(newTestGoal(t, "Learn Go"))
	require.NoError(t, err)

	title := "Master Go"
	_, err = store.Update(created.ID, goal.Patch{Title: &title})
	require.NoError(t, err)

	// No read pass in between: the index still holds only the old
	// signature, but creation matches on content, not index state.
	again, err := store.Create(newTestGoal(t, "Master Go"))
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)

	goals, err := store.List()
	require.NoError(t, err)
	assert.Len(t, goals, 1)
}

func TestUpdate(t *testing.T) {
	store := newTestStore(t)

	created, err := store.Create(newTestGoal(t, "Learn Go"))
	require.NoError(t, err)

	title := "Master Go"
	updated, err := store.Update(created.ID, goal.Patch{Title: &title})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "Master Go", updated.Title)

	missing, err := store.Update(99, goal.Patch{Title: &title})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLastSyncedAtRoundTrip(t *testing.T) {
	store := newTestStore(t)

	ts, err := store.LastSyncedAt()
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.SetLastSyncedAt(now))

	ts, err = store.LastSyncedAt()
	require.NoError(t, err)
	assert.True(t, ts.Equal(now))
}

func TestSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "goals.db")
	logger := zap.NewNop()

	store, err := NewLocalStore(path, logger)
	require.NoError(t, err)

	created, err := store.Create(newTestGoal(t, "Persistent"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewLocalStore(path, logger)
	require.NoError(t, err)
	defer reopened.Close()

	goals, err := reopened.List()
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, created.ID, goals[0].ID)
	assert.Equal(t, "Persistent", goals[0].Title)
}

func TestListReturnsClones(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create(newTestGoal(t, "Immutable"))
	require.NoError(t, err)

	goals, err := store.List()
	require.NoError(t, err)
	goals[0].Title = "Mutated"

	again, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, "Immutable", again[0].Title)
}
