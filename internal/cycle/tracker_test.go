package cycle

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/ibarani/fitforge/internal/catalog"
	"github.com/ibarani/fitforge/internal/models"
	"github.com/ibarani/fitforge/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	ex := []models.ExerciseSpec{{Name: "Bench", TargetSets: 3}}
	c, err := catalog.New([]models.WorkoutTemplate{
		{Key: "A", Mandatory: true, Exercises: ex},
		{Key: "B", Mandatory: true, Exercises: ex},
		{Key: "C", Mandatory: true, Exercises: ex},
		{Key: "X", Mandatory: false, Exercises: ex},
	})
	require.NoError(t, err)
	return c
}

func newTracker(t *testing.T, opts Options) (*Tracker, *storage.Memory) {
	mem := storage.NewMemory()
	return NewTracker(testCatalog(t), mem, opts, slog.Default()), mem
}

// TestCurrentInitialState verifies the state created for a new user.
func TestCurrentInitialState(t *testing.T) {
	tr, _ := newTracker(t, Options{ResetOnConfigChange: true})
	st, err := tr.Current(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Number)
	assert.Equal(t, []string{"A", "B", "C"}, st.SelectedWorkoutKeys)
	assert.Empty(t, st.CompletedWorkoutKeys)
}

// TestCompleteIsIdempotent verifies that completing a key twice counts once.
func TestCompleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t, Options{ResetOnConfigChange: true})

	first, err := tr.Complete(ctx, "u1", "A", "WORKOUT#2024-01-01#A")
	require.NoError(t, err)
	assert.True(t, first.Counted)

	second, err := tr.Complete(ctx, "u1", "A", "WORKOUT#2024-01-02#A")
	require.NoError(t, err)
	assert.False(t, second.Counted)
	assert.Len(t, second.State.CompletedWorkoutKeys, 1)
	assert.Equal(t, "WORKOUT#2024-01-01#A", second.State.WorkoutRefs["A"])
}

// TestCompleteIgnoresUnselectedKey verifies that unselected templates never count.
func TestCompleteIgnoresUnselectedKey(t *testing.T) {
	ctx := context.Background()
	tr, mem := newTracker(t, Options{ResetOnConfigChange: true})
	out, err := tr.Complete(ctx, "u1", "X", "WORKOUT#2024-01-01#X")
	require.NoError(t, err)
	assert.False(t, out.Counted)
	assert.Empty(t, out.State.CompletedWorkoutKeys)
	assert.Equal(t, 0, mem.Puts())
}

// TestClosureEmitsOnce verifies that subscribers see each closure once.
func TestClosureEmitsOnce(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t, Options{ResetOnConfigChange: true})
	var events []models.CycleClosed
	tr.Subscribe(func(ev models.CycleClosed) { events = append(events, ev) })

	for _, k := range []string{"A", "B", "C"} {
		_, err := tr.Complete(ctx, "u1", k, "WORKOUT#2024-01-01#"+k)
		require.NoError(t, err)
	}
	// A duplicate after closure counts toward the new cycle, never re-closes.
	_, err := tr.Complete(ctx, "u1", "C", "WORKOUT#2024-01-02#C")
	require.NoError(t, err)

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, 1, ev.CycleNumber)
	assert.Equal(t, 3, ev.SelectedCount)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, ev.CompletedKeys)
	assert.Equal(t, "WORKOUT#2024-01-01#B", ev.WorkoutRefs["B"])

	st, err := tr.Current(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, st.Number)
	assert.Equal(t, []string{"A", "B", "C"}, st.SelectedWorkoutKeys)
	assert.Equal(t, []string{"C"}, st.CompletedWorkoutKeys)
}

// TestClosureReturnsEventAndEmptiesCompleted verifies the closure event and the
// reset state.
func TestClosureReturnsEventAndEmptiesCompleted(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t, Options{ResetOnConfigChange: true})
	_, err := tr.Configure(ctx, "u1", Selection{Exclude: []string{"B", "C"}})
	require.NoError(t, err)

	out, err := tr.Complete(ctx, "u1", "A", "WORKOUT#2024-01-01#A")
	require.NoError(t, err)
	require.NotNil(t, out.Closed)
	assert.Equal(t, 1, out.Closed.CycleNumber)
	assert.Empty(t, out.State.CompletedWorkoutKeys)
	assert.Equal(t, []string{"A"}, out.State.SelectedWorkoutKeys)
	assert.Equal(t, 2, out.State.Number)

	a, err := tr.Archive(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, a.CompletedWorkoutKeys)
}

// TestConfigureResetsCompleted verifies that changing the selection resets progress.
func TestConfigureResetsCompleted(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t, Options{ResetOnConfigChange: true})
	_, err := tr.Complete(ctx, "u1", "A", "WORKOUT#2024-01-01#A")
	require.NoError(t, err)
	_, err = tr.Complete(ctx, "u1", "B", "WORKOUT#2024-01-01#B")
	require.NoError(t, err)

	out, err := tr.Configure(ctx, "u1", Selection{Include: []string{"X"}})
	require.NoError(t, err)
	assert.True(t, out.Reset)
	assert.Empty(t, out.State.CompletedWorkoutKeys)
	assert.Equal(t, []string{"A", "B", "C", "X"}, out.State.SelectedWorkoutKeys)
	assert.Nil(t, out.Closed)
}

// TestConfigureSameSetIsNoop verifies that an unchanged selection keeps progress.
func TestConfigureSameSetIsNoop(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t, Options{ResetOnConfigChange: true})
	_, err := tr.Complete(ctx, "u1", "A", "WORKOUT#2024-01-01#A")
	require.NoError(t, err)

	// Explicitly including a mandatory key yields the same set.
	out, err := tr.Configure(ctx, "u1", Selection{Include: []string{"C", "A"}})
	require.NoError(t, err)
	assert.False(t, out.Reset)
	assert.Equal(t, []string{"A"}, out.State.CompletedWorkoutKeys)
}

// TestConfigureRetainsWhenResetDisabled verifies that completed keys still selected
// are kept when reset is off.
func TestConfigureRetainsWhenResetDisabled(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t, Options{ResetOnConfigChange: false})
	_, err := tr.Complete(ctx, "u1", "A", "WORKOUT#2024-01-01#A")
	require.NoError(t, err)
	_, err = tr.Complete(ctx, "u1", "B", "WORKOUT#2024-01-01#B")
	require.NoError(t, err)

	out, err := tr.Configure(ctx, "u1", Selection{Exclude: []string{"B"}, Include: []string{"X"}})
	require.NoError(t, err)
	assert.True(t, out.Reset)
	assert.Equal(t, []string{"A"}, out.State.CompletedWorkoutKeys)
	assert.Equal(t, map[string]string{"A": "WORKOUT#2024-01-01#A"}, out.State.WorkoutRefs)

	// Narrowing the selection to what is already completed closes the cycle.
	out, err = tr.Configure(ctx, "u1", Selection{Exclude: []string{"B", "C"}})
	require.NoError(t, err)
	require.NotNil(t, out.Closed)
	assert.Equal(t, []string{"A"}, out.Closed.CompletedKeys)
}

// TestConfigureRejectsUnknownKey verifies that unknown template keys are rejected.
func TestConfigureRejectsUnknownKey(t *testing.T) {
	tr, _ := newTracker(t, Options{ResetOnConfigChange: true})
	_, err := tr.Configure(context.Background(), "u1", Selection{Include: []string{"nope"}})
	assert.True(t, models.IsValidation(err), "err = %v", err)
}

// TestStoreFailureSurfacesAndRetries verifies that a store error leaves the state
// unchanged and a retry succeeds.
func TestStoreFailureSurfacesAndRetries(t *testing.T) {
	ctx := context.Background()
	tr, mem := newTracker(t, Options{ResetOnConfigChange: true})
	_, err := tr.Configure(ctx, "u1", Selection{Exclude: []string{"B", "C"}})
	require.NoError(t, err)

	mem.FailWith(errors.New("connection refused"))
	_, err = tr.Complete(ctx, "u1", "A", "WORKOUT#2024-01-01#A")
	assert.True(t, models.IsPersistence(err), "err = %v", err)

	mem.FailWith(nil)
	out, err := tr.Complete(ctx, "u1", "A", "WORKOUT#2024-01-01#A")
	require.NoError(t, err)
	require.NotNil(t, out.Closed, "retried completion must still close the cycle")
}

// TestArchivesRange verifies archive listing by cycle number range.
func TestArchivesRange(t *testing.T) {
	ctx := context.Background()
	tr, mem := newTracker(t, Options{ResetOnConfigChange: true})
	_, err := tr.Configure(ctx, "u1", Selection{Exclude: []string{"B", "C"}})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := tr.Complete(ctx, "u1", "A", "ref")
		require.NoError(t, err)
	}
	// Analysis records share the index partition and must be filtered out.
	require.NoError(t, storage.PutJSON(ctx, mem, storage.Item{
		PK:     storage.UserPK("u1"),
		SK:     storage.AnalysisSK(2),
		GSI1PK: storage.CyclesIndexPK("u1"),
		GSI1SK: storage.AnalysisIndexSK(2),
	}, models.AnalysisResult{CycleID: "2"}))

	all, err := tr.Archives(ctx, "u1", 1, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 1, all[0].Number)
	assert.Equal(t, 3, all[2].Number)

	some, err := tr.Archives(ctx, "u1", 2, 2)
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, 2, some[0].Number)

	latest, err := tr.LatestArchive(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Number)

	_, err = tr.LatestArchive(ctx, "u2")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// TestVersionIncrements verifies that every write bumps Version.
func TestVersionIncrements(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t, Options{ResetOnConfigChange: true})
	a, err := tr.Complete(ctx, "u1", "A", "r")
	require.NoError(t, err)
	b, err := tr.Complete(ctx, "u1", "B", "r")
	require.NoError(t, err)
	assert.Equal(t, a.State.Version+1, b.State.Version)
}
