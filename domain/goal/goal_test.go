package goal

import (
	"testing"

	pkgerrors "goaltrack/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("requires a title", func(t *testing.T) {
		_, err := New("", "desc", "3 months", "", nil, nil)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("defaults nil collections and milestone status", func(t *testing.T) {
		g, err := New("Learn Go", "", "3 months", "", nil, []Milestone{
			{Week: 1, Task: "Read the tour"},
		})
		require.NoError(t, err)

		assert.NotNil(t, g.SubGoals)
		assert.Equal(t, StatusInProgress, g.Status)
		assert.Equal(t, MilestonePending, g.Milestones[0].Status)
		assert.False(t, g.CreatedAt.IsZero())
	})
}

func TestMarkMilestoneComplete(t *testing.T) {
	newGoal := func(t *testing.T) *Goal {
		g, err := New("Run a marathon", "", "6 months", "", nil, []Milestone{
			{Week: 1, Task: "Run 5k"},
			{Week: 4, Task: "Run 10k"},
		})
		require.NoError(t, err)
		return g
	}

	t.Run("completes and promotes the next pending milestone", func(t *testing.T) {
		g := newGoal(t)
		require.NoError(t, g.MarkMilestoneComplete(0))

		assert.Equal(t, MilestoneCompleted, g.Milestones[0].Status)
		assert.Equal(t, 100, g.Milestones[0].Progress)
		assert.Equal(t, MilestoneInProgress, g.Milestones[1].Status)
		assert.Equal(t, 10, g.Milestones[1].Progress)

		assert.Equal(t, 50, g.Progress)
		assert.Equal(t, StatusOnTrack, g.Status)
	})

	t.Run("completing every milestone completes the goal", func(t *testing.T) {
		g := newGoal(t)
		require.NoError(t, g.MarkMilestoneComplete(0))
		require.NoError(t, g.MarkMilestoneComplete(1))

		assert.Equal(t, 100, g.Progress)
		assert.Equal(t, StatusCompleted, g.Status)
	})

	t.Run("rejects an out-of-range index", func(t *testing.T) {
		g := newGoal(t)
		err := g.MarkMilestoneComplete(5)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsNotFound(err))
	})
}

func TestUndoMilestoneComplete(t *testing.T) {
	t.Run("first milestone reverts to in-progress and demotes the promoted one", func(t *testing.T) {
		g, err := New("Write a novel", "", "1 year", "", nil, []Milestone{
			{Week: 1, Task: "Outline"},
			{Week: 2, Task: "First chapter"},
		})
		require.NoError(t, err)

		require.NoError(t, g.MarkMilestoneComplete(0))
		require.NoError(t, g.UndoMilestoneComplete(0))

		assert.Equal(t, MilestoneInProgress, g.Milestones[0].Status)
		assert.Equal(t, 10, g.Milestones[0].Progress)
		assert.Equal(t, MilestonePending, g.Milestones[1].Status)
		assert.Equal(t, 0, g.Milestones[1].Progress)

		assert.Equal(t, 0, g.Progress)
		assert.Equal(t, StatusInProgress, g.Status)
	})

	t.Run("later milestones revert to pending", func(t *testing.T) {
		g, err := New("Write a novel", "", "1 year", "", nil, []Milestone{
			{Week: 1, Task: "Outline"},
			{Week: 2, Task: "First chapter"},
			{Week: 3, Task: "Second chapter"},
		})
		require.NoError(t, err)

		require.NoError(t, g.MarkMilestoneComplete(0))
		require.NoError(t, g.MarkMilestoneComplete(1))
		require.NoError(t, g.UndoMilestoneComplete(1))

		assert.Equal(t, MilestonePending, g.Milestones[1].Status)
		assert.Equal(t, MilestonePending, g.Milestones[2].Status)
	})
}

func TestAdjustTimeline(t *testing.T) {
	g, err := New("Learn piano", "", "6 months", "", nil, []Milestone{
		{Week: 1, Task: "Scales"},
		{Week: 2, Task: "First piece"},
		{Week: 6, Task: "Recital"},
	})
	require.NoError(t, err)
	require.NoError(t, g.MarkMilestoneComplete(0))

	g.AdjustTimeline()

	// Completed and in-progress milestones keep their week.
	assert.Equal(t, 1, g.Milestones[0].Week)
	assert.Equal(t, 2, g.Milestones[1].Week)
	assert.Equal(t, 7, g.Milestones[2].Week)
}

func TestRecalculateRounding(t *testing.T) {
	g, err := New("Triathlon", "", "1 year", "", nil, []Milestone{
		{Week: 1, Task: "Swim"},
		{Week: 2, Task: "Bike"},
		{Week: 3, Task: "Run"},
	})
	require.NoError(t, err)

	require.NoError(t, g.MarkMilestoneComplete(0))
	assert.Equal(t, 33, g.Progress)
	assert.Equal(t, StatusInProgress, g.Status)

	require.NoError(t, g.MarkMilestoneComplete(1))
	assert.Equal(t, 67, g.Progress)
	assert.Equal(t, StatusOnTrack, g.Status)
}

func TestPatchApply(t *testing.T) {
	g, err := New("Original", "desc", "3 months", "", nil, nil)
	require.NoError(t, err)

	title := "Renamed"
	progress := 40
	g.Apply(Patch{Title: &title, Progress: &progress})

	assert.Equal(t, "Renamed", g.Title)
	assert.Equal(t, 40, g.Progress)
	assert.Equal(t, "desc", g.Description)
}

func TestClone(t *testing.T) {
	g, err := New("Original", "", "3 months", "", []string{"a"}, []Milestone{{Week: 1, Task: "x"}})
	require.NoError(t, err)

	c := g.Clone()
	c.SubGoals[0] = "b"
	c.Milestones[0].Task = "y"

	assert.Equal(t, "a", g.SubGoals[0])
	assert.Equal(t, "x", g.Milestones[0].Task)
}
