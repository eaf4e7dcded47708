package goal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustGoal(t *testing.T, title, description, timeline string, milestones []Milestone) *Goal {
	t.Helper()
	g, err := New(title, description, timeline, "", nil, milestones)
	require.NoError(t, err)
	return g
}

func TestSignature(t *testing.T) {
	t.Run("case and whitespace insensitive", func(t *testing.T) {
		a := mustGoal(t, "Learn Go", "A language", "3 months", nil)
		b := mustGoal(t, "  learn go  ", "a LANGUAGE", " 3 Months", nil)
		assert.Equal(t, Signature(a), Signature(b))
	})

	t.Run("absent description equals empty description", func(t *testing.T) {
		a := mustGoal(t, "Learn Go", "", "3 months", nil)
		b := mustGoal(t, "Learn Go", "   ", "3 months", nil)
		assert.Equal(t, Signature(a), Signature(b))
	})

	t.Run("milestone count differentiates", func(t *testing.T) {
		a := mustGoal(t, "Learn Go", "", "3 months", []Milestone{{Task: "tour"}})
		b := mustGoal(t, "Learn Go", "", "3 months", []Milestone{{Task: "tour"}, {Task: "book"}})
		assert.NotEqual(t, Signature(a), Signature(b))
	})

	t.Run("only the first three milestone tasks participate", func(t *testing.T) {
		base := []Milestone{{Task: "one"}, {Task: "two"}, {Task: "three"}, {Task: "four"}}
		changed := []Milestone{{Task: "one"}, {Task: "two"}, {Task: "three"}, {Task: "different"}}

		a := mustGoal(t, "Learn Go", "", "3 months", base)
		b := mustGoal(t, "Learn Go", "", "3 months", changed)
		assert.Equal(t, Signature(a), Signature(b))

		c := mustGoal(t, "Learn Go", "", "3 months", []Milestone{{Task: "ONE"}, {Task: "two"}, {Task: "other"}, {Task: "four"}})
		assert.NotEqual(t, Signature(a), Signature(c))
	})

	t.Run("identifier fields never participate", func(t *testing.T) {
		a := mustGoal(t, "Learn Go", "", "3 months", nil)
		b := mustGoal(t, "Learn Go", "", "3 months", nil)
		a.ID = 1
		b.ID = 99
		b.RemoteID = "remote-abc"
		assert.Equal(t, Signature(a), Signature(b))
	})
}
