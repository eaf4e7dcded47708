package goal

import (
	"time"

	pkgerrors "goaltrack/pkg/errors"
)

// Status represents the overall state of a goal
type Status string

const (
	StatusInProgress Status = "in-progress"
	StatusOnTrack    Status = "on-track"
	StatusBehind     Status = "behind"
	StatusCompleted  Status = "completed"
)

// MilestoneStatus represents the state of a single milestone
type MilestoneStatus string

const (
	MilestonePending    MilestoneStatus = "pending"
	MilestoneInProgress MilestoneStatus = "in-progress"
	MilestoneCompleted  MilestoneStatus = "completed"
)

// seedProgress is the progress assigned to a milestone when it is
// promoted from pending to in-progress.
const seedProgress = 10

// Milestone is a dated sub-task of a goal. Completed milestones drive
// the parent goal's derived progress.
type Milestone struct {
	Week     int             `json:"week"`
	Task     string          `json:"task"`
	Status   MilestoneStatus `json:"status"`
	Progress int             `json:"progress"`
}

// Goal is the core entity managed by the sync engine.
//
// ID is a device-local sequential integer. RemoteID, when set, links the
// record to its counterpart in the remote store; the two identifier
// namespaces are disjoint and never compared directly.
type Goal struct {
	ID                int64       `json:"id"`
	RemoteID          string      `json:"remoteId,omitempty"`
	Title             string      `json:"title"`
	Description       string      `json:"description,omitempty"`
	Timeline          string      `json:"timeline"`
	Progress          int         `json:"progress"`
	Status            Status      `json:"status"`
	DueDate           string      `json:"dueDate"`
	SubGoals          []string    `json:"subGoals"`
	CompletedSubGoals int         `json:"completedSubGoals"`
	CreatedAt         time.Time   `json:"createdAt"`
	Milestones        []Milestone `json:"milestones"`
}

// New creates a goal with business rule validation. The local id is
// assigned later by the store.
func New(title, description, timeline, dueDate string, subGoals []string, milestones []Milestone) (*Goal, error) {
	if title == "" {
		return nil, pkgerrors.NewValidationError("title cannot be empty")
	}

	g := &Goal{
		Title:       title,
		Description: description,
		Timeline:    timeline,
		Status:      StatusInProgress,
		DueDate:     dueDate,
		SubGoals:    subGoals,
		CreatedAt:   time.Now().UTC(),
		Milestones:  milestones,
	}
	if g.SubGoals == nil {
		g.SubGoals = []string{}
	}
	if g.Milestones == nil {
		g.Milestones = []Milestone{}
	}
	for i := range g.Milestones {
		if g.Milestones[i].Status == "" {
			g.Milestones[i].Status = MilestonePending
		}
	}

	return g, nil
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (g *Goal) Clone() *Goal {
	c := *g
	c.SubGoals = make([]string, len(g.SubGoals))
	copy(c.SubGoals, g.SubGoals)
	c.Milestones = make([]Milestone, len(g.Milestones))
	copy(c.Milestones, g.Milestones)
	return &c
}

// MarkMilestoneComplete transitions the milestone at index to completed,
// promotes the next pending milestone to in-progress and recomputes the
// goal's derived progress and status.
func (g *Goal) MarkMilestoneComplete(index int) error {
	if index < 0 || index >= len(g.Milestones) {
		return pkgerrors.NewNotFoundError("milestone")
	}

	g.Milestones[index].Status = MilestoneCompleted
	g.Milestones[index].Progress = 100

	for i := range g.Milestones {
		if g.Milestones[i].Status == MilestonePending {
			g.Milestones[i].Status = MilestoneInProgress
			g.Milestones[i].Progress = seedProgress
			break
		}
	}

	g.recalculate()
	return nil
}

// UndoMilestoneComplete reverts a completed milestone. The first
// milestone returns to in-progress, any other to pending; a milestone
// that was auto-promoted after it is demoted back to pending.
func (g *Goal) UndoMilestoneComplete(index int) error {
	if index < 0 || index >= len(g.Milestones) {
		return pkgerrors.NewNotFoundError("milestone")
	}

	if index == 0 {
		g.Milestones[index].Status = MilestoneInProgress
		g.Milestones[index].Progress = seedProgress
	} else {
		g.Milestones[index].Status = MilestonePending
		g.Milestones[index].Progress = 0
	}

	for i := index + 1; i < len(g.Milestones); i++ {
		if g.Milestones[i].Status == MilestoneInProgress {
			g.Milestones[i].Status = MilestonePending
			g.Milestones[i].Progress = 0
			break
		}
	}

	g.recalculate()
	return nil
}

// AdjustTimeline shifts every still-pending milestone forward by one
// week. Completed and in-progress milestones keep their week.
func (g *Goal) AdjustTimeline() {
	for i := range g.Milestones {
		if g.Milestones[i].Status == MilestonePending {
			g.Milestones[i].Week++
		}
	}
}

// recalculate derives goal progress and status from the milestone set.
// Goals without milestones keep their current progress.
func (g *Goal) recalculate() {
	total := len(g.Milestones)
	if total == 0 {
		return
	}

	completed := 0
	for _, m := range g.Milestones {
		if m.Status == MilestoneCompleted {
			completed++
		}
	}

	g.Progress = int(float64(completed)/float64(total)*100 + 0.5)

	switch {
	case g.Progress >= 100:
		g.Status = StatusCompleted
	case g.Progress >= 50:
		g.Status = StatusOnTrack
	default:
		g.Status = StatusInProgress
	}
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	Title             *string      `json:"title,omitempty"`
	Description       *string      `json:"description,omitempty"`
	Timeline          *string      `json:"timeline,omitempty"`
	Progress          *int         `json:"progress,omitempty"`
	Status            *Status      `json:"status,omitempty"`
	DueDate           *string      `json:"dueDate,omitempty"`
	SubGoals          *[]string    `json:"subGoals,omitempty"`
	CompletedSubGoals *int         `json:"completedSubGoals,omitempty"`
	Milestones        *[]Milestone `json:"milestones,omitempty"`
	RemoteID          *string      `json:"-"`
}

// Apply merges the patch into the goal.
func (g *Goal) Apply(p Patch) {
	if p.Title != nil {
		g.Title = *p.Title
	}
	if p.Description != nil {
		g.Description = *p.Description
	}
	if p.Timeline != nil {
		g.Timeline = *p.Timeline
	}
	if p.Progress != nil {
		g.Progress = *p.Progress
	}
	if p.Status != nil {
		g.Status = *p.Status
	}
	if p.DueDate != nil {
		g.DueDate = *p.DueDate
	}
	if p.SubGoals != nil {
		g.SubGoals = *p.SubGoals
	}
	if p.CompletedSubGoals != nil {
		g.CompletedSubGoals = *p.CompletedSubGoals
	}
	if p.Milestones != nil {
		g.Milestones = *p.Milestones
	}
	if p.RemoteID != nil {
		g.RemoteID = *p.RemoteID
	}
}

// PatchFrom builds a full-field patch mirroring the goal's current
// state, used when pushing a local version to the remote store.
func PatchFrom(g *Goal) Patch {
	milestones := make([]Milestone, len(g.Milestones))
	copy(milestones, g.Milestones)
	subGoals := make([]string, len(g.SubGoals))
	copy(subGoals, g.SubGoals)

	return Patch{
		Title:             &g.Title,
		Description:       &g.Description,
		Timeline:          &g.Timeline,
		Progress:          &g.Progress,
		Status:            &g.Status,
		DueDate:           &g.DueDate,
		SubGoals:          &subGoals,
		CompletedSubGoals: &g.CompletedSubGoals,
		Milestones:        &milestones,
	}
}
