package ports

import (
	"context"
	"time"

	"goaltrack/domain/goal"
)

// LocalStore defines the durable, synchronous per-device persistence
// layer for goals. This is a port in hexagonal architecture - the
// application doesn't know about the implementation.
//
// Implementations must behave atomically per call: two rapid mutations
// must not silently lose one of them.
type LocalStore interface {
	// List returns every stored goal. The signature index is reconciled
	// with the collection as a side effect (orphans dropped, entries
	// missing after a content update restored), so the index is
	// self-healing on read.
	List() ([]*goal.Goal, error)

	// GetByID retrieves a goal by its local id; nil when absent.
	GetByID(id int64) (*goal.Goal, error)

	// Create persists a new goal. Creation is idempotent on content:
	// if a goal with the same signature already exists, the
	// pre-existing goal is returned instead of creating a duplicate.
	Create(g *goal.Goal) (*goal.Goal, error)

	// Update applies a partial patch; returns nil when the id is unknown.
	Update(id int64, patch goal.Patch) (*goal.Goal, error)

	// Delete removes a goal and its signature index entry, so the same
	// content can be legitimately recreated later.
	Delete(id int64) (bool, error)

	// CleanupOrphanSignatures rewrites the signature index to match the
	// current collection exactly.
	CleanupOrphanSignatures() error

	// LastSyncedAt returns the timestamp of the last completed sync
	// attempt, zero when the device has never synced.
	LastSyncedAt() (time.Time, error)

	// SetLastSyncedAt records a completed sync attempt.
	SetLastSyncedAt(t time.Time) error

	// Close releases the underlying database handle.
	Close() error
}

// RemoteGoal is a goal as represented by the remote store. Its ID lives
// in an opaque namespace disjoint from local integer ids; reconciling
// the two requires signature matching, not identifier comparison.
type RemoteGoal struct {
	ID                string          `json:"id"`
	OwnerID           string          `json:"ownerId"`
	Title             string          `json:"title"`
	Description       string          `json:"description,omitempty"`
	Timeline          string          `json:"timeline"`
	Progress          int             `json:"progress"`
	Status            goal.Status     `json:"status"`
	DueDate           string          `json:"dueDate"`
	SubGoals          []string        `json:"subGoals"`
	CompletedSubGoals int             `json:"completedSubGoals"`
	Milestones        []goal.Milestone `json:"milestones"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// RemoteStore defines the network-accessible persistence backend.
// Failures are classified by the sync engine: conflict-typed errors
// (or recognizable duplicate messages) count as skips, anything else
// as a genuine per-item error.
type RemoteStore interface {
	// Create persists a goal remotely under the given owner and returns
	// the remote representation including its assigned opaque id.
	Create(ctx context.Context, g *goal.Goal, ownerID string) (*RemoteGoal, error)

	// List returns all goals stored remotely for the owner.
	List(ctx context.Context, ownerID string) ([]*RemoteGoal, error)

	// Update applies a partial patch to a remote goal.
	Update(ctx context.Context, remoteID string, patch goal.Patch, ownerID string) error

	// Delete removes a remote goal.
	Delete(ctx context.Context, remoteID string, ownerID string) error
}

// Session describes the authenticated caller: who owns the data and
// which plan tier they are on. Supplied by the session middleware; the
// sync engine owns no business logic about why a session is eligible.
type Session struct {
	UserID string
	Email  string
	Plan   string
}
