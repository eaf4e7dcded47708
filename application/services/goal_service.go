package services

import (
	"context"
	"sync"
	"time"

	"goaltrack/application/ports"
	"goaltrack/domain/goal"
	pkgerrors "goaltrack/pkg/errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// remoteMirrorTimeout bounds each best-effort remote mirror call.
const remoteMirrorTimeout = 10 * time.Second

// CreateGoalInput is the payload accepted by CreateGoal.
type CreateGoalInput struct {
	Title       string           `json:"title" validate:"required"`
	Description string           `json:"description"`
	Timeline    string           `json:"timeline"`
	DueDate     string           `json:"dueDate"`
	SubGoals    []string         `json:"subGoals"`
	Milestones  []goal.Milestone `json:"milestones" validate:"dive"`
}

// GoalService is the goal manager facade: the only interface the rest
// of the application consumes. Every mutation applies synchronously to
// the local store and returns that result; when the session is
// sync-eligible the same mutation is mirrored to the remote store
// asynchronously and best-effort. A remote failure is logged and never
// rolls back the caller's completed local operation.
type GoalService struct {
	session  ports.Session
	local    ports.LocalStore
	remote   ports.RemoteStore
	sync     *SyncService
	eligible func() bool
	validate *validator.Validate
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewGoalService constructs a facade for one authenticated session.
// The eligibility predicate is supplied by the caller; the facade and
// its sync engine hold no business logic about plan tiers.
func NewGoalService(
	session ports.Session,
	local ports.LocalStore,
	remote ports.RemoteStore,
	eligible func() bool,
	syncInterval time.Duration,
	logger *zap.Logger,
) *GoalService {
	return &GoalService{
		session:  session,
		local:    local,
		remote:   remote,
		sync:     NewSyncService(local, remote, session.UserID, eligible, syncInterval, logger),
		eligible: eligible,
		validate: validator.New(),
		logger:   logger,
	}
}

// Start begins autosync when the session qualifies.
func (s *GoalService) Start() {
	if s.eligible() {
		s.sync.StartAutoSync()
	}
}

/// Close tears the facade down: autosync is canceled deterministically,
// in-flight mirror calls are allowed to finish, then the local store
// is released.
func (s *GoalService) Close() error {
	s.sync.StopAutoSync()
	s.wg.Wait()
	return s.local.Close()
}

// GetGoals returns all goals from the local store.
func (s *GoalService) GetGoals() ([]*goal.Goal, error) {
	return s.local.List()
}

// GetGoalByID returns a single goal, nil when absent.
func (s *GoalService) GetGoalByID(id int64) (*goal.Goal, error) {
	return s.local.GetByID(id)
}

// CreateGoal validates the input and creates the goal locally. Thanks
// to signature-based idempotency, resubmitting the same content returns
// the pre-existing goal rather than a duplicate.
func (s *GoalService) CreateGoal(input CreateGoalInput) (*goal.Goal, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, pkgerrors.NewValidationError(err.Error())
	}

	g, err := goal.New(input.Title, input.Description, input.Timeline, input.DueDate, input.SubGoals, input.Milestones)
	if err != nil {
		return nil, err
	}

	created, err := s.local.Create(g)
	if err != nil {
		return nil, err
	}

	if created.RemoteID == "" {
		s.mirror("create", func(ctx context.Context) error {
			remote, err := s.remote.Create(ctx, created, s.session.UserID)
			if err != nil {
				return err
			}
			_, err = s.local.Update(created.ID, goal.Patch{RemoteID: &remote.ID})
			return err
		})
	}
	return created, nil
}

// UpdateGoal applies a partial patch; nil result when the id is unknown.
func (s *GoalService) UpdateGoal(id int64, patch goal.Patch) (*goal.Goal, error) {
	if patch.Progress != nil && (*patch.Progress < 0 || *patch.Progress > 100) {
		return nil, pkgerrors.NewValidationError("progress must be between 0 and 100")
	}

	updated, err := s.local.Update(id, patch)
	if err != nil || updated == nil {
		return updated, err
	}

	s.mirrorUpdate(updated)
	return updated, nil
}

// DeleteGoal removes a goal locally and mirrors the deletion remotely.
// The signature index entry goes with it, so the same content can be
// legitimately recreated later under a new id.
func (s *GoalService) DeleteGoal(id int64) (bool, error) {
	existing, err := s.local.GetByID(id)
	if err != nil {
		return false, err
	}

	deleted, err := s.local.Delete(id)
	if err != nil || !deleted {
		return deleted, err
	}

	if existing != nil && existing.RemoteID != "" {
		remoteID := existing.RemoteID
		s.mirror("delete", func(ctx context.Context) error {
			return s.remote.Delete(ctx, remoteID, s.session.UserID)
		})
	}
	return true, nil
}

// MarkMilestoneComplete completes the milestone at index, promotes the
// next pending one and recomputes the goal's derived progress/status.
func (s *GoalService) MarkMilestoneComplete(goalID int64, index int) (*goal.Goal, error) {
	return s.transitionMilestone(goalID, func(g *goal.Goal) error {
		return g.MarkMilestoneComplete(index)
	})
}

// UndoMilestoneComplete reverts a completed milestone.
func (s *GoalService) UndoMilestoneComplete(goalID int64, index int) (*goal.Goal, error) {
	return s.transitionMilestone(goalID, func(g *goal.Goal) error {
		return g.UndoMilestoneComplete(index)
	})
}

// AdjustTimeline shifts every still-pending milestone forward one week.
func (s *GoalService) AdjustTimeline(goalID int64) (*goal.Goal, error) {
	return s.transitionMilestone(goalID, func(g *goal.Goal) error {
		g.AdjustTimeline()
		return nil
	})
}

// SyncLocalGoalsToDatabase runs the one-shot migration sync.
func (s *GoalService) SyncLocalGoalsToDatabase(ctx context.Context) (*MigrationResult, error) {
	if !s.eligible() {
		return nil, pkgerrors.NewValidationError("session is not sync-eligible")
	}
	return s.sync.MigrateToRemote(ctx)
}

// BidirectionalSync runs one two-way reconciliation pass on demand.
func (s *GoalService) BidirectionalSync(ctx context.Context) (*BidirectionalResult, error) {
	if !s.eligible() {
		return nil, pkgerrors.NewValidationError("session is not sync-eligible")
	}
	return s.sync.Bidirectional(ctx)
}

// LastSyncedAt exposes the persisted last-sync timestamp.
func (s *GoalService) LastSyncedAt() (time.Time, error) {
	return s.local.LastSyncedAt()
}

// SyncRunning reports whether autosync is active for this session.
func (s *GoalService) SyncRunning() bool {
	return s.sync.Running()
}

// transitionMilestone loads a goal, applies the state transition and
// writes the full result back under the store's mutation lock.
func (s *GoalService) transitionMilestone(goalID int64, fn func(*goal.Goal) error) (*goal.Goal, error) {
	g, err := s.local.GetByID(goalID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, pkgerrors.NewNotFoundError("goal")
	}

	if err := fn(g); err != nil {
		return nil, err
	}

	updated, err := s.local.Update(goalID, goal.PatchFrom(g))
	if err != nil {
		return nil, err
	}

	s.mirrorUpdate(updated)
	return updated, nil
}

// mirrorUpdate pushes a local change to the remote copy, if one exists.
func (s *GoalService) mirrorUpdate(g *goal.Goal) {
	if g.RemoteID == "" {
		return
	}
	remoteID := g.RemoteID
	patch := goal.PatchFrom(g)
	s.mirror("update", func(ctx context.Context) error {
		return s.remote.Update(ctx, remoteID, patch, s.session.UserID)
	})
}

// mirror runs a best-effort remote call in the background. Failures are
// logged and never surface to the synchronous caller; the next sync
// pass reconciles whatever was missed.
func (s *GoalService) mirror(op string, fn func(ctx context.Context) error) {
	if !s.eligible() {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), remoteMirrorTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.Warn("Best-effort remote mirror failed",
				zap.String("op", op),
				zap.String("ownerID", s.session.UserID),
				zap.Error(err),
			)
		}
	}()
}
