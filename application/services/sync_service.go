package services

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"goaltrack/application/ports"
	"goaltrack/domain/goal"
	pkgerrors "goaltrack/pkg/errors"

	"go.uber.org/zap"
)

// MigrationResult summarizes a one-shot push of local goals to the
// remote store. ClearedLocal is always false: local storage stays the
// offline cache even for users who sync.
type MigrationResult struct {
	Synced       int      `json:"synced"`
	Skipped      int      `json:"skipped"`
	Errors       []string `json:"errors"`
	ClearedLocal bool     `json:"clearedLocal"`
}

// BidirectionalResult summarizes a recurring two-way reconciliation
// between the local and remote collections.
type BidirectionalResult struct {
	LocalToRemoteSynced int      `json:"localToRemoteSynced"`
	RemoteToLocalSynced int      `json:"remoteToLocalSynced"`
	Conflicts           int      `json:"conflicts"`
	DuplicatesSkipped   int      `json:"duplicatesSkipped"`
	Errors              []string `json:"errors"`
}

// SyncService reconciles the local store with the remote store for a
// single owner. Eligibility is an externally supplied predicate; the
// service owns no business logic about why a session qualifies.
//
// All sync errors are aggregated into result structs and never
// propagated to the synchronous caller path.
type SyncService struct {
	local    ports.LocalStore
	remote   ports.RemoteStore
	ownerID  string
	eligible func() bool
	interval time.Duration
	logger   *zap.Logger

	// runMu serializes sync passes: a run must not start while a prior
	// run is still executing.
	runMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSyncService creates a sync service for one owner's device.
func NewSyncService(
	local ports.LocalStore,
	remote ports.RemoteStore,
	ownerID string,
	eligible func() bool,
	interval time.Duration,
	logger *zap.Logger,
) *SyncService {
	return &SyncService{
		local:    local,
		remote:   remote,
		ownerID:  ownerID,
		eligible: eligible,
		interval: interval,
		logger:   logger,
	}
}

// MigrateToRemote pushes every local goal not already present remotely
// (by signature) to the remote store. Per-item failures never abort the
// loop; recognizable duplicates count as skips.
func (s *SyncService) MigrateToRemote(ctx context.Context) (*MigrationResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	res := &MigrationResult{Errors: []string{}}

	locals, err := s.local.List()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to read local goals")
	}

	remotes, err := s.remote.List(ctx, s.ownerID)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		s.recordSyncAttempt()
		return res, nil
	}

	remoteSigs := make(map[string]*ports.RemoteGoal, len(remotes))
	for _, r := range remotes {
		remoteSigs[goal.Signature(translateRemote(r))] = r
	}

	for _, l := range locals {
		sig := goal.Signature(l)
		if r, ok := remoteSigs[sig]; ok {
			res.Skipped++
			s.linkRemote(l, r.ID)
			continue
		}

		created, err := s.remote.Create(ctx, l, s.ownerID)
		if err != nil {
			if isDuplicateError(err) {
				res.Skipped++
			} else {
				res.Errors = append(res.Errors, err.Error())
			}
			continue
		}
		res.Synced++
		s.linkRemote(l, created.ID)
	}

	s.recordSyncAttempt()
	s.logger.Info("Migration sync finished",
		zap.String("ownerID", s.ownerID),
		zap.Int("synced", res.Synced),
		zap.Int("skipped", res.Skipped),
		zap.Int("errors", len(res.Errors)),
	)
	return res, nil
}

// Bidirectional runs one full two-way reconciliation pass. It blocks
// until any in-flight pass has finished.
func (s *SyncService) Bidirectional(ctx context.Context) (*BidirectionalResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.bidirectional(ctx)
}

func (s *SyncService) bidirectional(ctx context.Context) (*BidirectionalResult, error) {
	res := &BidirectionalResult{Errors: []string{}}

	locals, err := s.local.List()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to read local goals")
	}

	remotes, err := s.remote.List(ctx, s.ownerID)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		s.recordSyncAttempt()
		return res, nil
	}

	remoteByID := make(map[string]*ports.RemoteGoal, len(remotes))
	remoteBySig := make(map[string]*ports.RemoteGoal, len(remotes))
	for _, r := range remotes {
		remoteByID[r.ID] = r
		remoteBySig[goal.Signature(translateRemote(r))] = r
	}

	localByRemoteID := make(map[string]*goal.Goal, len(locals))
	localBySig := make(map[string]*goal.Goal, len(locals))
	for _, l := range locals {
		if l.RemoteID != "" {
			localByRemoteID[l.RemoteID] = l
		}
		localBySig[goal.Signature(l)] = l
	}

	// Local items the remote has never seen: push.
	for _, l := range locals {
		if _, linked := remoteByID[l.RemoteID]; linked {
			continue // same-id pair, handled by conflict detection below
		}

		if r, ok := remoteBySig[goal.Signature(l)]; ok {
			// Same logical goal created independently on both sides.
			// Record the id mapping instead of pushing a duplicate.
			res.DuplicatesSkipped++
			s.linkRemote(l, r.ID)
			continue
		}

		created, err := s.remote.Create(ctx, l, s.ownerID)
		if err != nil {
			if isDuplicateError(err) {
				res.DuplicatesSkipped++
			} else {
				res.Errors = append(res.Errors, err.Error())
			}
			continue
		}
		res.LocalToRemoteSynced++
		s.linkRemote(l, created.ID)
	}

	// Remote items this device has never seen: pull.
	for _, r := range remotes {
		if _, linked := localByRemoteID[r.ID]; linked {
			continue
		}
		translated := translateRemote(r)
		if _, ok := localBySig[goal.Signature(translated)]; ok {
			continue // signature pair already linked above
		}

		if _, err := s.local.Create(translated); err != nil {
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		res.RemoteToLocalSynced++
	}

	// Same-id pairs with diverged fields: local wins, push the local
	// version. No per-field merge and no timestamp ordering.
	for _, l := range locals {
		if l.RemoteID == "" {
			continue
		}
		r, ok := remoteByID[l.RemoteID]
		if !ok {
			continue
		}
		if projection(l) == projection(translateRemote(r)) {
			continue
		}

		if err := s.remote.Update(ctx, r.ID, goal.PatchFrom(l), s.ownerID); err != nil {
			if isDuplicateError(err) {
				res.DuplicatesSkipped++
			} else {
				res.Errors = append(res.Errors, err.Error())
			}
			continue
		}
		res.Conflicts++
	}

	s.recordSyncAttempt()
	s.logger.Info("Bidirectional sync finished",
		zap.String("ownerID", s.ownerID),
		zap.Int("localToRemote", res.LocalToRemoteSynced),
		zap.Int("remoteToLocal", res.RemoteToLocalSynced),
		zap.Int("conflicts", res.Conflicts),
		zap.Int("duplicatesSkipped", res.DuplicatesSkipped),
		zap.Int("errors", len(res.Errors)),
	)
	return res, nil
}

// StartAutoSync begins the recurring sync loop. Calling it while a loop
// is already running is a no-op.
func (s *SyncService) StartAutoSync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go s.loop(ctx, done)
	s.logger.Info("Autosync started",
		zap.String("ownerID", s.ownerID),
		zap.Duration("interval", s.interval),
	)
}

// StopAutoSync cancels the recurring loop and blocks until its
// goroutine has exited. A pass already in flight completes but will
// not reschedule itself afterwards.
func (s *SyncService) StopAutoSync() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("Autosync stopped", zap.String("ownerID", s.ownerID))
}

// Running reports whether the autosync loop is active.
func (s *SyncService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *SyncService) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one scheduled pass, skipping entirely if a prior pass is
// still executing.
func (s *SyncService) tick(ctx context.Context) {
	if !s.eligible() {
		return
	}
	if !s.runMu.TryLock() {
		s.logger.Debug("Skipping scheduled sync, previous run still in flight",
			zap.String("ownerID", s.ownerID),
		)
		return
	}
	defer s.runMu.Unlock()

	if _, err := s.bidirectional(ctx); err != nil {
		s.logger.Warn("Scheduled sync failed", zap.Error(err))
	}
}

// linkRemote records the local-to-remote id mapping. Failures are
// logged only; the mapping will be re-derived by signature next pass.
func (s *SyncService) linkRemote(l *goal.Goal, remoteID string) {
	if l.RemoteID == remoteID {
		return
	}
	l.RemoteID = remoteID
	if _, err := s.local.Update(l.ID, goal.Patch{RemoteID: &remoteID}); err != nil {
		s.logger.Warn("Failed to record remote id mapping",
			zap.Int64("localID", l.ID),
			zap.String("remoteID", remoteID),
			zap.Error(err),
		)
	}
}

// recordSyncAttempt persists the last-sync timestamp regardless of
// whether the pass had errors.
func (s *SyncService) recordSyncAttempt() {
	if err := s.local.SetLastSyncedAt(time.Now().UTC()); err != nil {
		s.logger.Warn("Failed to persist last-sync timestamp", zap.Error(err))
	}
}

// translateRemote converts a remote goal into the local shape. The
// local id stays zero; the store assigns one if the goal is appended.
func translateRemote(r *ports.RemoteGoal) *goal.Goal {
	milestones := make([]goal.Milestone, len(r.Milestones))
	copy(milestones, r.Milestones)
	subGoals := make([]string, len(r.SubGoals))
	copy(subGoals, r.SubGoals)

	return &goal.Goal{
		RemoteID:          r.ID,
		Title:             r.Title,
		Description:       r.Description,
		Timeline:          r.Timeline,
		Progress:          r.Progress,
		Status:            r.Status,
		DueDate:           r.DueDate,
		SubGoals:          subGoals,
		CompletedSubGoals: r.CompletedSubGoals,
		CreatedAt:         r.CreatedAt,
		Milestones:        milestones,
	}
}

// projection serializes the fields that participate in conflict
// detection. Identifier and timestamp fields are deliberately excluded.
func projection(g *goal.Goal) string {
	milestones, _ := json.Marshal(g.Milestones)
	fields, _ := json.Marshal(struct {
		Title       string      `json:"title"`
		Description string      `json:"description"`
		Progress    int         `json:"progress"`
		Status      goal.Status `json:"status"`
		Milestones  string      `json:"milestones"`
	}{g.Title, g.Description, g.Progress, g.Status, string(milestones)})
	return string(fields)
}

// isDuplicateError reports whether a remote failure is a duplicate or
// uniqueness violation rather than a genuine error.
func isDuplicateError(err error) bool {
	if err == nil {
		return false
	}
	if pkgerrors.IsConflict(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "unique") ||
		strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "conditionalcheckfailed")
}
