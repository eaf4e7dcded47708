package services

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"goaltrack/application/ports"
	"goaltrack/infrastructure/persistence/sqlite"

	"go.uber.org/zap"
)

// Registry constructs one goal manager per authenticated session and
// owns their lifecycles. There is deliberately no process-wide manager
// singleton: each owner gets an explicit service object scoped to their
// session, backed by their own local store file.
type Registry struct {
	mu           sync.Mutex
	managers     map[string]*managerEntry
	dataDir      string
	remote       ports.RemoteStore
	syncInterval time.Duration
	syncPlans    map[string]struct{}
	logger       *zap.Logger
}

// managerEntry tracks the plan tier the manager was last seen with.
// Eligibility lives in an atomic flag the manager's predicate reads, so
// a plan change takes effect without rebuilding the manager.
type managerEntry struct {
	mgr      *GoalService
	plan     string
	eligible atomic.Bool
}

// NewRegistry creates a registry. syncPlans names the plan tiers that
// qualify a session for remote sync.
func NewRegistry(
	dataDir string,
	remote ports.RemoteStore,
	syncInterval time.Duration,
	syncPlans []string,
	logger *zap.Logger,
) *Registry {
	plans := make(map[string]struct{}, len(syncPlans))
	for _, p := range syncPlans {
		plans[strings.ToLower(strings.TrimSpace(p))] = struct{}{}
	}

	return &Registry{
		managers:     make(map[string]*managerEntry),
		dataDir:      dataDir,
		remote:       remote,
		syncInterval: syncInterval,
		syncPlans:    plans,
		logger:       logger,
	}
}

// Manager returns the goal manager for the session's owner, creating
// and starting one on first use. A returning session with a different
// plan tier refreshes the manager's sync eligibility in place.
func (r *Registry) Manager(session ports.Session) (*GoalService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.managers[session.UserID]; ok {
		if entry.plan != session.Plan {
			was := entry.eligible.Load()
			now := r.qualifies(session)
			entry.plan = session.Plan
			entry.eligible.Store(now)
			if now && !was {
				entry.mgr.Start()
			}
			r.logger.Info("Session plan changed",
				zap.String("ownerID", session.UserID),
				zap.String("plan", session.Plan),
				zap.Bool("syncEligible", now),
			)
		}
		return entry.mgr, nil
	}

	path := filepath.Join(r.dataDir, fmt.Sprintf("%s.db", sanitizeOwner(session.UserID)))
	local, err := sqlite.NewLocalStore(path, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store for owner: %w", err)
	}

	entry := &managerEntry{plan: session.Plan}
	entry.eligible.Store(r.qualifies(session))
	entry.mgr = NewGoalService(session, local, r.remote, entry.eligible.Load, r.syncInterval, r.logger)
	entry.mgr.Start()
	r.managers[session.UserID] = entry

	r.logger.Info("Goal manager created",
		zap.String("ownerID", session.UserID),
		zap.String("plan", session.Plan),
		zap.Bool("syncEligible", entry.eligible.Load()),
	)
	return entry.mgr, nil
}

// CloseAll tears down every manager; recurring sync tasks are canceled
// deterministically before the stores close.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for owner, entry := range r.managers {
		if err := entry.mgr.Close(); err != nil {
			r.logger.Warn("Failed to close goal manager",
				zap.String("ownerID", owner),
				zap.Error(err),
			)
		}
		delete(r.managers, owner)
	}
}

// qualifies reports whether the session may sync remotely: a remote
// backend must be configured and the plan tier must qualify.
func (r *Registry) qualifies(session ports.Session) bool {
	_, planOK := r.syncPlans[strings.ToLower(session.Plan)]
	return r.remote != nil && planOK && session.UserID != ""
}

// sanitizeOwner keeps owner-derived file names path-safe.
func sanitizeOwner(owner string) string {
	return strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			return c
		default:
			return '_'
		}
	}, owner)
}
