package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"goaltrack/application/ports"
	"goaltrack/domain/goal"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Record keys for the three logically independent documents kept in the
// local store: the goal collection, the signature index and the
// last-sync timestamp.
const (
	recordGoals      = "goals"
	recordSignatures = "goal_signatures"
	recordLastSync   = "last_synced_at"
)

// LocalStore implements ports.LocalStore on a single-file SQLite
// database holding JSON documents. SQLite gives the durability and
// crash safety; the mutex gives the per-call atomicity the engine
// relies on.
type LocalStore struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// NewLocalStore opens (creating if necessary) the local store at path.
func NewLocalStore(path string, logger *zap.Logger) (*LocalStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS records (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize local store schema: %w", err)
	}

	return &LocalStore{db: db, path: path, logger: logger}, nil
}

// Close releases the database handle.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// List returns all stored goals and reconciles the signature index as
// a side effect: orphaned entries are dropped and entries missing after
// a content update are restored.
func (s *LocalStore) List() ([]*goal.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	goals := s.loadGoals()
	if err := s.reconcileIndex(goals); err != nil {
		return nil, err
	}

	out := make([]*goal.Goal, 0, len(goals))
	for _, g := range goals {
		out = append(out, g.Clone())
	}
	return out, nil
}

// GetByID retrieves a single goal by its local id; nil when absent.
func (s *LocalStore) GetByID(id int64) (*goal.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.loadGoals() {
		if g.ID == id {
			return g.Clone(), nil
		}
	}
	return nil, nil
}

// Create persists a new goal, assigning the next sequential local id.
//
// Creation is idempotent on content: the collection itself is scanned
// for a matching signature, so a stale index (after a rename, say) can
// neither produce a duplicate nor block a legitimate create. An indexed
// signature with no matching goal is a leftover orphan and is reclaimed.
func (s *LocalStore) Create(g *goal.Goal) (*goal.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	goals := s.loadGoals()
	sig := goal.Signature(g)

	for _, existing := range goals {
		if goal.Signature(existing) == sig {
			s.logger.Debug("Duplicate goal creation short-circuited",
				zap.Int64("id", existing.ID),
				zap.String("title", existing.Title),
			)
			return existing.Clone(), nil
		}
	}

	if _, ok := s.loadSignatures()[sig]; ok {
		s.logger.Warn("Reclaimed orphan signature during create", zap.String("signature", sig))
	}

	stored := g.Clone()
	stored.ID = nextID(goals)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	goals = append(goals, stored)

	// Rebuild the index from the collection so creation also heals any
	// drift left behind by content updates.
	sigs := make(map[string]struct{}, len(goals))
	for _, kept := range goals {
		sigs[goal.Signature(kept)] = struct{}{}
	}

	if err := s.persist(goals, sigs); err != nil {
		return nil, err
	}
	return stored.Clone(), nil
}

// Update applies a partial patch; returns nil when the id is unknown.
func (s *LocalStore) Update(id int64, patch goal.Patch) (*goal.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	goals := s.loadGoals()
	for _, g := range goals {
		if g.ID == id {
			g.Apply(patch)
			if err := s.saveRecord(recordGoals, goals); err != nil {
				return nil, err
			}
			return g.Clone(), nil
		}
	}
	return nil, nil
}

// Delete removes a goal and its signature index entry.
func (s *LocalStore) Delete(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	goals := s.loadGoals()
	idx := -1
	for i, g := range goals {
		if g.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false, nil
	}

	sigs := s.loadSignatures()
	delete(sigs, goal.Signature(goals[idx]))
	goals = append(goals[:idx], goals[idx+1:]...)

	if err := s.persist(goals, sigs); err != nil {
		return false, err
	}
	return true, nil
}

// CleanupOrphanSignatures recomputes the valid signature set from the
// current collection and rewrites the index to match it.
func (s *LocalStore) CleanupOrphanSignatures() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconcileIndex(s.loadGoals())
}

// LastSyncedAt returns the recorded last-sync timestamp, zero when the
// device has never synced.
func (s *LocalStore) LastSyncedAt() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.readRecord(recordLastSync)
	if !ok {
		return time.Time{}, nil
	}
	var stamp string
	if err := json.Unmarshal([]byte(raw), &stamp); err != nil {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

// SetLastSyncedAt records a completed sync attempt.
func (s *LocalStore) SetLastSyncedAt(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveRecord(recordLastSync, t.UTC().Format(time.RFC3339))
}

// AddSignature inserts a raw index entry. Used by tests to simulate
// inconsistent prior state.
func (s *LocalStore) AddSignature(sig string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sigs := s.loadSignatures()
	sigs[sig] = struct{}{}
	return s.saveRecord(recordSignatures, signatureList(sigs))
}

// Signatures returns a snapshot of the signature index.
func (s *LocalStore) Signatures() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return signatureList(s.loadSignatures())
}

// reconcileIndex rewrites the signature index to exactly match the
// collection: orphaned entries are dropped and entries missing after a
// content update are restored. Caller holds the mutex.
func (s *LocalStore) reconcileIndex(goals []*goal.Goal) error {
	sigs := s.loadSignatures()
	valid := make(map[string]struct{}, len(goals))
	for _, g := range goals {
		valid[goal.Signature(g)] = struct{}{}
	}

	if len(sigs) == len(valid) {
		drift := false
		for sig := range valid {
			if _, ok := sigs[sig]; !ok {
				drift = true
				break
			}
		}
		if !drift {
			return nil
		}
	}

	s.logger.Debug("Reconciled signature index", zap.Int("entries", len(valid)))
	return s.saveRecord(recordSignatures, signatureList(valid))
}

// loadGoals reads the goal collection. Malformed or missing data falls
// back to an empty collection rather than surfacing an error.
func (s *LocalStore) loadGoals() []*goal.Goal {
	raw, ok := s.readRecord(recordGoals)
	if !ok {
		return []*goal.Goal{}
	}

	var goals []*goal.Goal
	if err := json.Unmarshal([]byte(raw), &goals); err != nil {
		s.logger.Warn("Corrupt goal collection, falling back to empty",
			zap.String("path", s.path),
			zap.Error(err),
		)
		return []*goal.Goal{}
	}
	return goals
}

// loadSignatures reads the signature index with the same defensive
// fallback as loadGoals.
func (s *LocalStore) loadSignatures() map[string]struct{} {
	raw, ok := s.readRecord(recordSignatures)
	if !ok {
		return map[string]struct{}{}
	}

	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		s.logger.Warn("Corrupt signature index, falling back to empty", zap.Error(err))
		return map[string]struct{}{}
	}

	sigs := make(map[string]struct{}, len(list))
	for _, sig := range list {
		sigs[sig] = struct{}{}
	}
	return sigs
}

// persist writes the goal collection and signature index in a single
// transaction so the two records cannot drift on a crash.
func (s *LocalStore) persist(goals []*goal.Goal, sigs map[string]struct{}) error {
	goalsJSON, err := json.Marshal(goals)
	if err != nil {
		return fmt.Errorf("failed to marshal goals: %w", err)
	}
	sigsJSON, err := json.Marshal(signatureList(sigs))
	if err != nil {
		return fmt.Errorf("failed to marshal signature index: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("INSERT OR REPLACE INTO records (key, value) VALUES (?, ?)", recordGoals, string(goalsJSON)); err != nil {
		return fmt.Errorf("failed to save goals: %w", err)
	}
	if _, err := tx.Exec("INSERT OR REPLACE INTO records (key, value) VALUES (?, ?)", recordSignatures, string(sigsJSON)); err != nil {
		return fmt.Errorf("failed to save signature index: %w", err)
	}

	return tx.Commit()
}

func (s *LocalStore) readRecord(key string) (string, bool) {
	var value string
	err := s.db.QueryRow("SELECT value FROM records WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.Warn("Failed to read local record", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	return value, true
}

func (s *LocalStore) saveRecord(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", key, err)
	}
	if _, err := s.db.Exec("INSERT OR REPLACE INTO records (key, value) VALUES (?, ?)", key, string(data)); err != nil {
		return fmt.Errorf("failed to save record %s: %w", key, err)
	}
	return nil
}

func nextID(goals []*goal.Goal) int64 {
	var max int64
	for _, g := range goals {
		if g.ID > max {
			max = g.ID
		}
	}
	return max + 1
}

func signatureList(sigs map[string]struct{}) []string {
	list := make([]string, 0, len(sigs))
	for sig := range sigs {
		list = append(list, sig)
	}
	return list
}

var _ ports.LocalStore = (*LocalStore)(nil)
