package handlers

import (
	"net/http"
	"time"

	"goaltrack/application/ports"
	"goaltrack/application/services"
	"goaltrack/pkg/auth"
	"goaltrack/pkg/common"

	"go.uber.org/zap"
)

// SyncHandler handles sync-related HTTP requests
type SyncHandler struct {
	registry *services.Registry
	logger   *zap.Logger
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(registry *services.Registry, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		registry: registry,
		logger:   logger,
	}
}

// Migrate handles POST /sync/migrate. It pushes every unsynced local
// goal to the remote store once and reports per-goal outcomes.
func (h *SyncHandler) Migrate(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.manager(w, r)
	if !ok {
		return
	}

	result, err := mgr.SyncLocalGoalsToDatabase(r.Context())
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}

// Bidirectional handles POST /sync/bidirectional. It runs one full
// two-way reconciliation pass and reports the counters.
func (h *SyncHandler) Bidirectional(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.manager(w, r)
	if !ok {
		return
	}

	result, err := mgr.BidirectionalSync(r.Context())
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}

// Status handles GET /sync/status
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.manager(w, r)
	if !ok {
		return
	}

	lastSynced, err := mgr.LastSyncedAt()
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	status := map[string]interface{}{
		"autoSyncRunning": mgr.SyncRunning(),
	}
	if lastSynced.IsZero() {
		status["lastSyncedAt"] = nil
	} else {
		status["lastSyncedAt"] = lastSynced.Format(time.RFC3339)
	}

	common.RespondJSON(w, http.StatusOK, status)
}

func (h *SyncHandler) manager(w http.ResponseWriter, r *http.Request) (*services.GoalService, bool) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return nil, false
	}

	mgr, err := h.registry.Manager(ports.Session{
		UserID: userCtx.UserID,
		Email:  userCtx.Email,
		Plan:   userCtx.Plan,
	})
	if err != nil {
		h.logger.Error("Failed to obtain goal manager",
			zap.String("userID", userCtx.UserID),
			zap.Error(err),
		)
		common.RespondError(w, http.StatusInternalServerError, "INTERNAL", "Failed to open goal store")
		return nil, false
	}
	return mgr, true
}
