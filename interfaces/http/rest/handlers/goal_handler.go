package handlers

import (
	"net/http"
	"strconv"

	"goaltrack/application/ports"
	"goaltrack/application/services"
	"goaltrack/domain/goal"
	"goaltrack/pkg/auth"
	"goaltrack/pkg/common"
	"goaltrack/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// GoalHandler handles goal-related HTTP requests
type GoalHandler struct {
	registry *services.Registry
	logger   *zap.Logger
}

// NewGoalHandler creates a new goal handler
func NewGoalHandler(registry *services.Registry, logger *zap.Logger) *GoalHandler {
	return &GoalHandler{
		registry: registry,
		logger:   logger,
	}
}

// ListGoals handles GET /goals
func (h *GoalHandler) ListGoals(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.manager(w, r)
	if !ok {
		return
	}

	goals, err := mgr.GetGoals()
	if err != nil {
		h.logger.Error("Failed to list goals", zap.Error(err))
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"goals": goals,
		"count": len(goals),
	})
}

// GetGoal handles GET /goals/{goalID}
func (h *GoalHandler) GetGoal(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.manager(w, r)
	if !ok {
		return
	}

	id, ok := h.goalID(w, r)
	if !ok {
		return
	}

	g, err := mgr.GetGoalByID(id)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	if g == nil {
		common.RespondError(w, http.StatusNotFound, "NOT_FOUND", "Goal not found")
		return
	}

	common.RespondJSON(w, http.StatusOK, g)
}

// CreateGoal handles POST /goals
func (h *GoalHandler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.manager(w, r)
	if !ok {
		return
	}

	var input services.CreateGoalInput
	if err := common.ParseJSONBody(r, &input, maxBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body: "+err.Error())
		return
	}

	if err := utils.ValidateStruct(input); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", err.Error())
		return
	}

	created, err := mgr.CreateGoal(input)
	if err != nil {
		h.logger.Error("Failed to create goal", zap.Error(err))
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusCreated, created)
}

// UpdateGoal handles PUT /goals/{goalID}
func (h *GoalHandler) UpdateGoal(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.manager(w, r)
	if !ok {
		return
	}

	id, ok := h.goalID(w, r)
	if !ok {
		return
	}

	var patch goal.Patch
	if err := common.ParseJSONBody(r, &patch, maxBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body: "+err.Error())
		return
	}

	updated, err := mgr.UpdateGoal(id, patch)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	if updated == nil {
		common.RespondError(w, http.StatusNotFound, "NOT_FOUND", "Goal not found")
		return
	}

	common.RespondJSON(w, http.StatusOK, updated)
}

// DeleteGoal handles DELETE /goals/{goalID}
func (h *GoalHandler) DeleteGoal(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.manager(w, r)
	if !ok {
		return
	}

	id, ok := h.goalID(w, r)
	if !ok {
		return
	}

	deleted, err := mgr.DeleteGoal(id)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	if !deleted {
		common.RespondError(w, http.StatusNotFound, "NOT_FOUND", "Goal not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CompleteMilestone handles POST /goals/{goalID}/milestones/{index}/complete
func (h *GoalHandler) CompleteMilestone(w http.ResponseWriter, r *http.Request) {
	h.milestoneTransition(w, r, func(mgr *services.GoalService, goalID int64, index int) (*goal.Goal, error) {
		return mgr.MarkMilestoneComplete(goalID, index)
	})
}

// UndoMilestone handles POST /goals/{goalID}/milestones/{index}/undo
func (h *GoalHandler) UndoMilestone(w http.ResponseWriter, r *http.Request) {
	h.milestoneTransition(w, r, func(mgr *services.GoalService, goalID int64, index int) (*goal.Goal, error) {
		return mgr.UndoMilestoneComplete(goalID, index)
	})
}

// AdjustTimeline handles POST /goals/{goalID}/timeline/adjust
func (h *GoalHandler) AdjustTimeline(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.manager(w, r)
	if !ok {
		return
	}

	id, ok := h.goalID(w, r)
	if !ok {
		return
	}

	updated, err := mgr.AdjustTimeline(id)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, updated)
}

func (h *GoalHandler) milestoneTransition(
	w http.ResponseWriter,
	r *http.Request,
	fn func(mgr *services.GoalService, goalID int64, index int) (*goal.Goal, error),
) {
	mgr, ok := h.manager(w, r)
	if !ok {
		return
	}

	id, ok := h.goalID(w, r)
	if !ok {
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		common.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid milestone index")
		return
	}

	updated, err := fn(mgr, id, index)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, updated)
}

func (h *GoalHandler) goalID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "goalID"), 10, 64)
	if err != nil || id <= 0 {
		common.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid goal ID")
		return 0, false
	}
	return id, true
}

func (h *GoalHandler) manager(w http.ResponseWriter, r *http.Request) (*services.GoalService, bool) {
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
