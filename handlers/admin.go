package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"seroest/app"
	"seroest/models"
)

// AdminHandler serves account, project and reference-data management and the
// activity log. Role checks happen in the orchestrator.
type AdminHandler struct {
	orch *app.Orchestrator
	log  logrus.FieldLogger
}

func NewAdminHandler(orch *app.Orchestrator, log logrus.FieldLogger) *AdminHandler {
	return &AdminHandler{
		orch: orch,
		log:  log.WithField("handler", "admin"),
	}
}

// --- User Management ---

// CreateUserRequest is a new account; actif defaults to true.
type CreateUserRequest struct {
	Name     string          `json:"nom"`
	Password string          `json:"motDePasse"`
	Role     models.UserRole `json:"role"`
	Active   *bool           `json:"actif"`
}

func (r CreateUserRequest) user() models.User {
	active := r.Active == nil || *r.Active
	return models.User{Name: r.Name, Password: r.Password, Role: r.Role, Active: active}
}

// GetUsers returns all users without password hashes
func (h *AdminHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	orch, _, ok := orchestratorFor(w, r, h.orch)
	if !ok {
		return
	}
	users, err := orch.Users(r.Context())
	if err != nil {
		writeServiceError(w, h.log, "retrieve users", err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// CreateUser creates a new account
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	orch, admin, ok := orchestratorFor(w, r, h.orch)
	if !ok {
		return
	}

	var req CreateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := orch.CreateUser(r.Context(), req.user())
	if err != nil {
		writeServiceError(w, h.log, "create user", err)
		return
	}

	h.log.WithFields(logrus.Fields{"admin": admin.ID, "user": user.ID, "role": user.Role}).Info("✅ user created")
	writeJSON(w, http.StatusCreated, user)
}

// UpdateUser applies a partial update to /api/users/{id}
func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	orch, admin, ok := orchestratorFor(w, r, h.orch)
	if !ok {
		return
	}

	var patch models.UserPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	id := r.PathValue("id")
	if err := orch.UpdateUser(r.Context(), id, patch); err != nil {
		writeServiceError(w, h.log, "update user", err)
		return
	}

	h.log.WithFields(logrus.Fields{"admin": admin.ID, "user": id}).Info("✅ user updated")
	w.WriteHeader(http.StatusNoContent)
}

// DeleteUser removes /api/users/{id}
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	orch, admin, ok := orchestratorFor(w, r, h.orch)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if id == admin.ID {
		writeError(w, "Cannot delete your own account", http.StatusBadRequest)
		return
	}
	if err := orch.DeleteUser(r.Context(), id); err != nil {
		writeServiceError(w, h.log, "delete user", err)
		return
	}

	h.log.WithFields(logrus.Fields{"admin": admin.ID, "user": id}).Info("🗑️ user deleted")
	w.WriteHeader(http.StatusNoContent)
}

// --- Project Management ---

func (h *AdminHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	orch, admin, ok := orchestratorFor(w, r, h.orch)
	if !ok {
		return
	}

	var req models.Project
	if !decodeJSON(w, r, &req) {
		return
	}

	project, err := orch.CreateProject(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.log, "create project", err)
		return
	}

	h.log.WithFields(logrus.Fields{"admin": admin.ID, "project": project.ID}).Info("✅ project created")
	writeJSON(w, http.StatusCreated, project)
}

func (h *AdminHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	orch, _, ok := orchestratorFor(w, r, h.orch)
	if !ok {
		return
	}

	var patch models.ProjectPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	if err := orch.UpdateProject(r.Context(), r.PathValue("id"), patch); err != nil {
		writeServiceError(w, h.log, "update project", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	orch, _, ok := orchestratorFor(w, r, h.orch)
	if !ok {
		return
	}
	if err := orch.DeleteProject(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, h.log, "delete project", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Settings ---

// UpdatePhases replaces the phase catalogue with the request body.
func (h *AdminHandler) UpdatePhases(w http.ResponseWriter, r *http.Request) {
	orch, _, ok := orchestratorFor(w, r, h.orch)
	if !ok {
		return
	}

	var phases []models.Phase
	if !decodeJSON(w, r, &phases) {
		return
	}
	saved, err := orch.UpdatePhases(r.Context(), phases)
	if err != nil {
		writeServiceError(w, h.log, "update phases", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// UpdateStations replaces the station park with the request body.
func (h *AdminHandler) UpdateStations(w http.ResponseWriter, r *http.Request) {
	orch, _, ok := orchestratorFor(w, r, h.orch)
	if !ok {
		return
	}

	var stations []models.Station
	if !decodeJSON(w, r, &stations) {
		return
	}
	saved, err := orch.UpdateStations(r.Context(), stations)
	if err != nil {
		writeServiceError(w, h.log, "update stations", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// GetActionLogs returns the activity log, most recent first
func (h *AdminHandler) GetActionLogs(w http.ResponseWriter, r *http.Request) {
	orch, _, ok := orchestratorFor(w, r, h.orch)
	if !ok {
		return
	}
	logs, err := orch.ActionLogs(r.Context())
	if err != nil {
		writeServiceError(w, h.log, "retrieve action logs", err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}
