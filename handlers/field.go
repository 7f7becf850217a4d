package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"seroest/app"
	"seroest/models"
)

// FieldHandler serves what topographes need on site: the project, phase and
// station catalogues and report submission.
type FieldHandler struct {
	orch *app.Orchestrator
	log  logrus.FieldLogger
}

func NewFieldHandler(orch *app.Orchestrator, log logrus.FieldLogger) *FieldHandler {
	return &FieldHandler{
		orch: orch,
		log:  log.WithField("handler", "field"),
	}
}

func (h *FieldHandler) GetProjects(w http.ResponseWriter, r *http.Request) {
	orch, _, ok := orchestratorFor(w, r, h.orch)
	if !ok {
		return
	}
	projects, err := orch.Projects(r.Context())
	if err != nil {
		writeServiceError(w, h.log, "retrieve projects", err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (h *FieldHandler) GetPhases(w http.ResponseWriter, r *http.Request) {
	orch, _, ok := orchestratorFor(w, r, h.orch)
	if !ok {
		return
	}
	phases, err := orch.Phases(r.Context())
	if err != nil {
		writeServiceError(w, h.log, "retrieve phases", err)
		return
	}
	writeJSON(w, http.StatusOK, phases)
}

func (h *FieldHandler) GetStations(w http.ResponseWriter, r *http.Request) {
	orch, _, ok := orchestratorFor(w, r, h.orch)
	if !ok {
		return
	}
	stations, err := orch.Stations(r.Context())
	if err != nil {
		writeServiceError(w, h.log, "retrieve stations", err)
		return
	}
	writeJSON(w, http.StatusOK, stations)
}

// SubmitReport records a report for the authenticated topographe. Author
// fields in the body are ignored.
func (h *FieldHandler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	orch, user, ok := orchestratorFor(w, r, h.orch)
	if !ok {
		return
	}

	var req models.Report
	if !decodeJSON(w, r, &req) {
		return
	}

	report, err := orch.SubmitReport(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.log, "submit report", err)
		return
	}

	h.log.WithFields(logrus.Fields{"user": user.ID, "report": report.ID, "project": report.ProjectName}).Info("📤 report submitted")
	writeJSON(w, http.StatusCreated, report)
}
