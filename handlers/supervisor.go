package handlers

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"seroest/app"
	"seroest/export"
	"seroest/models"
)

// SupervisorHandler serves report review for admins and responsables.
type SupervisorHandler struct {
	orch *app.Orchestrator
	log  logrus.FieldLogger
}

func NewSupervisorHandler(orch *app.Orchestrator, log logrus.FieldLogger) *SupervisorHandler {
	return &SupervisorHandler{
		orch: orch,
		log:  log.WithField("handler", "supervisor"),
	}
}

// GetReports returns reports visible to the user: all of them for
// supervisors, their own for topographes.
func (h *SupervisorHandler) GetReports(w http.ResponseWriter, r *http.Request) {
	orch, _, ok := orchestratorFor(w, r, h.orch)
	if !ok {
		return
	}
	reports, err := orch.Reports(r.Context())
	if err != nil {
		writeServiceError(w, h.log, "retrieve reports", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rapports": reports,
		"count":    len(reports),
	})
}

type UpdateStatusRequest struct {
	Status models.ReportStatus `json:"statut"`
}

// UpdateReportStatus sets the status of /api/reports/{id}.
func (h *SupervisorHandler) UpdateReportStatus(w http.ResponseWriter, r *http.Request) {
	orch, user, ok := orchestratorFor(w, r, h.orch)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id := r.PathValue("id")
	if err := orch.UpdateReportStatus(r.Context(), id, req.Status); err != nil {
		writeServiceError(w, h.log, "update report status", err)
		return
	}

	h.log.WithFields(logrus.Fields{"user": user.ID, "report": id, "status": req.Status}).Info("report status updated")
	w.WriteHeader(http.StatusNoContent)
}

func (h *SupervisorHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	orch, _, ok := orchestratorFor(w, r, h.orch)
	if !ok {
		return
	}
	d, err := orch.Dashboard(r.Context())
	if err != nil {
		writeServiceError(w, h.log, "compute dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ExportCSV streams every report as CSV.
func (h *SupervisorHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "csv", "text/csv; charset=utf-8", export.WriteCSV)
}

// ExportXLSX sends every report as a spreadsheet.
func (h *SupervisorHandler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", export.WriteXLSX)
}

func (h *SupervisorHandler) export(w http.ResponseWriter, r *http.Request, ext, contentType string, write func(io.Writer, []models.Report) error) {
	orch, user, ok := orchestratorFor(w, r, h.orch)
	if !ok {
		return
	}

	reports, err := orch.ExportReports(r.Context())
	if err != nil {
		writeServiceError(w, h.log, "export reports", err)
		return
	}

	var buf bytes.Buffer
	if err := write(&buf, reports); err != nil {
		writeServiceError(w, h.log, "export reports", err)
		return
	}

	filename := export.Filename(time.Now(), ext)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())

	h.log.WithFields(logrus.Fields{"user": user.ID, "format": ext, "count": len(reports)}).Info("📊 reports exported")
}
