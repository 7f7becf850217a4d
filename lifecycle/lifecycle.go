// Package lifecycle owns the report status workflow.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"seroest/models"
)

// Order is the nominal progression of a report.
var Order = []models.ReportStatus{
	models.ReportRecorded,
	models.ReportPrinted,
	models.ReportSentToOffice,
	models.ReportReceivedByOffice,
}

var labels = map[models.ReportStatus]string{
	models.ReportRecorded:         "Enregistrée",
	models.ReportPrinted:          "Imprimée",
	models.ReportSentToOffice:     "Envoyée au BCS",
	models.ReportReceivedByOffice: "Reçue par le BCS",
}

// Label is the French display name of s, or s itself when unknown.
func Label(s models.ReportStatus) string {
	if l, ok := labels[s]; ok {
		return l
	}
	return string(s)
}

// Next returns the status after s in the nominal order. ok is false for the
// last status and for unknown values.
func Next(s models.ReportStatus) (next models.ReportStatus, ok bool) {
	i := lo.IndexOf(Order, s)
	if i < 0 || i == len(Order)-1 {
		return "", false
	}
	return Order[i+1], true
}

// Policy decides which status changes are allowed.
type Policy string

const (
	// Permissive allows any status to be set whatever the current one.
	Permissive Policy = "permissive"
	// Forward rejects moves to an earlier status.
	Forward Policy = "forward"
)

func (p Policy) Valid() bool { return p == Permissive || p == Forward }

// Store is the persistence the lifecycle needs.
type Store interface {
	ListReports(ctx context.Context) ([]models.Report, error)
	UpdateReportStatus(ctx context.Context, id string, status models.ReportStatus) error
}

// Lifecycle applies status changes under a policy. It writes no audit entry.
type Lifecycle struct {
	store  Store
	policy Policy
}

// New returns a Lifecycle; an empty policy means Permissive.
func New(store Store, policy Policy) *Lifecycle {
	if policy == "" {
		policy = Permissive
	}
	return &Lifecycle{store: store, policy: policy}
}

func (l *Lifecycle) Policy() Policy { return l.policy }

// UpdateStatus sets the status of report id.
func (l *Lifecycle) UpdateStatus(ctx context.Context, id string, status models.ReportStatus) error {
	if !status.Valid() {
		return &models.ValidationError{Entity: "report", Field: "statut", Message: fmt.Sprintf("unknown status %q", status)}
	}

	if l.policy == Forward {
		reports, err := l.store.ListReports(ctx)
		if err != nil {
			return fmt.Errorf("load report %s: %w", id, err)
		}
		current, ok := lo.Find(reports, func(r models.Report) bool { return r.ID == id })
		if !ok {
			return fmt.Errorf("report %s: %w", id, models.ErrNotFound)
		}
		if lo.IndexOf(Order, status) < lo.IndexOf(Order, current.Status) {
			return fmt.Errorf("%s -> %s: %w", current.Status, status, models.ErrInvalidTransition)
		}
	}

	return l.store.UpdateReportStatus(ctx, id, status)
}
