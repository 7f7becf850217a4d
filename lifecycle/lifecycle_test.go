package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seroest/models"
)

type fakeStore struct {
	reports []models.Report
	updates int
}

func (f *fakeStore) ListReports(context.Context) ([]models.Report, error) { return f.reports, nil }

func (f *fakeStore) UpdateReportStatus(_ context.Context, id string, status models.ReportStatus) error {
	for i := range f.reports {
		if f.reports[i].ID == id {
			f.reports[i].Status = status
			f.updates++
			return nil
		}
	}
	return models.ErrNotFound
}

func newStore() *fakeStore {
	return &fakeStore{reports: []models.Report{{ID: "r1", Status: models.ReportSentToOffice}}}
}

func TestNextAndLabel(t *testing.T) {
	next, ok := Next(models.ReportRecorded)
	require.True(t, ok)
	assert.Equal(t, models.ReportPrinted, next)

	_, ok = Next(models.ReportReceivedByOffice)
	assert.False(t, ok)
	_, ok = Next("inconnu")
	assert.False(t, ok)

	assert.Equal(t, "Envoyée au BCS", Label(models.ReportSentToOffice))
	assert.Equal(t, "brouillon", Label("brouillon"))
}

func TestPermissiveAllowsRegression(t *testing.T) {
	store := newStore()
	l := New(store, "")
	assert.Equal(t, Permissive, l.Policy())

	require.NoError(t, l.UpdateStatus(context.Background(), "r1", models.ReportRecorded))
	assert.Equal(t, models.ReportRecorded, store.reports[0].Status)
}

func TestUnknownStatusRejected(t *testing.T) {
	store := newStore()
	err := New(store, Permissive).UpdateStatus(context.Background(), "r1", "archivee")
	assert.True(t, models.IsValidation(err))
	assert.Zero(t, store.updates)
}

func TestMissingReport(t *testing.T) {
	for _, p := range []Policy{Permissive, Forward} {
		err := New(newStore(), p).UpdateStatus(context.Background(), "nope", models.ReportPrinted)
		assert.ErrorIs(t, err, models.ErrNotFound, string(p))
	}
}

func TestForwardPolicy(t *testing.T) {
	store := newStore()
	l := New(store, Forward)
	ctx := context.Background()

	err := l.UpdateStatus(ctx, "r1", models.ReportPrinted)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.Zero(t, store.updates)

	require.NoError(t, l.UpdateStatus(ctx, "r1", models.ReportSentToOffice))
	require.NoError(t, l.UpdateStatus(ctx, "r1", models.ReportReceivedByOffice))
	assert.Equal(t, models.ReportReceivedByOffice, store.reports[0].Status)
}
