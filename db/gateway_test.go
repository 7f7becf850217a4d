package db

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seroest/lifecycle"
	"seroest/logging"
	"seroest/metrics"
	"seroest/models"
)

var errDown = errors.New("connection refused")

// flakyBackend is a remote stand-in that can be switched off.
type flakyBackend struct {
	*LocalStore
	down bool
}

func (f *flakyBackend) Name() string { return "remote" }

func (f *flakyBackend) ListProjects(ctx context.Context) ([]models.Project, error) {
	if f.down {
		return nil, errDown
	}
	return f.LocalStore.ListProjects(ctx)
}

func (f *flakyBackend) ListUsers(ctx context.Context) ([]models.User, error) {
	if f.down {
		return nil, errDown
	}
	return f.LocalStore.ListUsers(ctx)
}

func (f *flakyBackend) ListReports(ctx context.Context) ([]models.Report, error) {
	if f.down {
		return nil, errDown
	}
	return f.LocalStore.ListReports(ctx)
}

func (f *flakyBackend) InsertProject(ctx context.Context, p models.Project) error {
	if f.down {
		return errDown
	}
	return f.LocalStore.InsertProject(ctx, p)
}

func (f *flakyBackend) ReplacePhases(ctx context.Context, phases []models.Phase) error {
	if f.down {
		return errDown
	}
	return f.LocalStore.ReplacePhases(ctx, phases)
}

func (f *flakyBackend) InsertActionLog(ctx context.Context, l models.ActionLog) error {
	if f.down {
		return errDown
	}
	return f.LocalStore.InsertActionLog(ctx, l)
}

func newTestGateway(t *testing.T, withRemote bool) (*Gateway, *flakyBackend) {
	t.Helper()
	local, _ := openTestLocal(t)
	if !withRemote {
		return NewGateway(nil, local, logging.Discard()), nil
	}
	remoteStore, _ := openTestLocal(t)
	remote := &flakyBackend{LocalStore: remoteStore}
	return NewGateway(remote, local, logging.Discard()), remote
}

func newProject(name string) models.Project {
	return models.Project{
		Name:      name,
		StartDate: "2025-01-10",
		Links: models.ProjectLinks{
			Plans: []models.ProjectFile{{Name: "Plan", Link: "https://drive/plan"}},
		},
	}
}

func TestGatewayLocalOnly(t *testing.T) {
	g, _ := newTestGateway(t, false)
	ctx := context.Background()
	assert.False(t, g.Remote())
	assert.Equal(t, "local", g.Backend().Name())

	p, err := g.CreateProject(ctx, newProject("Viaduc"))
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())
	assert.Equal(t, models.ProjectActive, p.Status)
	require.Len(t, p.Links.Plans, 1)
	assert.Equal(t, p.ID, p.Links.Plans[0].ProjectID)

	projects, err := g.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, p.ID, projects[0].ID)
}

func TestGatewayValidatesBeforeWriting(t *testing.T) {
	g, _ := newTestGateway(t, false)
	ctx := context.Background()

	_, err := g.CreateProject(ctx, models.Project{Name: "sans date"})
	assert.True(t, models.IsValidation(err))

	_, err = g.CreateReport(ctx, models.Report{UserName: "Bachir"})
	assert.True(t, models.IsValidation(err))

	err = g.UpdateReportStatus(ctx, "r1", "archivee")
	assert.True(t, models.IsValidation(err))

	projects, err := g.ListProjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestGatewayReplaceKeepsCallerIDs(t *testing.T) {
	g, _ := newTestGateway(t, false)
	ctx := context.Background()

	saved, err := g.ReplacePhases(ctx, []models.Phase{
		{ID: "phase-x", Name: "Bétonnage"},
		{Name: "Décoffrage"},
	})
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, "phase-x", saved[0].ID)
	assert.NotEmpty(t, saved[1].ID)
	assert.Equal(t, models.PhaseStandard, saved[1].Kind)

	_, err = g.ReplacePhases(ctx, []models.Phase{{Name: " "}})
	assert.True(t, models.IsValidation(err))

	phases, err := g.ListPhases(ctx)
	require.NoError(t, err)
	assert.Len(t, phases, 2)
}

func TestGatewayReadFallsBackToLocal(t *testing.T) {
	g, remote := newTestGateway(t, true)
	ctx := context.Background()

	require.NoError(t, g.local.InsertProject(ctx, models.Project{ID: "local-1", Name: "Copie locale", StartDate: "2025-01-01", Status: models.ProjectActive}))

	before := testutil.ToFloat64(metrics.FallbackReads.WithLabelValues("projects"))
	remote.down = true

	projects, err := g.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "local-1", projects[0].ID)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.FallbackReads.WithLabelValues("projects")))
}

func TestGatewayMutationsDoNotFallBack(t *testing.T) {
	g, remote := newTestGateway(t, true)
	ctx := context.Background()
	remote.down = true

	_, err := g.CreateProject(ctx, newProject("Viaduc"))
	require.ErrorIs(t, err, errDown)

	_, err = g.ReplacePhases(ctx, DefaultPhases())
	require.ErrorIs(t, err, errDown)

	projects, err := g.local.ListProjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestGatewayActionLogFallsBack(t *testing.T) {
	g, remote := newTestGateway(t, true)
	ctx := context.Background()
	remote.down = true

	entry, err := g.CreateActionLog(ctx, models.ActionLog{UserID: "u1", UserName: "Karim", Action: "Ajout projet"})
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.Timestamp.IsZero())

	logs, err := g.local.ListActionLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, entry.ID, logs[0].ID)
}

func TestGatewayMissingIDIsNotFound(t *testing.T) {
	g, _ := newTestGateway(t, false)
	ctx := context.Background()

	name := "x"
	assert.ErrorIs(t, g.UpdateUser(ctx, "nope", models.UserPatch{Name: &name}), models.ErrNotFound)
	assert.ErrorIs(t, g.DeleteProject(ctx, "nope"), models.ErrNotFound)
	assert.ErrorIs(t, g.UpdateReportStatus(ctx, "nope", models.ReportPrinted), models.ErrNotFound)
}

func TestGatewayReportSurvivesRestart(t *testing.T) {
	local, path := openTestLocal(t)
	ctx := context.Background()
	g := NewGateway(nil, local, logging.Discard())

	r, err := g.CreateReport(ctx, models.Report{
		UserID:          "u1",
		UserName:        "Bachir",
		Date:            "2025-03-14",
		ProjectName:     "Viaduc",
		PhaseName:       "Fond feuille de la semelle",
		StructureType:   models.StructureAbutment,
		StructureNumber: "C2",
		Tasks:           []string{"Implantation"},
		StationName:     "Station 2",
	})
	require.NoError(t, err)
	require.NoError(t, g.Close())

	reopened, err := OpenLocal(path, logging.Discard())
	require.NoError(t, err)
	g = NewGateway(nil, reopened, logging.Discard())
	defer g.Close()

	reports, err := g.ListReports(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, r.ID, reports[0].ID)
	assert.Equal(t, []string{"Implantation"}, reports[0].Tasks)
	assert.Equal(t, models.ReportRecorded, reports[0].Status)
}

func TestAuthorityNeverServesLocalCopy(t *testing.T) {
	g, remote := newTestGateway(t, true)
	ctx := context.Background()
	require.NoError(t, remote.InsertUser(ctx, models.User{ID: "remote-user-1", Name: "Nadia", Password: "hash", Role: models.RoleSupervisor, Active: true}))

	users, err := g.Authority().ListUsers(ctx)
	require.NoError(t, err)
	assert.True(t, lo.ContainsBy(users, func(u models.User) bool { return u.ID == "remote-user-1" }))

	remote.down = true

	users, err = g.ListUsers(ctx)
	require.NoError(t, err, "plain reads still fall back")
	assert.False(t, lo.ContainsBy(users, func(u models.User) bool { return u.ID == "remote-user-1" }))

	_, err = g.Authority().ListUsers(ctx)
	assert.ErrorIs(t, err, models.ErrBackendUnavailable)
	assert.ErrorIs(t, err, errDown)
	_, err = g.Authority().ListReports(ctx)
	assert.ErrorIs(t, err, models.ErrBackendUnavailable)

	err = lifecycle.New(g.Authority(), lifecycle.Forward).UpdateStatus(ctx, "r1", models.ReportPrinted)
	assert.ErrorIs(t, err, models.ErrBackendUnavailable)
	assert.NotErrorIs(t, err, models.ErrNotFound)
}
