package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seroest/auth"
	"seroest/db"
	"seroest/lifecycle"
	"seroest/logging"
	"seroest/models"
)

type testEnv struct {
	gw   *db.Gateway
	orch *Orchestrator
}

func newTestEnv(t *testing.T, policy lifecycle.Policy) *testEnv {
	t.Helper()
	log := logging.Discard()
	local, err := db.OpenLocal(filepath.Join(t.TempDir(), "sero-est.db"), log)
	require.NoError(t, err)
	gw := db.NewGateway(nil, local, log)
	t.Cleanup(func() { gw.Close() })

	orch := New(gw, auth.NewAuthenticator(gw, log), lifecycle.New(gw.Authority(), policy), auth.NewSession(local), log)
	return &testEnv{gw: gw, orch: orch}
}

// as returns a view logged in as name/password.
func (e *testEnv) as(t *testing.T, name, password string) *Orchestrator {
	t.Helper()
	view := e.orch.WithSession(auth.NewSession(nil))
	_, err := view.Login(context.Background(), name, password)
	require.NoError(t, err)
	return view
}

func (e *testEnv) logCount(t *testing.T) int {
	t.Helper()
	logs, err := e.gw.ListActionLogs(context.Background())
	require.NoError(t, err)
	return len(logs)
}

func (e *testEnv) lastLog(t *testing.T) models.ActionLog {
	t.Helper()
	logs, err := e.gw.ListActionLogs(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	return logs[0]
}

func sampleProject(name string) models.Project {
	return models.Project{Name: name, StartDate: "2025-01-10"}
}

func sampleReport(projectID string) models.Report {
	return models.Report{
		Date:            "2025-03-14",
		ProjectID:       projectID,
		PhaseID:         "phase-5",
		StructureType:   models.StructurePier,
		StructureNumber: "P3",
		Tasks:           []string{"Implantation"},
		StationID:       "station-1",
	}
}

func TestLoginPersistsSessionAndRecords(t *testing.T) {
	env := newTestEnv(t, lifecycle.Permissive)
	ctx := context.Background()

	u, err := env.orch.Login(ctx, " KARIM ", "karim2025")
	require.NoError(t, err)
	assert.Equal(t, models.RoleSupervisor, u.Role)
	assert.Empty(t, u.Password)

	entry := env.lastLog(t)
	assert.Equal(t, ActionLogin, entry.Action)
	assert.Equal(t, "Connexion réussie avec le rôle responsable", entry.Details)

	restored := auth.NewSession(env.gw.Local())
	require.NoError(t, restored.Restore(ctx))
	current, ok := restored.Current()
	require.True(t, ok)
	assert.Equal(t, u.ID, current.ID)

	require.NoError(t, env.orch.Logout(ctx))
	assert.Equal(t, ActionLogout, env.lastLog(t).Action)
	_, ok = env.orch.CurrentUser()
	assert.False(t, ok)

	_, err = env.orch.Login(ctx, "karim", "mauvais-mdp")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestOneLogPerSuccessfulMutation(t *testing.T) {
	env := newTestEnv(t, lifecycle.Permissive)
	ctx := context.Background()
	admin := env.as(t, "akram", "akram2025")

	before := env.logCount(t)
	p, err := admin.CreateProject(ctx, sampleProject("Viaduc"))
	require.NoError(t, err)
	assert.Equal(t, before+1, env.logCount(t))
	assert.Equal(t, "Nouveau projet créé: Viaduc", env.lastLog(t).Details)

	name := "Viaduc Nord"
	require.NoError(t, admin.UpdateProject(ctx, p.ID, models.ProjectPatch{Name: &name}))
	assert.Equal(t, "Projet modifié: Viaduc Nord", env.lastLog(t).Details)

	_, err = admin.UpdatePhases(ctx, db.DefaultPhases())
	require.NoError(t, err)
	assert.Equal(t, ActionUpdatePhases, env.lastLog(t).Action)

	before = env.logCount(t)
	_, err = admin.CreateProject(ctx, models.Project{Name: "sans date"})
	assert.True(t, models.IsValidation(err))
	assert.ErrorIs(t, admin.DeleteProject(ctx, "nope"), models.ErrNotFound)
	assert.Equal(t, before, env.logCount(t), "failed mutations are not logged")

	require.NoError(t, admin.DeleteProject(ctx, p.ID))
	assert.Equal(t, "Projet supprimé: Viaduc Nord", env.lastLog(t).Details)
}

func TestUserManagement(t *testing.T) {
	env := newTestEnv(t, lifecycle.Permissive)
	ctx := context.Background()
	admin := env.as(t, "akram", "akram2025")

	u, err := admin.CreateUser(ctx, models.User{Name: "Nadia", Password: "nadia2025", Role: models.RoleTopographer, Active: true})
	require.NoError(t, err)
	assert.Empty(t, u.Password)
	assert.Equal(t, "Nouvel utilisateur créé: Nadia (topographe)", env.lastLog(t).Details)

	stored, err := env.gw.ListUsers(ctx)
	require.NoError(t, err)
	for _, s := range stored {
		if s.ID == u.ID {
			assert.True(t, auth.IsHash(s.Password))
		}
	}

	nadia := env.as(t, "nadia", "nadia2025")
	_, ok := nadia.CurrentUser()
	assert.True(t, ok)

	inactive := false
	require.NoError(t, admin.UpdateUser(ctx, u.ID, models.UserPatch{Active: &inactive}))
	assert.Equal(t, "Utilisateur modifié: Nadia", env.lastLog(t).Details)
	_, err = env.orch.WithSession(auth.NewSession(nil)).Login(ctx, "nadia", "nadia2025")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	users, err := admin.Users(ctx)
	require.NoError(t, err)
	for _, u := range users {
		assert.Empty(t, u.Password)
	}

	require.NoError(t, admin.DeleteUser(ctx, u.ID))
	assert.Equal(t, "Utilisateur supprimé: Nadia", env.lastLog(t).Details)
}

func TestRoleGate(t *testing.T) {
	env := newTestEnv(t, lifecycle.Permissive)
	ctx := context.Background()

	_, err := env.orch.Projects(ctx)
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)

	karim := env.as(t, "karim", "karim2025")
	before := env.logCount(t)
	_, err = karim.CreateProject(ctx, sampleProject("Viaduc"))
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = karim.ActionLogs(ctx)
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = karim.SubmitReport(ctx, sampleReport(""))
	assert.ErrorIs(t, err, models.ErrForbidden)
	assert.Equal(t, before, env.logCount(t))

	_, err = karim.Users(ctx)
	assert.NoError(t, err)
	_, err = karim.Dashboard(ctx)
	assert.NoError(t, err)

	topo := env.as(t, "samir", "samir123")
	_, err = topo.ExportReports(ctx)
	assert.ErrorIs(t, err, models.ErrForbidden)
	assert.ErrorIs(t, topo.UpdateReportStatus(ctx, "r1", models.ReportPrinted), models.ErrForbidden)
	_, err = topo.Phases(ctx)
	assert.NoError(t, err)
}

func TestReportsFlow(t *testing.T) {
	env := newTestEnv(t, lifecycle.Permissive)
	ctx := context.Background()

	admin := env.as(t, "akram", "akram2025")
	p, err := admin.CreateProject(ctx, sampleProject("Pont Oued Sebou"))
	require.NoError(t, err)

	bachir := env.as(t, "bachir", "bachir123")
	r, err := bachir.SubmitReport(ctx, sampleReport(p.ID))
	require.NoError(t, err)
	assert.Equal(t, "Bachir", r.UserName)
	assert.Equal(t, "Pont Oued Sebou", r.ProjectName)
	assert.Equal(t, "Coffrage du fût", r.PhaseName)
	assert.Equal(t, "Station 1", r.StationName)
	assert.Equal(t, models.ReportRecorded, r.Status)
	assert.Equal(t, "Rapport créé pour le projet Pont Oued Sebou", env.lastLog(t).Details)

	samir := env.as(t, "samir", "samir123")
	_, err = samir.SubmitReport(ctx, sampleReport(p.ID))
	require.NoError(t, err)

	own, err := bachir.Reports(ctx)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, r.ID, own[0].ID)

	karim := env.as(t, "karim", "karim2025")
	all, err := karim.Reports(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, karim.UpdateReportStatus(ctx, r.ID, models.ReportPrinted))
	assert.Equal(t, `Statut changé vers "imprimee" pour le rapport Pont Oued Sebou`, env.lastLog(t).Details)

	before := env.logCount(t)
	assert.ErrorIs(t, karim.UpdateReportStatus(ctx, "nope", models.ReportPrinted), models.ErrNotFound)
	assert.True(t, models.IsValidation(karim.UpdateReportStatus(ctx, r.ID, "archivee")))
	assert.Equal(t, before, env.logCount(t))

	// Permissive: a report may go back to an earlier status.
	require.NoError(t, karim.UpdateReportStatus(ctx, r.ID, models.ReportRecorded))
}

func TestForwardPolicyRejectsRegression(t *testing.T) {
	env := newTestEnv(t, lifecycle.Forward)
	ctx := context.Background()

	admin := env.as(t, "akram", "akram2025")
	p, err := admin.CreateProject(ctx, sampleProject("Viaduc"))
	require.NoError(t, err)
	r, err := env.as(t, "bachir", "bachir123").SubmitReport(ctx, sampleReport(p.ID))
	require.NoError(t, err)

	require.NoError(t, admin.UpdateReportStatus(ctx, r.ID, models.ReportSentToOffice))
	assert.ErrorIs(t, admin.UpdateReportStatus(ctx, r.ID, models.ReportPrinted), models.ErrInvalidTransition)
}

func TestSummarize(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	reports := []models.Report{
		{ID: "1", UserID: "b", UserName: "Bachir", ProjectID: "p1", ProjectName: "Viaduc", Date: "2025-03-14", Status: models.ReportRecorded, CreatedAt: now.Add(-3 * time.Hour)},
		{ID: "2", UserID: "b", UserName: "Bachir", ProjectID: "p2", ProjectName: "Pont", Date: "2025-03-13", Status: models.ReportPrinted, CreatedAt: now.Add(-1 * time.Hour)},
		{ID: "3", UserID: "s", UserName: "Samir", ProjectID: "p1", ProjectName: "Viaduc", Date: "2025-03-14", Status: models.ReportRecorded, CreatedAt: now.Add(-2 * time.Hour)},
	}
	projects := []models.Project{{Status: models.ProjectActive}, {Status: models.ProjectSuspended}}
	users := []models.User{
		{Role: models.RoleTopographer, Active: true},
		{Role: models.RoleTopographer, Active: false},
		{Role: models.RoleSupervisor, Active: true},
	}

	d := summarize(reports, projects, users, now)
	assert.Equal(t, 3, d.TotalReports)
	assert.Equal(t, 2, d.ReportsToday)
	assert.Equal(t, 1, d.ActiveProjects)
	assert.Equal(t, 1, d.ActiveTopographers)
	assert.Equal(t, 2, d.ByStatus[models.ReportRecorded])
	require.Len(t, d.ByProject, 2)
	assert.Equal(t, Count{Key: "p1", Label: "Viaduc", Count: 2}, d.ByProject[0])
	assert.Equal(t, "Bachir", d.ByTopographer[0].Label)
	assert.Equal(t, []string{"2", "3", "1"}, []string{d.Recent[0].ID, d.Recent[1].ID, d.Recent[2].ID})
}

func TestEveryMutationLogsOnceForItsActor(t *testing.T) {
	env := newTestEnv(t, lifecycle.Permissive)
	ctx := context.Background()
	admin := env.as(t, "akram", "akram2025")
	karim := env.as(t, "karim", "karim2025")
	bachir := env.as(t, "bachir", "bachir123")

	var (
		project  models.Project
		nadia    models.User
		report   models.Report
		renamed  = "Viaduc Nord"
		inactive = false
	)
	steps := []struct {
		name  string
		actor *Orchestrator
		run   func() error
	}{
		{"create project", admin, func() (err error) {
			project, err = admin.CreateProject(ctx, sampleProject("Viaduc"))
			return err
		}},
		{"update project", admin, func() error {
			return admin.UpdateProject(ctx, project.ID, models.ProjectPatch{Name: &renamed})
		}},
		{"update phases", admin, func() error {
			_, err := admin.UpdatePhases(ctx, db.DefaultPhases())
			return err
		}},
		{"update stations", admin, func() error {
			_, err := admin.UpdateStations(ctx, db.DefaultStations())
			return err
		}},
		{"create user", admin, func() (err error) {
			nadia, err = admin.CreateUser(ctx, models.User{Name: "Nadia", Password: "nadia2025", Role: models.RoleTopographer, Active: true})
			return err
		}},
		{"update user", admin, func() error {
			return admin.UpdateUser(ctx, nadia.ID, models.UserPatch{Active: &inactive})
		}},
		{"delete user", admin, func() error { return admin.DeleteUser(ctx, nadia.ID) }},
		{"submit report", bachir, func() (err error) {
			report, err = bachir.SubmitReport(ctx, sampleReport(project.ID))
			return err
		}},
		{"update report status", karim, func() error {
			return karim.UpdateReportStatus(ctx, report.ID, models.ReportPrinted)
		}},
		{"delete project", admin, func() error { return admin.DeleteProject(ctx, project.ID) }},
		{"logout", karim, func() error { return karim.Logout(ctx) }},
	}

	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			actor, ok := step.actor.CurrentUser()
			require.True(t, ok)
			before := env.logCount(t)

			require.NoError(t, step.run())

			assert.Equal(t, before+1, env.logCount(t))
			entry := env.lastLog(t)
			assert.Equal(t, actor.ID, entry.UserID)
			assert.Equal(t, actor.Name, entry.UserName)
		})
	}

	t.Run("login", func(t *testing.T) {
		before := env.logCount(t)
		u, err := env.orch.WithSession(auth.NewSession(nil)).Login(ctx, "samir", "samir123")
		require.NoError(t, err)
		assert.Equal(t, before+1, env.logCount(t))
		entry := env.lastLog(t)
		assert.Equal(t, u.ID, entry.UserID)
		assert.Equal(t, u.Name, entry.UserName)
	})
}

func TestWeakPasswordsAreRejected(t *testing.T) {
	env := newTestEnv(t, lifecycle.Permissive)
	ctx := context.Background()
	admin := env.as(t, "akram", "akram2025")
	before := env.logCount(t)

	for _, pw := range []string{"abc", "12345678"} {
		_, err := admin.CreateUser(ctx, models.User{Name: "Nadia", Password: pw, Role: models.RoleTopographer, Active: true})
		var verr *models.ValidationError
		require.ErrorAs(t, err, &verr, pw)
		assert.Equal(t, "motDePasse", verr.Field)
	}

	short := "nadia"
	assert.True(t, models.IsValidation(admin.UpdateUser(ctx, "demo-resp-karim", models.UserPatch{Password: &short})))
	assert.Equal(t, before, env.logCount(t))
}
