// Package app coordinates the session, the role gate, the persistence
// gateway and the audit trail.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"seroest/auth"
	"seroest/db"
	"seroest/lifecycle"
	"seroest/models"
)

// Audit actions, as shown in the activity log.
const (
	ActionLogin          = "Connexion utilisateur"
	ActionLogout         = "Déconnexion utilisateur"
	ActionCreateReport   = "Création de rapport"
	ActionReportStatus   = "Modification statut rapport"
	ActionAddUser        = "Ajout utilisateur"
	ActionUpdateUser     = "Modification utilisateur"
	ActionDeleteUser     = "Suppression utilisateur"
	ActionAddProject     = "Ajout projet"
	ActionUpdateProject  = "Modification projet"
	ActionDeleteProject  = "Suppression projet"
	ActionUpdateStations = "Modification stations"
	ActionUpdatePhases   = "Modification phases"
)

const unknownName = "inconnu"

// collections is the in-memory copy of every entity, shared by all session views.
type collections struct {
	mu       sync.RWMutex
	users    []models.User
	projects []models.Project
	phases   []models.Phase
	stations []models.Station
	reports  []models.Report
	logs     []models.ActionLog
}

// Orchestrator runs every user-facing operation: it checks the session user's
// role, calls the gateway, appends one audit entry per successful mutation and
// refreshes the affected collections.
type Orchestrator struct {
	data      *collections
	gw        *db.Gateway
	authn     *auth.Authenticator
	lifecycle *lifecycle.Lifecycle
	session   *auth.Session
	log       logrus.FieldLogger
}

func New(gw *db.Gateway, authn *auth.Authenticator, lc *lifecycle.Lifecycle, session *auth.Session, log logrus.FieldLogger) *Orchestrator {
	return &Orchestrator{
		data:      &collections{},
		gw:        gw,
		authn:     authn,
		lifecycle: lc,
		session:   session,
		log:       log.WithField("component", "orchestrator"),
	}
}

// WithSession returns a view of o acting for the user held by s. Views share
// the cached collections.
func (o *Orchestrator) WithSession(s *auth.Session) *Orchestrator {
	view := *o
	view.session = s
	return &view
}

// CurrentUser returns the session user.
func (o *Orchestrator) CurrentUser() (models.User, bool) {
	return o.session.Current()
}

// require returns the session user when it holds p.
func (o *Orchestrator) require(p auth.Permission) (models.User, error) {
	u, ok := o.session.Current()
	if !ok {
		return models.User{}, models.ErrNotAuthenticated
	}
	if !auth.Can(u, p) {
		o.log.WithFields(logrus.Fields{"user": u.ID, "permission": p}).Warn("permission denied")
		return models.User{}, models.ErrForbidden
	}
	return u, nil
}

// record appends an audit entry for actor. Failures are logged, never returned.
func (o *Orchestrator) record(ctx context.Context, actor models.User, action, details string) {
	entry := models.ActionLog{UserID: actor.ID, UserName: actor.Name, Action: action, Details: details}
	if _, err := o.gw.CreateActionLog(ctx, entry); err != nil {
		o.log.WithError(err).WithField("action", action).Warn("audit entry lost")
		return
	}
	o.refreshLogs(ctx)
}

// --- session ---

// Login authenticates, stores the session and loads the collections.
func (o *Orchestrator) Login(ctx context.Context, name, password string) (models.User, error) {
	u, err := o.authn.Authenticate(ctx, name, password)
	if err != nil {
		return models.User{}, err
	}
	if err := o.session.Set(ctx, u); err != nil {
		return models.User{}, err
	}
	o.record(ctx, u, ActionLogin, fmt.Sprintf("Connexion réussie avec le rôle %s", u.Role))
	if err := o.Refresh(ctx); err != nil {
		o.log.WithError(err).Warn("initial refresh failed")
	}
	return u, nil
}

// Logout records the logout and clears the session.
func (o *Orchestrator) Logout(ctx context.Context) error {
	u, ok := o.session.Current()
	if !ok {
		return models.ErrNotAuthenticated
	}
	o.record(ctx, u, ActionLogout, "Déconnexion de l'application")
	return o.session.Clear(ctx)
}

// --- refresh ---

// Refresh reloads every collection.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	users, err := o.gw.ListUsers(ctx)
	if err != nil {
		return err
	}
	projects, err := o.gw.ListProjects(ctx)
	if err != nil {
		return err
	}
	phases, err := o.gw.ListPhases(ctx)
	if err != nil {
		return err
	}
	stations, err := o.gw.ListStations(ctx)
	if err != nil {
		return err
	}
	reports, err := o.gw.ListReports(ctx)
	if err != nil {
		return err
	}
	logs, err := o.gw.ListActionLogs(ctx)
	if err != nil {
		return err
	}

	o.data.mu.Lock()
	defer o.data.mu.Unlock()
	o.data.users, o.data.projects, o.data.phases = users, projects, phases
	o.data.stations, o.data.reports, o.data.logs = stations, reports, logs
	return nil
}

func (o *Orchestrator) refreshUsers(ctx context.Context) ([]models.User, error) {
	users, err := o.gw.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	o.data.mu.Lock()
	o.data.users = users
	o.data.mu.Unlock()
	return users, nil
}

func (o *Orchestrator) refreshProjects(ctx context.Context) ([]models.Project, error) {
	projects, err := o.gw.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	o.data.mu.Lock()
	o.data.projects = projects
	o.data.mu.Unlock()
	return projects, nil
}

func (o *Orchestrator) refreshPhases(ctx context.Context) ([]models.Phase, error) {
	phases, err := o.gw.ListPhases(ctx)
	if err != nil {
		return nil, err
	}
	o.data.mu.Lock()
	o.data.phases = phases
	o.data.mu.Unlock()
	return phases, nil
}

func (o *Orchestrator) refreshStations(ctx context.Context) ([]models.Station, error) {
	stations, err := o.gw.ListStations(ctx)
	if err != nil {
		return nil, err
	}
	o.data.mu.Lock()
	o.data.stations = stations
	o.data.mu.Unlock()
	return stations, nil
}

func (o *Orchestrator) refreshReports(ctx context.Context) ([]models.Report, error) {
	reports, err := o.gw.ListReports(ctx)
	if err != nil {
		return nil, err
	}
	o.data.mu.Lock()
	o.data.reports = reports
	o.data.mu.Unlock()
	return reports, nil
}

func (o *Orchestrator) refreshLogs(ctx context.Context) {
	logs, err := o.gw.ListActionLogs(ctx)
	if err != nil {
		o.log.WithError(err).Warn("reload action logs failed")
		return
	}
	o.data.mu.Lock()
	o.data.logs = logs
	o.data.mu.Unlock()
}

// reloaded logs a failed reload after a mutation that already succeeded.
func (o *Orchestrator) reloaded(what string, err error) {
	if err != nil {
		o.log.WithError(err).WithField("entity", what).Warn("reload after write failed")
	}
}

// --- users ---

// Users lists accounts without password hashes.
func (o *Orchestrator) Users(ctx context.Context) ([]models.User, error) {
	if _, err := o.require(auth.PermSupervise); err != nil {
		return nil, err
	}
	users, err := o.refreshUsers(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(users, func(u models.User, _ int) models.User { return u.Public() }), nil
}

func (o *Orchestrator) userName(ctx context.Context, id string) string {
	o.data.mu.RLock()
	u, ok := lo.Find(o.data.users, func(u models.User) bool { return u.ID == id })
	o.data.mu.RUnlock()
	if ok {
		return u.Name
	}
	users, err := o.refreshUsers(ctx)
	if err != nil {
		return unknownName
	}
	if u, ok := lo.Find(users, func(u models.User) bool { return u.ID == id }); ok {
		return u.Name
	}
	return unknownName
}

// CreateUser adds an account; the password is hashed before it is stored.
func (o *Orchestrator) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	actor, err := o.require(auth.PermManage)
	if err != nil {
		return models.User{}, err
	}
	if err := u.Validate(); err != nil {
		return models.User{}, err
	}
	hash, err := auth.HashPassword(u.Password)
	if err != nil {
		return models.User{}, &models.ValidationError{Entity: "user", Field: "motDePasse", Message: err.Error()}
	}
	u.Password = hash

	created, err := o.gw.CreateUser(ctx, u)
	if err != nil {
		return models.User{}, err
	}
	o.record(ctx, actor, ActionAddUser, fmt.Sprintf("Nouvel utilisateur créé: %s (%s)", created.Name, created.Role))
	_, err = o.refreshUsers(ctx)
	o.reloaded("users", err)
	return created.Public(), nil
}

// UpdateUser applies patch to account id.
func (o *Orchestrator) UpdateUser(ctx context.Context, id string, patch models.UserPatch) error {
	actor, err := o.require(auth.PermManage)
	if err != nil {
		return err
	}
	if err := patch.Validate(); err != nil {
		return err
	}
	if patch.Password != nil {
		hash, err := auth.HashPassword(*patch.Password)
		if err != nil {
			return &models.ValidationError{Entity: "user", Field: "motDePasse", Message: err.Error()}
		}
		patch.Password = &hash
	}

	name := o.userName(ctx, id)
	if err := o.gw.UpdateUser(ctx, id, patch); err != nil {
		return err
	}
	if patch.Name != nil {
		name = *patch.Name
	}
	o.record(ctx, actor, ActionUpdateUser, fmt.Sprintf("Utilisateur modifié: %s", name))
	_, err = o.refreshUsers(ctx)
	o.reloaded("users", err)
	return nil
}

func (o *Orchestrator) DeleteUser(ctx context.Context, id string) error {
	actor, err := o.require(auth.PermManage)
	if err != nil {
		return err
	}
	name := o.userName(ctx, id)
	if err := o.gw.DeleteUser(ctx, id); err != nil {
		return err
	}
	o.record(ctx, actor, ActionDeleteUser, fmt.Sprintf("Utilisateur supprimé: %s", name))
	_, err = o.refreshUsers(ctx)
	o.reloaded("users", err)
	return nil
}

// --- projects ---

func (o *Orchestrator) Projects(ctx context.Context) ([]models.Project, error) {
	if _, err := o.require(auth.PermRead); err != nil {
		return nil, err
	}
	return o.refreshProjects(ctx)
}

func (o *Orchestrator) projectName(ctx context.Context, id string) string {
	o.data.mu.RLock()
	p, ok := lo.Find(o.data.projects, func(p models.Project) bool { return p.ID == id })
	o.data.mu.RUnlock()
	if ok {
		return p.Name
	}
	projects, err := o.refreshProjects(ctx)
	if err != nil {
		return unknownName
	}
	if p, ok := lo.Find(projects, func(p models.Project) bool { return p.ID == id }); ok {
		return p.Name
	}
	return unknownName
}

func (o *Orchestrator) CreateProject(ctx context.Context, p models.Project) (models.Project, error) {
	actor, err := o.require(auth.PermManage)
	if err != nil {
		return models.Project{}, err
	}
	created, err := o.gw.CreateProject(ctx, p)
	if err != nil {
		return models.Project{}, err
	}
	o.record(ctx, actor, ActionAddProject, fmt.Sprintf("Nouveau projet créé: %s", created.Name))
	_, err = o.refreshProjects(ctx)
	o.reloaded("projects", err)
	return created, nil
}

func (o *Orchestrator) UpdateProject(ctx context.Context, id string, patch models.ProjectPatch) error {
	actor, err := o.require(auth.PermManage)
	if err != nil {
		return err
	}
	name := o.projectName(ctx, id)
	if err := o.gw.UpdateProject(ctx, id, patch); err != nil {
		return err
	}
	if patch.Name != nil {
		name = *patch.Name
	}
	o.record(ctx, actor, ActionUpdateProject, fmt.Sprintf("Projet modifié: %s", name))
	_, err = o.refreshProjects(ctx)
	o.reloaded("projects", err)
	return nil
}

func (o *Orchestrator) DeleteProject(ctx context.Context, id string) error {
	actor, err := o.require(auth.PermManage)
	if err != nil {
		return err
	}
	name := o.projectName(ctx, id)
	if err := o.gw.DeleteProject(ctx, id); err != nil {
		return err
	}
	o.record(ctx, actor, ActionDeleteProject, fmt.Sprintf("Projet supprimé: %s", name))
	_, err = o.refreshProjects(ctx)
	o.reloaded("projects", err)
	return nil
}

// --- reference data ---

func (o *Orchestrator) Phases(ctx context.Context) ([]models.Phase, error) {
	if _, err := o.require(auth.PermRead); err != nil {
		return nil, err
	}
	return o.refreshPhases(ctx)
}

// UpdatePhases replaces the whole phase catalogue.
func (o *Orchestrator) UpdatePhases(ctx context.Context, phases []models.Phase) ([]models.Phase, error) {
	actor, err := o.require(auth.PermManage)
	if err != nil {
		return nil, err
	}
	saved, err := o.gw.ReplacePhases(ctx, phases)
	if err != nil {
		return nil, err
	}
	o.record(ctx, actor, ActionUpdatePhases, "Configuration des phases mise à jour")
	out, err := o.refreshPhases(ctx)
	if err != nil {
		o.reloaded("phases", err)
		return saved, nil
	}
	return out, nil
}

func (o *Orchestrator) Stations(ctx context.Context) ([]models.Station, error) {
	if _, err := o.require(auth.PermRead); err != nil {
		return nil, err
	}
	return o.refreshStations(ctx)
}

// UpdateStations replaces the whole station park.
func (o *Orchestrator) UpdateStations(ctx context.Context, stations []models.Station) ([]models.Station, error) {
	actor, err := o.require(auth.PermManage)
	if err != nil {
		return nil, err
	}
	saved, err := o.gw.ReplaceStations(ctx, stations)
	if err != nil {
		return nil, err
	}
	o.record(ctx, actor, ActionUpdateStations, "Configuration des stations mise à jour")
	out, err := o.refreshStations(ctx)
	if err != nil {
		o.reloaded("stations", err)
		return saved, nil
	}
	return out, nil
}

// --- reports ---

// Reports lists every report for supervisors and only their own for topographes.
func (o *Orchestrator) Reports(ctx context.Context) ([]models.Report, error) {
	u, ok := o.session.Current()
	if !ok {
		return nil, models.ErrNotAuthenticated
	}
	reports, err := o.refreshReports(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case auth.Can(u, auth.PermSupervise):
		return reports, nil
	case u.Role == models.RoleTopographer:
		return lo.Filter(reports, func(r models.Report, _ int) bool { return r.UserID == u.ID }), nil
	}
	return nil, models.ErrForbidden
}

// ExportReports returns every report for an export file.
func (o *Orchestrator) ExportReports(ctx context.Context) ([]models.Report, error) {
	if _, err := o.require(auth.PermSupervise); err != nil {
		return nil, err
	}
	return o.refreshReports(ctx)
}

// SubmitReport records a report for the session user. Missing project, phase
// and station names are snapshotted from the referenced records.
func (o *Orchestrator) SubmitReport(ctx context.Context, r models.Report) (models.Report, error) {
	actor, err := o.require(auth.PermSubmitReport)
	if err != nil {
		return models.Report{}, err
	}
	r.UserID = actor.ID
	r.UserName = actor.Name
	o.snapshotNames(ctx, &r)

	created, err := o.gw.CreateReport(ctx, r)
	if err != nil {
		return models.Report{}, err
	}
	o.record(ctx, actor, ActionCreateReport, fmt.Sprintf("Rapport créé pour le projet %s", created.ProjectName))
	_, err = o.refreshReports(ctx)
	o.reloaded("reports", err)
	return created, nil
}

func (o *Orchestrator) snapshotNames(ctx context.Context, r *models.Report) {
	if r.ProjectName != "" && r.PhaseName != "" && r.StationName != "" {
		return
	}
	o.data.mu.RLock()
	empty := len(o.data.phases) == 0 || len(o.data.stations) == 0
	o.data.mu.RUnlock()
	if empty {
		if err := o.Refresh(ctx); err != nil {
			o.log.WithError(err).Warn("refresh before snapshot failed")
		}
	}

	o.data.mu.RLock()
	defer o.data.mu.RUnlock()
	if r.ProjectName == "" {
		if p, ok := lo.Find(o.data.projects, func(p models.Project) bool { return p.ID == r.ProjectID }); ok {
			r.ProjectName = p.Name
		}
	}
	if r.PhaseName == "" {
		if p, ok := lo.Find(o.data.phases, func(p models.Phase) bool { return p.ID == r.PhaseID }); ok {
			r.PhaseName = p.Name
		}
	}
	if r.StationName == "" {
		if s, ok := lo.Find(o.data.stations, func(s models.Station) bool { return s.ID == r.StationID }); ok {
			r.StationName = s.Name
		}
	}
}

// UpdateReportStatus moves report id to status through the lifecycle policy.
func (o *Orchestrator) UpdateReportStatus(ctx context.Context, id string, status models.ReportStatus) error {
	actor, err := o.require(auth.PermSupervise)
	if err != nil {
		return err
	}

	o.data.mu.RLock()
	r, ok := lo.Find(o.data.reports, func(r models.Report) bool { return r.ID == id })
	o.data.mu.RUnlock()
	name := unknownName
	if ok {
		name = r.ProjectName
	}

	if err := o.lifecycle.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	if !ok {
		if reports, err := o.refreshReports(ctx); err == nil {
			if r, found := lo.Find(reports, func(r models.Report) bool { return r.ID == id }); found {
				name = r.ProjectName
			}
		}
	}
	o.record(ctx, actor, ActionReportStatus, fmt.Sprintf("Statut changé vers %q pour le rapport %s", status, name))
	_, err = o.refreshReports(ctx)
	o.reloaded("reports", err)
	return nil
}

// --- activity log ---

// ActionLogs returns the audit trail, most recent first.
func (o *Orchestrator) ActionLogs(ctx context.Context) ([]models.ActionLog, error) {
	if _, err := o.require(auth.PermManage); err != nil {
		return nil, err
	}
	logs, err := o.gw.ListActionLogs(ctx)
	if err != nil {
		return nil, err
	}
	o.data.mu.Lock()
	o.data.logs = logs
	o.data.mu.Unlock()
	return logs, nil
}
