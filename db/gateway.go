package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"seroest/metrics"
	"seroest/models"
)

// Gateway is the single entry point for persistence. It validates entities,
// assigns ids and timestamps, and routes each call to the remote backend or,
// when none is configured, to the local store.
//
// With a remote backend, failed list calls are served from the local store and
// failed action-log inserts are written there; every other mutation failure is
// returned to the caller.
type Gateway struct {
	remote Backend
	local  *LocalStore
	log    logrus.FieldLogger
}

// NewGateway selects the backends once. remote may be nil.
func NewGateway(remote Backend, local *LocalStore, log logrus.FieldLogger) *Gateway {
	g := &Gateway{remote: remote, local: local, log: log.WithField("component", "gateway")}
	g.log.WithField("backend", g.primary().Name()).Info("persistence gateway ready")
	return g
}

// Remote reports whether a remote backend is configured.
func (g *Gateway) Remote() bool { return g.remote != nil }

// Backend returns the backend serving calls.
func (g *Gateway) Backend() Backend { return g.primary() }

// Local returns the local store.
func (g *Gateway) Local() *LocalStore { return g.local }

func (g *Gateway) primary() Backend {
	if g.remote != nil {
		return g.remote
	}
	return g.local
}

// Close closes both backends.
func (g *Gateway) Close() error {
	var err error
	if g.remote != nil {
		err = g.remote.Close()
	}
	if lerr := g.local.Close(); err == nil {
		err = lerr
	}
	return err
}

func newID() string { return uuid.NewString() }

// read runs fn against the primary backend and, when a remote one fails,
// against the local store.
func read[T any](ctx context.Context, g *Gateway, entity string, fn func(context.Context, Backend) ([]T, error)) ([]T, error) {
	items, err := fn(ctx, g.primary())
	if err == nil {
		return items, nil
	}
	metrics.StoreErrors.WithLabelValues(g.primary().Name(), "list_"+entity).Inc()
	if g.remote == nil {
		return nil, fmt.Errorf("list %s: %w: %w", entity, models.ErrBackendUnavailable, err)
	}

	g.log.WithError(err).WithField("entity", entity).Warn("remote read failed, serving local copy")
	metrics.FallbackReads.WithLabelValues(entity).Inc()
	items, lerr := fn(ctx, g.local)
	if lerr != nil {
		metrics.StoreErrors.WithLabelValues(g.local.Name(), "list_"+entity).Inc()
		return nil, fmt.Errorf("list %s: %w: remote: %v, local: %w", entity, models.ErrBackendUnavailable, err, lerr)
	}
	return items, nil
}

// Authority reads from the primary backend only, never from the local copy.
// Existence and authorization checks go through it: a stale local copy must
// not answer for the remote, and a failed read surfaces as
// models.ErrBackendUnavailable.
type Authority struct{ g *Gateway }

// Authority returns the primary-only view of g.
func (g *Gateway) Authority() Authority { return Authority{g: g} }

func (a Authority) ListUsers(ctx context.Context) ([]models.User, error) {
	return strict(ctx, a.g, "users", Backend.ListUsers)
}

func (a Authority) ListReports(ctx context.Context) ([]models.Report, error) {
	return strict(ctx, a.g, "reports", Backend.ListReports)
}

// UpdateReportStatus is the gateway write, so Authority can back a report lifecycle.
func (a Authority) UpdateReportStatus(ctx context.Context, id string, status models.ReportStatus) error {
	return a.g.UpdateReportStatus(ctx, id, status)
}

func strict[T any](ctx context.Context, g *Gateway, entity string, fn func(Backend, context.Context) ([]T, error)) ([]T, error) {
	items, err := fn(g.primary(), ctx)
	if err != nil {
		metrics.StoreErrors.WithLabelValues(g.primary().Name(), "list_"+entity).Inc()
		return nil, fmt.Errorf("list %s: %w: %w", entity, models.ErrBackendUnavailable, err)
	}
	return items, nil
}

// write wraps and records the outcome of a mutation on the primary backend.
// Mutations never fall back.
func (g *Gateway) write(op string, err error) error {
	if err == nil {
		return nil
	}
	metrics.StoreErrors.WithLabelValues(g.primary().Name(), op).Inc()
	g.log.WithError(err).WithField("op", op).Error("write failed")
	return fmt.Errorf("%s: %w", op, err)
}

// --- Users ---

func (g *Gateway) ListUsers(ctx context.Context) ([]models.User, error) {
	return read(ctx, g, "users", func(ctx context.Context, b Backend) ([]models.User, error) {
		return b.ListUsers(ctx)
	})
}

// CreateUser stores u with a fresh id and creation time. The password is stored as given.
func (g *Gateway) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	if err := u.Validate(); err != nil {
		return models.User{}, err
	}
	u.ID = newID()
	u.CreatedAt = models.Now()
	if err := g.write("create user", g.primary().InsertUser(ctx, u)); err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (g *Gateway) UpdateUser(ctx context.Context, id string, patch models.UserPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	return g.write("update user", g.primary().UpdateUser(ctx, id, patch))
}

func (g *Gateway) DeleteUser(ctx context.Context, id string) error {
	return g.write("delete user", g.primary().DeleteUser(ctx, id))
}

// --- Projects ---

// assignFileIDs gives every new file an id.
func assignFileIDs(links models.ProjectLinks) models.ProjectLinks {
	for i := range links.Plans {
		if links.Plans[i].ID == "" {
			links.Plans[i].ID = newID()
		}
	}
	for i := range links.Checksheets {
		if links.Checksheets[i].ID == "" {
			links.Checksheets[i].ID = newID()
		}
	}
	return links
}

// normalizeLinks copies the file slices, tags kinds and owner, and assigns ids.
func normalizeLinks(projectID string, links models.ProjectLinks) models.ProjectLinks {
	out := models.ProjectLinks{Stations: links.Stations}
	for _, f := range links.Files() {
		f.ProjectID = projectID
		if f.Kind == models.FilePlan {
			out.Plans = append(out.Plans, f)
		} else {
			out.Checksheets = append(out.Checksheets, f)
		}
	}
	if out.Plans == nil {
		out.Plans = []models.ProjectFile{}
	}
	if out.Checksheets == nil {
		out.Checksheets = []models.ProjectFile{}
	}
	return assignFileIDs(out)
}

func (g *Gateway) ListProjects(ctx context.Context) ([]models.Project, error) {
	return read(ctx, g, "projects", func(ctx context.Context, b Backend) ([]models.Project, error) {
		return b.ListProjects(ctx)
	})
}

// CreateProject stores p and the files in its links.
func (g *Gateway) CreateProject(ctx context.Context, p models.Project) (models.Project, error) {
	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return models.Project{}, err
	}
	p.ID = newID()
	p.CreatedAt = models.Now()
	p.Links = normalizeLinks(p.ID, p.Links)
	if err := g.write("create project", g.primary().InsertProject(ctx, p)); err != nil {
		return models.Project{}, err
	}
	return p, nil
}

// UpdateProject patches p; supplied links replace every file the project owns.
func (g *Gateway) UpdateProject(ctx context.Context, id string, patch models.ProjectPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	if patch.Links != nil {
		links := normalizeLinks(id, *patch.Links)
		patch.Links = &links
	}
	return g.write("update project", g.primary().UpdateProject(ctx, id, patch))
}

func (g *Gateway) DeleteProject(ctx context.Context, id string) error {
	return g.write("delete project", g.primary().DeleteProject(ctx, id))
}

// --- Phases & stations ---

func (g *Gateway) ListPhases(ctx context.Context) ([]models.Phase, error) {
	return read(ctx, g, "phases", func(ctx context.Context, b Backend) ([]models.Phase, error) {
		return b.ListPhases(ctx)
	})
}

// ReplacePhases makes phases the whole phase set. Entries without an id get one.
func (g *Gateway) ReplacePhases(ctx context.Context, phases []models.Phase) ([]models.Phase, error) {
	out := make([]models.Phase, 0, len(phases))
	for _, p := range phases {
		p.ApplyDefaults()
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if p.ID == "" {
			p.ID = newID()
		}
		out = append(out, p)
	}
	if err := g.write("replace phases", g.primary().ReplacePhases(ctx, out)); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gateway) ListStations(ctx context.Context) ([]models.Station, error) {
	return read(ctx, g, "stations", func(ctx context.Context, b Backend) ([]models.Station, error) {
		return b.ListStations(ctx)
	})
}

// ReplaceStations makes stations the whole station set. Entries without an id get one.
func (g *Gateway) ReplaceStations(ctx context.Context, stations []models.Station) ([]models.Station, error) {
	out := make([]models.Station, 0, len(stations))
	for _, s := range stations {
		s.ApplyDefaults()
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if s.ID == "" {
			s.ID = newID()
		}
		out = append(out, s)
	}
	if err := g.write("replace stations", g.primary().ReplaceStations(ctx, out)); err != nil {
		return nil, err
	}
	return out, nil
}

// --- Reports ---

func (g *Gateway) ListReports(ctx context.Context) ([]models.Report, error) {
	return read(ctx, g, "reports", func(ctx context.Context, b Backend) ([]models.Report, error) {
		return b.ListReports(ctx)
	})
}

// CreateReport stores r as one row with a fresh id and creation time.
func (g *Gateway) CreateReport(ctx context.Context, r models.Report) (models.Report, error) {
	r.ApplyDefaults()
	if err := r.Validate(); err != nil {
		return models.Report{}, err
	}
	r.ID = newID()
	r.CreatedAt = models.Now()
	r.Tasks = append([]string{}, r.Tasks...)
	if err := g.write("create report", g.primary().InsertReport(ctx, r)); err != nil {
		return models.Report{}, err
	}
	return r, nil
}

// UpdateReportStatus changes only the status of report id.
func (g *Gateway) UpdateReportStatus(ctx context.Context, id string, status models.ReportStatus) error {
	if !status.Valid() {
		return &models.ValidationError{Entity: "report", Field: "statut", Message: "is not a known status"}
	}
	return g.write("update report status", g.primary().UpdateReportStatus(ctx, id, status))
}

// --- Action logs ---

func (g *Gateway) ListActionLogs(ctx context.Context) ([]models.ActionLog, error) {
	return read(ctx, g, "action_logs", func(ctx context.Context, b Backend) ([]models.ActionLog, error) {
		return b.ListActionLogs(ctx)
	})
}

// CreateActionLog appends an audit entry. A remote failure is retried on the
// local store so the entry is kept.
func (g *Gateway) CreateActionLog(ctx context.Context, l models.ActionLog) (models.ActionLog, error) {
	if err := l.Validate(); err != nil {
		return models.ActionLog{}, err
	}
	l.ID = newID()
	l.Timestamp = models.Now()

	err := g.primary().InsertActionLog(ctx, l)
	if err == nil {
		return l, nil
	}
	metrics.StoreErrors.WithLabelValues(g.primary().Name(), "create action log").Inc()
	if g.remote == nil {
		return models.ActionLog{}, fmt.Errorf("create action log: %w", err)
	}

	g.log.WithError(err).Warn("remote action log insert failed, writing locally")
	if lerr := g.local.InsertActionLog(ctx, l); lerr != nil {
		return models.ActionLog{}, fmt.Errorf("create action log: remote: %v, local: %w", err, lerr)
	}
	return l, nil
}
