package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/samber/lo/mutable"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"seroest/models"
)

// Local store keys. Each holds one JSON array.
const (
	keyUsers      = "sero-est-users"
	keyProjects   = "sero-est-projets"
	keyPhases     = "sero-est-phases"
	keyStations   = "sero-est-stations"
	keyReports    = "sero-est-rapports"
	keyActionLogs = "sero-est-action-logs"
)

// LocalStore is the fallback backend: a sqlite file holding one key/value
// table. Every operation rewrites a single key, so a write is atomic.
// It also backs the persisted session mirror.
type LocalStore struct {
	db  *sql.DB
	mu  sync.Mutex
	log logrus.FieldLogger
}

var _ Backend = (*LocalStore)(nil)

// OpenLocal opens (creating if needed) the store at path.
func OpenLocal(path string, log logrus.FieldLogger) (*LocalStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate local store: %w", err)
	}

	return &LocalStore{db: sqlDB, log: log.WithField("backend", "local")}, nil
}

func (s *LocalStore) Name() string { return "local" }

func (s *LocalStore) Close() error { return s.db.Close() }

// --- raw key/value ---

// Get returns the raw value stored under key.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return []byte(value), true, nil
}

// Put stores value under key, replacing any previous value.
func (s *LocalStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, string(value))
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Delete removes key. A missing key is not an error.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// --- collections ---

// load reads the collection under key. A missing key is seeded with seed()
// (nil seed means an empty collection). Callers hold s.mu.
func load[T any](ctx context.Context, s *LocalStore, key string, seed func() ([]T, error)) ([]T, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		if seed == nil {
			return []T{}, nil
		}
		items, err := seed()
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", key, err)
		}
		if err := save(ctx, s, key, items); err != nil {
			return nil, err
		}
		s.log.WithFields(logrus.Fields{"key": key, "count": len(items)}).Info("seeded local collection")
		return items, nil
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func save[T any](ctx context.Context, s *LocalStore, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(ctx, key, raw)
}

func list[T any](ctx context.Context, s *LocalStore, key string, seed func() ([]T, error)) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return load(ctx, s, key, seed)
}

// mutate loads a collection, applies fn and writes the result back.
func mutate[T any](ctx context.Context, s *LocalStore, key string, seed func() ([]T, error), fn func([]T) ([]T, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := load(ctx, s, key, seed)
	if err != nil {
		return err
	}
	items, err = fn(items)
	if err != nil {
		return err
	}
	return save(ctx, s, key, items)
}

func staticSeed[T any](items func() []T) func() ([]T, error) {
	return func() ([]T, error) { return items(), nil }
}

func byName[T any](items []T, name func(T) string) []T {
	sort.SliceStable(items, func(i, j int) bool {
		return strings.ToLower(name(items[i])) < strings.ToLower(name(items[j]))
	})
	return items
}

// newestFirst orders items by descending time. Items are appended on insert,
// so equal times keep the later insert first.
func newestFirst[T any](items []T, at func(T) time.Time) []T {
	mutable.Reverse(items)
	sort.SliceStable(items, func(i, j int) bool { return at(items[i]).After(at(items[j])) })
	return items
}

func indexOf[T any](items []T, id string, idOf func(T) string) (int, error) {
	_, i, ok := lo.FindIndexOf(items, func(item T) bool { return idOf(item) == id })
	if !ok {
		return -1, models.ErrNotFound
	}
	return i, nil
}

func userID(u models.User) string       { return u.ID }
func projectID(p models.Project) string { return p.ID }
func reportID(r models.Report) string   { return r.ID }

// --- Users ---

func (s *LocalStore) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := list(ctx, s, keyUsers, DefaultUsers)
	if err != nil {
		return nil, err
	}
	return byName(users, func(u models.User) string { return u.Name }), nil
}

func (s *LocalStore) InsertUser(ctx context.Context, u models.User) error {
	return mutate(ctx, s, keyUsers, DefaultUsers, func(users []models.User) ([]models.User, error) {
		return append(users, u), nil
	})
}

func (s *LocalStore) UpdateUser(ctx context.Context, id string, patch models.UserPatch) error {
	return mutate(ctx, s, keyUsers, DefaultUsers, func(users []models.User) ([]models.User, error) {
		i, err := indexOf(users, id, userID)
		if err != nil {
			return nil, err
		}
		users[i] = applyUserPatch(users[i], patch)
		return users, nil
	})
}

func (s *LocalStore) DeleteUser(ctx context.Context, id string) error {
	return mutate(ctx, s, keyUsers, DefaultUsers, func(users []models.User) ([]models.User, error) {
		i, err := indexOf(users, id, userID)
		if err != nil {
			return nil, err
		}
		return append(users[:i], users[i+1:]...), nil
	})
}

func applyUserPatch(u models.User, p models.UserPatch) models.User {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Password != nil {
		u.Password = *p.Password
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.Active != nil {
		u.Active = *p.Active
	}
	return u
}

// --- Projects ---

func (s *LocalStore) ListProjects(ctx context.Context) ([]models.Project, error) {
	projects, err := list[models.Project](ctx, s, keyProjects, nil)
	if err != nil {
		return nil, err
	}
	return byName(projects, func(p models.Project) string { return p.Name }), nil
}

func (s *LocalStore) InsertProject(ctx context.Context, p models.Project) error {
	p.Links = normalizeLinks(p.ID, p.Links)
	return mutate(ctx, s, keyProjects, nil, func(projects []models.Project) ([]models.Project, error) {
		return append(projects, p), nil
	})
}

func (s *LocalStore) UpdateProject(ctx context.Context, id string, patch models.ProjectPatch) error {
	return mutate(ctx, s, keyProjects, nil, func(projects []models.Project) ([]models.Project, error) {
		i, err := indexOf(projects, id, projectID)
		if err != nil {
			return nil, err
		}
		projects[i] = applyProjectPatch(projects[i], patch)
		return projects, nil
	})
}

func applyProjectPatch(p models.Project, patch models.ProjectPatch) models.Project {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.FullDescription != nil {
		p.FullDescription = *patch.FullDescription
	}
	if patch.StartDate != nil {
		p.StartDate = *patch.StartDate
	}
	if patch.EndDate != nil {
		p.EndDate = *patch.EndDate
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.Links != nil {
		p.Links = normalizeLinks(p.ID, *patch.Links)
	}
	return p
}

// DeleteProject drops the project; its files live inside it and go with it.
func (s *LocalStore) DeleteProject(ctx context.Context, id string) error {
	return mutate(ctx, s, keyProjects, nil, func(projects []models.Project) ([]models.Project, error) {
		i, err := indexOf(projects, id, projectID)
		if err != nil {
			return nil, err
		}
		return append(projects[:i], projects[i+1:]...), nil
	})
}

// --- Phases & stations ---

func (s *LocalStore) ListPhases(ctx context.Context) ([]models.Phase, error) {
	phases, err := list(ctx, s, keyPhases, staticSeed(DefaultPhases))
	if err != nil {
		return nil, err
	}
	return byName(phases, func(p models.Phase) string { return p.Name }), nil
}

func (s *LocalStore) ReplacePhases(ctx context.Context, phases []models.Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return save(ctx, s, keyPhases, append([]models.Phase{}, phases...))
}

func (s *LocalStore) ListStations(ctx context.Context) ([]models.Station, error) {
	stations, err := list(ctx, s, keyStations, staticSeed(DefaultStations))
	if err != nil {
		return nil, err
	}
	return byName(stations, func(st models.Station) string { return st.Name }), nil
}

func (s *LocalStore) ReplaceStations(ctx context.Context, stations []models.Station) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return save(ctx, s, keyStations, append([]models.Station{}, stations...))
}

// --- Reports ---

func (s *LocalStore) ListReports(ctx context.Context) ([]models.Report, error) {
	reports, err := list[models.Report](ctx, s, keyReports, nil)
	if err != nil {
		return nil, err
	}
	return newestFirst(reports, func(r models.Report) time.Time { return r.CreatedAt }), nil
}

func (s *LocalStore) InsertReport(ctx context.Context, r models.Report) error {
	return mutate(ctx, s, keyReports, nil, func(reports []models.Report) ([]models.Report, error) {
		return append(reports, r), nil
	})
}

func (s *LocalStore) UpdateReportStatus(ctx context.Context, id string, status models.ReportStatus) error {
	return mutate(ctx, s, keyReports, nil, func(reports []models.Report) ([]models.Report, error) {
		i, err := indexOf(reports, id, reportID)
		if err != nil {
			return nil, err
		}
		reports[i].Status = status
		return reports, nil
	})
}

// --- Action logs ---

func (s *LocalStore) ListActionLogs(ctx context.Context) ([]models.ActionLog, error) {
	logs, err := list[models.ActionLog](ctx, s, keyActionLogs, nil)
	if err != nil {
		return nil, err
	}
	return newestFirst(logs, func(l models.ActionLog) time.Time { return l.Timestamp }), nil
}

func (s *LocalStore) InsertActionLog(ctx context.Context, l models.ActionLog) error {
	return mutate(ctx, s, keyActionLogs, nil, func(logs []models.ActionLog) ([]models.ActionLog, error) {
		return append(logs, l), nil
	})
}
