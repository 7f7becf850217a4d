package db

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"seroest/models"
)

// SQLStore is the remote relational backend, backed by gorm.
type SQLStore struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

var _ Backend = (*SQLStore)(nil)

// OpenPostgres connects to postgres, retrying a few times while the server starts,
// and migrates the schema.
func OpenPostgres(dsn, password string, log logrus.FieldLogger) (*SQLStore, error) {
	dsn = dsnWithPassword(dsn, password)
	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err == nil {
			log.WithField("backend", "postgres").Info("connected to database")
			return NewSQLStore(gdb, log)
		}
		lastErr = err
		log.WithError(err).WithField("attempt", attempt).Warn("database connection failed")
		time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
	}
	return nil, fmt.Errorf("connect to postgres: %w", lastErr)
}

// NewSQLStore wraps an open gorm connection and migrates the schema.
func NewSQLStore(gdb *gorm.DB, log logrus.FieldLogger) (*SQLStore, error) {
	s := &SQLStore{db: gdb, log: log.WithField("backend", "postgres")}
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Migrate creates or updates every table.
func (s *SQLStore) Migrate() error {
	for _, table := range allRows {
		if err := s.db.AutoMigrate(table); err != nil {
			return fmt.Errorf("migrate %T: %w", table, err)
		}
	}
	return nil
}

// dsnWithPassword injects the backend key into the DSN, in URL or key=value form.
func dsnWithPassword(dsn, password string) string {
	if password == "" {
		return dsn
	}
	if u, err := url.Parse(dsn); err == nil && (u.Scheme == "postgres" || u.Scheme == "postgresql") {
		name := ""
		if u.User != nil {
			name = u.User.Username()
		}
		u.User = url.UserPassword(name, password)
		return u.String()
	}
	if strings.Contains(dsn, "password=") {
		return dsn
	}
	return strings.TrimSpace(dsn) + " password=" + password
}

func (s *SQLStore) Name() string { return "postgres" }

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLStore) conn(ctx context.Context) *gorm.DB { return s.db.WithContext(ctx) }

// updateByID applies columns to the row with the given id.
func updateByID(tx *gorm.DB, model any, id string, columns map[string]any) error {
	res := tx.Model(model).Where("id = ?", id).Updates(columns)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func deleteByID(tx *gorm.DB, model any, id string) error {
	res := tx.Where("id = ?", id).Delete(model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// byNameClause orders like byName in the local store.
const byNameClause = "LOWER(nom), nom"

// --- Users ---

func (s *SQLStore) ListUsers(ctx context.Context) ([]models.User, error) {
	var rows []userRow
	if err := s.conn(ctx).Order(byNameClause).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]models.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *SQLStore) InsertUser(ctx context.Context, u models.User) error {
	row := toUserRow(u)
	if err := s.conn(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *SQLStore) UpdateUser(ctx context.Context, id string, patch models.UserPatch) error {
	columns := userPatchColumns(patch)
	columns["updated_at"] = models.Now()
	if err := updateByID(s.conn(ctx), &userRow{}, id, columns); err != nil {
		return fmt.Errorf("update user %s: %w", id, err)
	}
	return nil
}

func (s *SQLStore) DeleteUser(ctx context.Context, id string) error {
	if err := deleteByID(s.conn(ctx), &userRow{}, id); err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	return nil
}

// --- Projects ---

func (s *SQLStore) ListProjects(ctx context.Context) ([]models.Project, error) {
	var rows []projectRow
	if err := s.conn(ctx).Order(byNameClause).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	var files []fileRow
	if err := s.conn(ctx).Order("created_at").Find(&files).Error; err != nil {
		return nil, fmt.Errorf("list project files: %w", err)
	}
	return assembleProjects(rows, files), nil
}

func (s *SQLStore) InsertProject(ctx context.Context, p models.Project) error {
	row := toProjectRow(p)
	files := toFileRows(p.ID, p.Links.Files(), p.CreatedAt)
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if len(files) > 0 {
			return tx.Create(&files).Error
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *SQLStore) UpdateProject(ctx context.Context, id string, patch models.ProjectPatch) error {
	columns := projectPatchColumns(patch)
	now := models.Now()
	columns["updated_at"] = now
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := updateByID(tx, &projectRow{}, id, columns); err != nil {
			return err
		}
		if patch.Links == nil {
			return nil
		}
		if err := tx.Where("projet_id = ?", id).Delete(&fileRow{}).Error; err != nil {
			return err
		}
		files := toFileRows(id, patch.Links.Files(), now)
		if len(files) == 0 {
			return nil
		}
		return tx.Create(&files).Error
	})
	if err != nil {
		return fmt.Errorf("update project %s: %w", id, err)
	}
	return nil
}

func (s *SQLStore) DeleteProject(ctx context.Context, id string) error {
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("projet_id = ?", id).Delete(&fileRow{}).Error; err != nil {
			return err
		}
		return deleteByID(tx, &projectRow{}, id)
	})
	if err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	return nil
}

// --- Phases & stations ---

func (s *SQLStore) ListPhases(ctx context.Context) ([]models.Phase, error) {
	var rows []phaseRow
	if err := s.conn(ctx).Order(byNameClause).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list phases: %w", err)
	}
	out := make([]models.Phase, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *SQLStore) ReplacePhases(ctx context.Context, phases []models.Phase) error {
	rows := toPhaseRows(phases, models.Now())
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&phaseRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("replace phases: %w", err)
	}
	return nil
}

func (s *SQLStore) ListStations(ctx context.Context) ([]models.Station, error) {
	var rows []stationRow
	if err := s.conn(ctx).Order(byNameClause).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	out := make([]models.Station, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *SQLStore) ReplaceStations(ctx context.Context, stations []models.Station) error {
	rows := toStationRows(stations, models.Now())
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&stationRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("replace stations: %w", err)
	}
	return nil
}

// --- Reports ---

func (s *SQLStore) ListReports(ctx context.Context) ([]models.Report, error) {
	var rows []reportRow
	if err := s.conn(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	out := make([]models.Report, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *SQLStore) InsertReport(ctx context.Context, r models.Report) error {
	row := toReportRow(r)
	if err := s.conn(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (s *SQLStore) UpdateReportStatus(ctx context.Context, id string, status models.ReportStatus) error {
	columns := reportStatusColumns(status)
	columns["updated_at"] = models.Now()
	if err := updateByID(s.conn(ctx), &reportRow{}, id, columns); err != nil {
		return fmt.Errorf("update report %s: %w", id, err)
	}
	return nil
}

// --- Action logs ---

func (s *SQLStore) ListActionLogs(ctx context.Context) ([]models.ActionLog, error) {
	var rows []actionLogRow
	if err := s.conn(ctx).Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list action logs: %w", err)
	}
	out := make([]models.ActionLog, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *SQLStore) InsertActionLog(ctx context.Context, l models.ActionLog) error {
	row := toActionLogRow(l)
	if err := s.conn(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert action log: %w", err)
	}
	return nil
}

// IsEmpty reports whether a table holds no rows; used by the seeder.
func (s *SQLStore) IsEmpty(ctx context.Context, table string) (bool, error) {
	var n int64
	if err := s.conn(ctx).Table(table).Count(&n).Error; err != nil {
		return false, err
	}
	return n == 0, nil
}
