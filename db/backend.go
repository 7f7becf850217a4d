package db

import (
	"context"

	"seroest/models"
)

// Backend is one place the gateway can store entities in. Implementations
// persist what they are given: ids, timestamps and validation are the
// gateway's job. Update and delete of a missing id return models.ErrNotFound.
type Backend interface {
	Name() string

	ListUsers(ctx context.Context) ([]models.User, error)
	InsertUser(ctx context.Context, u models.User) error
	UpdateUser(ctx context.Context, id string, patch models.UserPatch) error
	DeleteUser(ctx context.Context, id string) error

	// ListProjects returns projects with their files attached.
	ListProjects(ctx context.Context) ([]models.Project, error)
	InsertProject(ctx context.Context, p models.Project) error
	// UpdateProject applies patch; a non-nil patch.Links replaces every file the project owns.
	UpdateProject(ctx context.Context, id string, patch models.ProjectPatch) error
	// DeleteProject removes the project and the files it owns.
	DeleteProject(ctx context.Context, id string) error

	ListPhases(ctx context.Context) ([]models.Phase, error)
	ReplacePhases(ctx context.Context, phases []models.Phase) error

	ListStations(ctx context.Context) ([]models.Station, error)
	ReplaceStations(ctx context.Context, stations []models.Station) error

	ListReports(ctx context.Context) ([]models.Report, error)
	InsertReport(ctx context.Context, r models.Report) error
	UpdateReportStatus(ctx context.Context, id string, status models.ReportStatus) error

	ListActionLogs(ctx context.Context) ([]models.ActionLog, error)
	InsertActionLog(ctx context.Context, l models.ActionLog) error

	Close() error
}
