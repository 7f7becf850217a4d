package db

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"seroest/models"
)

// FirestoreStore is the remote document backend. Collections carry the
// relational table names and documents the same snake-case fields.
type FirestoreStore struct {
	client *firestore.Client
	log    logrus.FieldLogger
}

var _ Backend = (*FirestoreStore)(nil)

// NewFirestoreStore initializes a Firestore client for projectID.
func NewFirestoreStore(ctx context.Context, projectID, credentialsPath string, log logrus.FieldLogger) (*FirestoreStore, error) {
	var opts []option.ClientOption
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}

	config := &firebase.Config{ProjectID: projectID}
	app, err := firebase.NewApp(ctx, config, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firestore client: %w", err)
	}

	log.WithField("project", projectID).Info("connected to Firestore")

	return &FirestoreStore{client: client, log: log.WithField("backend", "firestore")}, nil
}

func (s *FirestoreStore) Name() string { return "firestore" }

// Close closes the Firestore client
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) col(name string) *firestore.CollectionRef {
	return s.client.Collection(name)
}

// readAll drains iter into rows of type T, skipping documents that do not decode.
func readAll[T any](log logrus.FieldLogger, iter *firestore.DocumentIterator) ([]T, error) {
	defer iter.Stop()

	var rows []T
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate documents: %w", err)
		}

		var row T
		if err := doc.DataTo(&row); err != nil {
			log.WithError(err).WithField("doc", doc.Ref.Path).Warn("failed to parse document")
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// mapErr turns a gRPC NotFound into models.ErrNotFound.
func mapErr(err error) error {
	if status.Code(err) == codes.NotFound {
		return models.ErrNotFound
	}
	return err
}

func toUpdates(columns map[string]any) []firestore.Update {
	updates := make([]firestore.Update, 0, len(columns))
	for path, v := range columns {
		updates = append(updates, firestore.Update{Path: path, Value: v})
	}
	return updates
}

// --- Users ---

func (s *FirestoreStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := readAll[userRow](s.log, s.col(tableUsers).OrderBy("nom", firestore.Asc).Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]models.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return byName(out, func(u models.User) string { return u.Name }), nil
}

func (s *FirestoreStore) InsertUser(ctx context.Context, u models.User) error {
	row := toUserRow(u)
	if _, err := s.col(tableUsers).Doc(row.ID).Create(ctx, row); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *FirestoreStore) UpdateUser(ctx context.Context, id string, patch models.UserPatch) error {
	columns := userPatchColumns(patch)
	columns["updated_at"] = models.Now()
	if _, err := s.col(tableUsers).Doc(id).Update(ctx, toUpdates(columns)); err != nil {
		return fmt.Errorf("failed to update user %s: %w", id, mapErr(err))
	}
	return nil
}

func (s *FirestoreStore) DeleteUser(ctx context.Context, id string) error {
	ref := s.col(tableUsers).Doc(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			return mapErr(err)
		}
		return tx.Delete(ref)
	})
	if err != nil {
		return fmt.Errorf("failed to delete user %s: %w", id, err)
	}
	return nil
}

// --- Projects ---

func (s *FirestoreStore) ListProjects(ctx context.Context) ([]models.Project, error) {
	rows, err := readAll[projectRow](s.log, s.col(tableProjects).OrderBy("nom", firestore.Asc).Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	files, err := readAll[fileRow](s.log, s.col(tableFiles).OrderBy("created_at", firestore.Asc).Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("list project files: %w", err)
	}
	return byName(assembleProjects(rows, files), func(p models.Project) string { return p.Name }), nil
}

func (s *FirestoreStore) InsertProject(ctx context.Context, p models.Project) error {
	row := toProjectRow(p)
	files := toFileRows(p.ID, p.Links.Files(), p.CreatedAt)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(s.col(tableProjects).Doc(row.ID), row); err != nil {
			return err
		}
		for _, f := range files {
			if err := tx.Create(s.col(tableFiles).Doc(f.ID), f); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// ownedFiles reads the file documents of a project inside tx.
func (s *FirestoreStore) ownedFiles(tx *firestore.Transaction, projectID string) ([]*firestore.DocumentSnapshot, error) {
	return tx.Documents(s.col(tableFiles).Where("projet_id", "==", projectID)).GetAll()
}

func (s *FirestoreStore) UpdateProject(ctx context.Context, id string, patch models.ProjectPatch) error {
	columns := projectPatchColumns(patch)
	now := models.Now()
	columns["updated_at"] = now
	ref := s.col(tableProjects).Doc(id)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			return mapErr(err)
		}
		var old []*firestore.DocumentSnapshot
		if patch.Links != nil {
			var err error
			if old, err = s.ownedFiles(tx, id); err != nil {
				return err
			}
		}
		// Firestore transactions require every read before the first write.
		if err := tx.Update(ref, toUpdates(columns)); err != nil {
			return err
		}
		if patch.Links == nil {
			return nil
		}
		for _, doc := range old {
			if err := tx.Delete(doc.Ref); err != nil {
				return err
			}
		}
		for _, f := range toFileRows(id, patch.Links.Files(), now) {
			if err := tx.Create(s.col(tableFiles).Doc(f.ID), f); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update project %s: %w", id, err)
	}
	return nil
}

func (s *FirestoreStore) DeleteProject(ctx context.Context, id string) error {
	ref := s.col(tableProjects).Doc(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			return mapErr(err)
		}
		files, err := s.ownedFiles(tx, id)
		if err != nil {
			return err
		}
		for _, doc := range files {
			if err := tx.Delete(doc.Ref); err != nil {
				return err
			}
		}
		return tx.Delete(ref)
	})
	if err != nil {
		return fmt.Errorf("failed to delete project %s: %w", id, err)
	}
	return nil
}

// --- Phases & stations ---

// replaceCollection deletes every document of name and creates docs in one transaction.
func (s *FirestoreStore) replaceCollection(ctx context.Context, name string, docs map[string]any) error {
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, err := tx.Documents(s.col(name)).GetAll()
		if err != nil {
			return err
		}
		for _, doc := range existing {
			if err := tx.Delete(doc.Ref); err != nil {
				return err
			}
		}
		for id, data := range docs {
			if err := tx.Set(s.col(name).Doc(id), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *FirestoreStore) ListPhases(ctx context.Context) ([]models.Phase, error) {
	rows, err := readAll[phaseRow](s.log, s.col(tablePhases).OrderBy("nom", firestore.Asc).Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("list phases: %w", err)
	}
	out := make([]models.Phase, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return byName(out, func(p models.Phase) string { return p.Name }), nil
}

func (s *FirestoreStore) ReplacePhases(ctx context.Context, phases []models.Phase) error {
	docs := make(map[string]any, len(phases))
	for _, r := range toPhaseRows(phases, models.Now()) {
		docs[r.ID] = r
	}
	if err := s.replaceCollection(ctx, tablePhases, docs); err != nil {
		return fmt.Errorf("failed to replace phases: %w", err)
	}
	return nil
}

func (s *FirestoreStore) ListStations(ctx context.Context) ([]models.Station, error) {
	rows, err := readAll[stationRow](s.log, s.col(tableStations).OrderBy("nom", firestore.Asc).Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	out := make([]models.Station, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return byName(out, func(st models.Station) string { return st.Name }), nil
}

func (s *FirestoreStore) ReplaceStations(ctx context.Context, stations []models.Station) error {
	docs := make(map[string]any, len(stations))
	for _, r := range toStationRows(stations, models.Now()) {
		docs[r.ID] = r
	}
	if err := s.replaceCollection(ctx, tableStations, docs); err != nil {
		return fmt.Errorf("failed to replace stations: %w", err)
	}
	return nil
}

// --- Reports ---

func (s *FirestoreStore) ListReports(ctx context.Context) ([]models.Report, error) {
	rows, err := readAll[reportRow](s.log, s.col(tableReports).OrderBy("created_at", firestore.Desc).Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	out := make([]models.Report, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *FirestoreStore) InsertReport(ctx context.Context, r models.Report) error {
	row := toReportRow(r)
	if _, err := s.col(tableReports).Doc(row.ID).Create(ctx, row); err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

func (s *FirestoreStore) UpdateReportStatus(ctx context.Context, id string, st models.ReportStatus) error {
	columns := reportStatusColumns(st)
	columns["updated_at"] = models.Now()
	if _, err := s.col(tableReports).Doc(id).Update(ctx, toUpdates(columns)); err != nil {
		return fmt.Errorf("failed to update report %s: %w", id, mapErr(err))
	}
	return nil
}

// --- Action logs ---

func (s *FirestoreStore) ListActionLogs(ctx context.Context) ([]models.ActionLog, error) {
	rows, err := readAll[actionLogRow](s.log, s.col(tableActionLogs).OrderBy("timestamp", firestore.Desc).Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("list action logs: %w", err)
	}
	out := make([]models.ActionLog, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *FirestoreStore) InsertActionLog(ctx context.Context, l models.ActionLog) error {
	row := toActionLogRow(l)
	if _, err := s.col(tableActionLogs).Doc(row.ID).Create(ctx, row); err != nil {
		return fmt.Errorf("failed to create action log: %w", err)
	}
	return nil
}

// IsEmpty reports whether a collection holds no documents; used by the seeder.
func (s *FirestoreStore) IsEmpty(ctx context.Context, collection string) (bool, error) {
	docs, err := s.col(collection).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return false, err
	}
	return len(docs) == 0, nil
}
