package db

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seroest/logging"
	"seroest/models"
)

// Runs against the Firestore emulator only:
//
//	gcloud emulators firestore start --host-port=localhost:8681
//	FIRESTORE_EMULATOR_HOST=localhost:8681 go test ./db -run Firestore
func openTestFirestore(t *testing.T) *FirestoreStore {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	s, err := NewFirestoreStore(context.Background(), "seroest-test-"+uuid.NewString()[:8], "", logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFirestoreProjectLifecycle(t *testing.T) {
	s := openTestFirestore(t)
	ctx := context.Background()

	empty, err := s.IsEmpty(ctx, tableProjects)
	require.NoError(t, err)
	assert.True(t, empty)

	p := models.Project{
		ID:        "p1",
		Name:      "Viaduc",
		StartDate: "2025-01-10",
		Status:    models.ProjectActive,
		CreatedAt: models.Now(),
		Links: normalizeLinks("p1", models.ProjectLinks{
			Plans: []models.ProjectFile{{Name: "Plan P1", Link: "https://drive/p1"}},
		}),
	}
	require.NoError(t, s.InsertProject(ctx, p))

	links := normalizeLinks("p1", models.ProjectLinks{
		Checksheets: []models.ProjectFile{{Name: "Fiche", Link: "https://drive/f"}},
	})
	require.NoError(t, s.UpdateProject(ctx, "p1", models.ProjectPatch{Links: &links}))

	projects, err := s.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Empty(t, projects[0].Links.Plans)
	assert.Len(t, projects[0].Links.Checksheets, 1)

	require.NoError(t, s.DeleteProject(ctx, "p1"))
	empty, err = s.IsEmpty(ctx, tableFiles)
	require.NoError(t, err)
	assert.True(t, empty)

	assert.ErrorIs(t, s.DeleteProject(ctx, "p1"), models.ErrNotFound)
	assert.ErrorIs(t, s.UpdateReportStatus(ctx, "nope", models.ReportPrinted), models.ErrNotFound)
}
