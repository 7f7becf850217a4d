package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validReport() Report {
	return Report{
		UserName:        "Bachir",
		Date:            "2025-03-14",
		ProjectName:     "Pont Oued Sebou",
		PhaseName:       "Coffrage du fût",
		StructureType:   StructurePier,
		StructureNumber: "P3",
		StationName:     "Station 1",
		Status:          ReportRecorded,
	}
}

func TestReportValidate(t *testing.T) {
	r := validReport()
	require.NoError(t, r.Validate())

	cases := map[string]func(*Report){
		"userName":        func(r *Report) { r.UserName = "  " },
		"date":            func(r *Report) { r.Date = "14/03/2025" },
		"projetNom":       func(r *Report) { r.ProjectName = "" },
		"typeStructure":   func(r *Report) { r.StructureType = "pont" },
		"numeroStructure": func(r *Report) { r.StructureNumber = "" },
		"statut":          func(r *Report) { r.Status = "archivee" },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			r := validReport()
			mutate(&r)
			err := r.Validate()
			require.Error(t, err)

			var v *ValidationError
			require.True(t, errors.As(err, &v))
			assert.Equal(t, field, v.Field)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestReportDefaults(t *testing.T) {
	r := Report{}
	r.ApplyDefaults()
	assert.Equal(t, ReportRecorded, r.Status)
	assert.NotNil(t, r.Tasks)
}

func TestProjectValidate(t *testing.T) {
	p := Project{Name: "Viaduc", StartDate: "2025-01-10"}
	p.ApplyDefaults()
	assert.Equal(t, ProjectActive, p.Status)
	require.NoError(t, p.Validate())

	p.EndDate = "bientôt"
	assert.True(t, IsValidation(p.Validate()))

	p.EndDate = ""
	p.Links.Plans = []ProjectFile{{Name: "Plan P1", Link: ""}}
	assert.True(t, IsValidation(p.Validate()))

	p.Links.Plans[0].Link = "https://drive.example/p1"
	assert.NoError(t, p.Validate())
}

func TestUserValidate(t *testing.T) {
	u := User{Name: "Samir", Password: "samir123", Role: RoleTopographer}
	require.NoError(t, u.Validate())

	u.Role = "chef"
	assert.True(t, IsValidation(u.Validate()))

	empty := ""
	patch := UserPatch{Name: &empty}
	assert.True(t, IsValidation(patch.Validate()))
	assert.False(t, patch.Empty())
	assert.True(t, (&UserPatch{}).Empty())
}

func TestPhaseLabel(t *testing.T) {
	r := Report{PhaseName: "Autre", PhaseOther: "Reprise de bétonnage"}
	assert.Equal(t, "Reprise de bétonnage", r.PhaseLabel())

	r.PhaseOther = ""
	assert.Equal(t, "Autre", r.PhaseLabel())

	r.PhaseName = "Implantation des axes"
	r.PhaseOther = "ignored"
	assert.Equal(t, "Implantation des axes", r.PhaseLabel())
}

func TestLinksFilesTagsKinds(t *testing.T) {
	l := ProjectLinks{
		Plans:       []ProjectFile{{Name: "a"}},
		Checksheets: []ProjectFile{{Name: "b"}, {Name: "c"}},
	}
	files := l.Files()
	require.Len(t, files, 3)
	assert.Equal(t, FilePlan, files[0].Kind)
	assert.Equal(t, FileChecksheet, files[1].Kind)
	assert.Equal(t, FileChecksheet, files[2].Kind)
}
