// models.go
// Defines the record shapes shared by the storage gateway, the orchestrator and the HTTP API.
// JSON names follow the application-side (camel-case) convention; storage rows live in package db.

package models

import (
	"time"
)

// UserRole defines the access level of a user.
type UserRole string

const (
	RoleAdmin       UserRole = "admin"
	RoleTopographer UserRole = "topographe"
	RoleSupervisor  UserRole = "responsable"
)

// ProjectStatus is the lifecycle label of a construction project.
type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "actif"
	ProjectCompleted ProjectStatus = "termine"
	ProjectSuspended ProjectStatus = "suspendu"
)

// FileKind discriminates the drive links attached to a project.
type FileKind string

const (
	FilePlan       FileKind = "plan"
	FileChecksheet FileKind = "fiche"
	FileStationDoc FileKind = "station"
)

// PhaseKind distinguishes catalogue phases from the free-text "other" phase.
type PhaseKind string

const (
	PhaseStandard PhaseKind = "standard"
	PhaseOther    PhaseKind = "autre"
)

// StationStatus is the availability of a total station.
type StationStatus string

const (
	StationAvailable   StationStatus = "disponible"
	StationInUse       StationStatus = "en_utilisation"
	StationMaintenance StationStatus = "maintenance"
)

// StructureType is the kind of bridge structure a report was taken on.
type StructureType string

const (
	StructurePier     StructureType = "pile"
	StructureAbutment StructureType = "culee"
)

// ReportStatus is the workflow label of a report.
type ReportStatus string

const (
	ReportRecorded         ReportStatus = "enregistree"
	ReportPrinted          ReportStatus = "imprimee"
	ReportSentToOffice     ReportStatus = "envoyee_bcs"
	ReportReceivedByOffice ReportStatus = "recue_bcs"
)

// User represents an account allowed to log in.
// Password holds a bcrypt hash once persisted.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"nom"`
	Password  string    `json:"motDePasse,omitempty"`
	Role      UserRole  `json:"role"`
	Active    bool      `json:"actif"`
	CreatedAt time.Time `json:"dateCreation"`
}

// Public returns a copy of the user without its password hash.
func (u User) Public() User {
	u.Password = ""
	return u
}

// UserPatch is a partial update; nil fields are left unchanged.
type UserPatch struct {
	Name     *string   `json:"nom,omitempty"`
	Password *string   `json:"motDePasse,omitempty"`
	Role     *UserRole `json:"role,omitempty"`
	Active   *bool     `json:"actif,omitempty"`
}

// ProjectFile is a drive link owned by exactly one project.
type ProjectFile struct {
	ID        string   `json:"id"`
	ProjectID string   `json:"projetId,omitempty"`
	Name      string   `json:"nom"`
	Link      string   `json:"lien"`
	Kind      FileKind `json:"type"`
}

// ProjectLinks groups the documents attached to a project.
type ProjectLinks struct {
	Plans       []ProjectFile `json:"miseEnPlan"`
	Checksheets []ProjectFile `json:"fichesControle"`
	Stations    string        `json:"stations,omitempty"`
}

// Files returns every owned file tagged with its kind, plans first.
func (l ProjectLinks) Files() []ProjectFile {
	files := make([]ProjectFile, 0, len(l.Plans)+len(l.Checksheets))
	for _, f := range l.Plans {
		f.Kind = FilePlan
		files = append(files, f)
	}
	for _, f := range l.Checksheets {
		f.Kind = FileChecksheet
		files = append(files, f)
	}
	return files
}

// Project is a construction site.
type Project struct {
	ID              string        `json:"id"`
	Name            string        `json:"nom"`
	Description     string        `json:"description,omitempty"`
	FullDescription string        `json:"descriptionComplete,omitempty"`
	StartDate       string        `json:"dateDebut"`
	EndDate         string        `json:"dateFin,omitempty"`
	Status          ProjectStatus `json:"statut"`
	Links           ProjectLinks  `json:"liens"`
	CreatedAt       time.Time     `json:"dateCreation"`
}

// ProjectPatch is a partial update. A non-nil Links replaces the whole file set.
type ProjectPatch struct {
	Name            *string        `json:"nom,omitempty"`
	Description     *string        `json:"description,omitempty"`
	FullDescription *string        `json:"descriptionComplete,omitempty"`
	StartDate       *string        `json:"dateDebut,omitempty"`
	EndDate         *string        `json:"dateFin,omitempty"`
	Status          *ProjectStatus `json:"statut,omitempty"`
	Links           *ProjectLinks  `json:"liens,omitempty"`
}

// Phase is a named construction stage.
type Phase struct {
	ID   string    `json:"id"`
	Name string    `json:"nom"`
	Kind PhaseKind `json:"type"`
}

// Station is a surveying instrument.
type Station struct {
	ID           string        `json:"id"`
	Name         string        `json:"nom"`
	Model        string        `json:"modele"`
	SerialNumber string        `json:"numero"`
	Status       StationStatus `json:"statut"`
}

// Report is a single field observation. The *Name fields are snapshots taken
// at submission time and are never refreshed from the referenced records.
type Report struct {
	ID              string        `json:"id"`
	UserID          string        `json:"userId"`
	UserName        string        `json:"userName"`
	Date            string        `json:"date"`
	ProjectID       string        `json:"projetId"`
	ProjectName     string        `json:"projetNom"`
	PhaseID         string        `json:"phaseId"`
	PhaseName       string        `json:"phaseNom"`
	PhaseOther      string        `json:"phaseAutre,omitempty"`
	StructureType   StructureType `json:"typeStructure"`
	StructureNumber string        `json:"numeroStructure"`
	Tasks           []string      `json:"taches"`
	StationID       string        `json:"stationId"`
	StationName     string        `json:"stationNom"`
	Remarks         string        `json:"remarques"`
	Status          ReportStatus  `json:"statut"`
	CreatedAt       time.Time     `json:"dateCreation"`
}

// PhaseLabel is the phase shown to readers: the free text when the phase is "Autre".
func (r Report) PhaseLabel() string {
	if r.PhaseName == "Autre" && r.PhaseOther != "" {
		return r.PhaseOther
	}
	return r.PhaseName
}

// ActionLog is an append-only audit record.
type ActionLog struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

// Now is the timestamp used for every generated record: UTC, microsecond precision.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
