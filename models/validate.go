package models

import (
	"strings"
	"time"
)

// DateLayout is the layout of calendar dates (project start/end, report date).
const DateLayout = "2006-01-02"

func blank(s string) bool { return strings.TrimSpace(s) == "" }

func validDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	return r == RoleAdmin || r == RoleTopographer || r == RoleSupervisor
}

func (s ProjectStatus) Valid() bool {
	return s == ProjectActive || s == ProjectCompleted || s == ProjectSuspended
}

func (k FileKind) Valid() bool {
	return k == FilePlan || k == FileChecksheet || k == FileStationDoc
}

func (k PhaseKind) Valid() bool {
	return k == PhaseStandard || k == PhaseOther
}

func (s StationStatus) Valid() bool {
	return s == StationAvailable || s == StationInUse || s == StationMaintenance
}

func (t StructureType) Valid() bool {
	return t == StructurePier || t == StructureAbutment
}

func (s ReportStatus) Valid() bool {
	return s == ReportRecorded || s == ReportPrinted || s == ReportSentToOffice || s == ReportReceivedByOffice
}

// Validate checks the fields a new user must carry.
func (u *User) Validate() error {
	if blank(u.Name) {
		return invalid("user", "nom", "is required")
	}
	if u.Password == "" {
		return invalid("user", "motDePasse", "is required")
	}
	if !u.Role.Valid() {
		return invalid("user", "role", "must be admin, topographe or responsable")
	}
	return nil
}

func (p *UserPatch) Validate() error {
	if p.Name != nil && blank(*p.Name) {
		return invalid("user", "nom", "must not be empty")
	}
	if p.Password != nil && *p.Password == "" {
		return invalid("user", "motDePasse", "must not be empty")
	}
	if p.Role != nil && !p.Role.Valid() {
		return invalid("user", "role", "must be admin, topographe or responsable")
	}
	return nil
}

// Empty reports whether the patch changes nothing.
func (p *UserPatch) Empty() bool {
	return p.Name == nil && p.Password == nil && p.Role == nil && p.Active == nil
}

func (f *ProjectFile) Validate() error {
	if blank(f.Name) {
		return invalid("file", "nom", "is required")
	}
	if blank(f.Link) {
		return invalid("file", "lien", "is required")
	}
	if !f.Kind.Valid() {
		return invalid("file", "type", "must be plan, fiche or station")
	}
	return nil
}

func (l *ProjectLinks) Validate() error {
	for _, f := range l.Files() {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Project) Validate() error {
	if blank(p.Name) {
		return invalid("project", "nom", "is required")
	}
	if !validDate(p.StartDate) {
		return invalid("project", "dateDebut", "must be a YYYY-MM-DD date")
	}
	if p.EndDate != "" && !validDate(p.EndDate) {
		return invalid("project", "dateFin", "must be a YYYY-MM-DD date")
	}
	if !p.Status.Valid() {
		return invalid("project", "statut", "must be actif, termine or suspendu")
	}
	return p.Links.Validate()
}

func (p *ProjectPatch) Validate() error {
	if p.Name != nil && blank(*p.Name) {
		return invalid("project", "nom", "must not be empty")
	}
	if p.StartDate != nil && !validDate(*p.StartDate) {
		return invalid("project", "dateDebut", "must be a YYYY-MM-DD date")
	}
	if p.EndDate != nil && *p.EndDate != "" && !validDate(*p.EndDate) {
		return invalid("project", "dateFin", "must be a YYYY-MM-DD date")
	}
	if p.Status != nil && !p.Status.Valid() {
		return invalid("project", "statut", "must be actif, termine or suspendu")
	}
	if p.Links != nil {
		return p.Links.Validate()
	}
	return nil
}

func (p *Phase) Validate() error {
	if blank(p.Name) {
		return invalid("phase", "nom", "is required")
	}
	if !p.Kind.Valid() {
		return invalid("phase", "type", "must be standard or autre")
	}
	return nil
}

func (s *Station) Validate() error {
	if blank(s.Name) {
		return invalid("station", "nom", "is required")
	}
	if !s.Status.Valid() {
		return invalid("station", "statut", "must be disponible, en_utilisation or maintenance")
	}
	return nil
}

func (r *Report) Validate() error {
	switch {
	case blank(r.UserName):
		return invalid("report", "userName", "is required")
	case !validDate(r.Date):
		return invalid("report", "date", "must be a YYYY-MM-DD date")
	case blank(r.ProjectName):
		return invalid("report", "projetNom", "is required")
	case blank(r.PhaseName):
		return invalid("report", "phaseNom", "is required")
	case !r.StructureType.Valid():
		return invalid("report", "typeStructure", "must be pile or culee")
	case blank(r.StructureNumber):
		return invalid("report", "numeroStructure", "is required")
	case blank(r.StationName):
		return invalid("report", "stationNom", "is required")
	case !r.Status.Valid():
		return invalid("report", "statut", "is not a known status")
	}
	return nil
}

func (l *ActionLog) Validate() error {
	if blank(l.UserName) {
		return invalid("action log", "userName", "is required")
	}
	if blank(l.Action) {
		return invalid("action log", "action", "is required")
	}
	return nil
}

// ApplyDefaults fills the values the storage schema defaults when omitted.
func (p *Project) ApplyDefaults() {
	if p.Status == "" {
		p.Status = ProjectActive
	}
}

func (p *Phase) ApplyDefaults() {
	if p.Kind == "" {
		p.Kind = PhaseStandard
	}
}

func (s *Station) ApplyDefaults() {
	if s.Status == "" {
		s.Status = StationAvailable
	}
}

func (r *Report) ApplyDefaults() {
	if r.Status == "" {
		r.Status = ReportRecorded
	}
	if r.Tasks == nil {
		r.Tasks = []string{}
	}
}
