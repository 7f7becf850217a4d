package db

import (
	"sort"
	"time"

	"github.com/lib/pq"

	"seroest/models"
)

// Storage rows. Column names follow the remote schema; gorm and Firestore
// read the same tags so both remote backends share one layout.

type userRow struct {
	ID           string    `gorm:"column:id;primaryKey;size:36" firestore:"id"`
	Nom          string    `gorm:"column:nom;not null;index" firestore:"nom"`
	MotDePasse   string    `gorm:"column:mot_de_passe;not null" firestore:"mot_de_passe"`
	Role         string    `gorm:"column:role;size:20;not null" firestore:"role"`
	Actif        bool      `gorm:"column:actif;not null" firestore:"actif"`
	DateCreation time.Time `gorm:"column:date_creation" firestore:"date_creation"`
	UpdatedAt    time.Time `gorm:"column:updated_at" firestore:"updated_at"`
}

func (userRow) TableName() string { return tableUsers }

type projectRow struct {
	ID                  string    `gorm:"column:id;primaryKey;size:36" firestore:"id"`
	Nom                 string    `gorm:"column:nom;not null" firestore:"nom"`
	Description         string    `gorm:"column:description;type:text" firestore:"description"`
	DescriptionComplete string    `gorm:"column:description_complete;type:text" firestore:"description_complete"`
	DateDebut           string    `gorm:"column:date_debut;size:10;not null" firestore:"date_debut"`
	DateFin             string    `gorm:"column:date_fin;size:10" firestore:"date_fin"`
	Statut              string    `gorm:"column:statut;size:20;not null" firestore:"statut"`
	LiensStations       string    `gorm:"column:liens_stations;type:text" firestore:"liens_stations"`
	CreatedAt           time.Time `gorm:"column:created_at" firestore:"created_at"`
	UpdatedAt           time.Time `gorm:"column:updated_at" firestore:"updated_at"`
}

func (projectRow) TableName() string { return tableProjects }

type fileRow struct {
	ID        string    `gorm:"column:id;primaryKey;size:36" firestore:"id"`
	ProjetID  string    `gorm:"column:projet_id;size:36;index" firestore:"projet_id"`
	Nom       string    `gorm:"column:nom;not null" firestore:"nom"`
	Lien      string    `gorm:"column:lien;type:text;not null" firestore:"lien"`
	Type      string    `gorm:"column:type;size:10;not null" firestore:"type"`
	CreatedAt time.Time `gorm:"column:created_at" firestore:"created_at"`
}

func (fileRow) TableName() string { return tableFiles }

type phaseRow struct {
	ID        string    `gorm:"column:id;primaryKey;size:36" firestore:"id"`
	Nom       string    `gorm:"column:nom;not null" firestore:"nom"`
	Type      string    `gorm:"column:type;size:10;not null" firestore:"type"`
	CreatedAt time.Time `gorm:"column:created_at" firestore:"created_at"`
}

func (phaseRow) TableName() string { return tablePhases }

type stationRow struct {
	ID        string    `gorm:"column:id;primaryKey;size:36" firestore:"id"`
	Nom       string    `gorm:"column:nom;not null" firestore:"nom"`
	Modele    string    `gorm:"column:modele;not null" firestore:"modele"`
	Numero    string    `gorm:"column:numero;not null" firestore:"numero"`
	Statut    string    `gorm:"column:statut;size:20;not null" firestore:"statut"`
	CreatedAt time.Time `gorm:"column:created_at" firestore:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" firestore:"updated_at"`
}

func (stationRow) TableName() string { return tableStations }

type reportRow struct {
	ID              string         `gorm:"column:id;primaryKey;size:36" firestore:"id"`
	UserID          string         `gorm:"column:user_id;size:36" firestore:"user_id"`
	UserName        string         `gorm:"column:user_name;not null" firestore:"user_name"`
	Date            string         `gorm:"column:date;size:10;not null" firestore:"date"`
	ProjetID        string         `gorm:"column:projet_id;size:36" firestore:"projet_id"`
	ProjetNom       string         `gorm:"column:projet_nom;not null" firestore:"projet_nom"`
	PhaseID         string         `gorm:"column:phase_id;size:36" firestore:"phase_id"`
	PhaseNom        string         `gorm:"column:phase_nom;not null" firestore:"phase_nom"`
	PhaseAutre      string         `gorm:"column:phase_autre" firestore:"phase_autre"`
	TypeStructure   string         `gorm:"column:type_structure;size:10;not null" firestore:"type_structure"`
	NumeroStructure string         `gorm:"column:numero_structure;not null" firestore:"numero_structure"`
	Taches          pq.StringArray `gorm:"column:taches;type:text[]" firestore:"taches"`
	StationID       string         `gorm:"column:station_id;size:36" firestore:"station_id"`
	StationNom      string         `gorm:"column:station_nom;not null" firestore:"station_nom"`
	Remarques       string         `gorm:"column:remarques;type:text" firestore:"remarques"`
	Statut          string         `gorm:"column:statut;size:20;not null" firestore:"statut"`
	CreatedAt       time.Time      `gorm:"column:created_at;index" firestore:"created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at" firestore:"updated_at"`
}

func (reportRow) TableName() string { return tableReports }

type actionLogRow struct {
	ID        string    `gorm:"column:id;primaryKey;size:36" firestore:"id"`
	UserID    string    `gorm:"column:user_id;size:36" firestore:"user_id"`
	UserName  string    `gorm:"column:user_name;not null" firestore:"user_name"`
	Action    string    `gorm:"column:action;not null" firestore:"action"`
	Details   string    `gorm:"column:details;type:text" firestore:"details"`
	Timestamp time.Time `gorm:"column:timestamp;index" firestore:"timestamp"`
}

func (actionLogRow) TableName() string { return tableActionLogs }

// allRows is the migration order.
var allRows = []any{
	&userRow{},
	&projectRow{},
	&fileRow{},
	&phaseRow{},
	&stationRow{},
	&reportRow{},
	&actionLogRow{},
}

// --- entity <-> row ---

func toUserRow(u models.User) userRow {
	return userRow{
		ID:           u.ID,
		Nom:          u.Name,
		MotDePasse:   u.Password,
		Role:         string(u.Role),
		Actif:        u.Active,
		DateCreation: u.CreatedAt,
		UpdatedAt:    u.CreatedAt,
	}
}

func (r userRow) model() models.User {
	return models.User{
		ID:        r.ID,
		Name:      r.Nom,
		Password:  r.MotDePasse,
		Role:      models.UserRole(r.Role),
		Active:    r.Actif,
		CreatedAt: r.DateCreation.UTC(),
	}
}

func toProjectRow(p models.Project) projectRow {
	return projectRow{
		ID:                  p.ID,
		Nom:                 p.Name,
		Description:         p.Description,
		DescriptionComplete: p.FullDescription,
		DateDebut:           p.StartDate,
		DateFin:             p.EndDate,
		Statut:              string(p.Status),
		LiensStations:       p.Links.Stations,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.CreatedAt,
	}
}

// toFileRows tags files with their owner. Creation times are spaced one
// microsecond apart so that ordering by created_at restores insertion order.
func toFileRows(projectID string, files []models.ProjectFile, at time.Time) []fileRow {
	rows := make([]fileRow, 0, len(files))
	for i, f := range files {
		rows = append(rows, fileRow{
			ID:        f.ID,
			ProjetID:  projectID,
			Nom:       f.Name,
			Lien:      f.Link,
			Type:      string(f.Kind),
			CreatedAt: at.Add(time.Duration(i) * time.Microsecond),
		})
	}
	return rows
}

func (r fileRow) model() models.ProjectFile {
	return models.ProjectFile{
		ID:        r.ID,
		ProjectID: r.ProjetID,
		Name:      r.Nom,
		Link:      r.Lien,
		Kind:      models.FileKind(r.Type),
	}
}

// assembleProjects joins project rows with their file rows.
func assembleProjects(rows []projectRow, files []fileRow) []models.Project {
	sort.SliceStable(files, func(i, j int) bool { return files[i].CreatedAt.Before(files[j].CreatedAt) })
	byProject := make(map[string][]fileRow, len(rows))
	for _, f := range files {
		byProject[f.ProjetID] = append(byProject[f.ProjetID], f)
	}
	out := make([]models.Project, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model(byProject[r.ID]))
	}
	return out
}

func (r projectRow) model(files []fileRow) models.Project {
	links := models.ProjectLinks{
		Plans:       []models.ProjectFile{},
		Checksheets: []models.ProjectFile{},
		Stations:    r.LiensStations,
	}
	for _, f := range files {
		switch models.FileKind(f.Type) {
		case models.FilePlan:
			links.Plans = append(links.Plans, f.model())
		case models.FileChecksheet:
			links.Checksheets = append(links.Checksheets, f.model())
		}
	}
	return models.Project{
		ID:              r.ID,
		Name:            r.Nom,
		Description:     r.Description,
		FullDescription: r.DescriptionComplete,
		StartDate:       r.DateDebut,
		EndDate:         r.DateFin,
		Status:          models.ProjectStatus(r.Statut),
		Links:           links,
		CreatedAt:       r.CreatedAt.UTC(),
	}
}

func toPhaseRows(phases []models.Phase, at time.Time) []phaseRow {
	rows := make([]phaseRow, 0, len(phases))
	for _, p := range phases {
		rows = append(rows, phaseRow{ID: p.ID, Nom: p.Name, Type: string(p.Kind), CreatedAt: at})
	}
	return rows
}

func (r phaseRow) model() models.Phase {
	return models.Phase{ID: r.ID, Name: r.Nom, Kind: models.PhaseKind(r.Type)}
}

func toStationRows(stations []models.Station, at time.Time) []stationRow {
	rows := make([]stationRow, 0, len(stations))
	for _, s := range stations {
		rows = append(rows, stationRow{
			ID:        s.ID,
			Nom:       s.Name,
			Modele:    s.Model,
			Numero:    s.SerialNumber,
			Statut:    string(s.Status),
			CreatedAt: at,
			UpdatedAt: at,
		})
	}
	return rows
}

func (r stationRow) model() models.Station {
	return models.Station{
		ID:           r.ID,
		Name:         r.Nom,
		Model:        r.Modele,
		SerialNumber: r.Numero,
		Status:       models.StationStatus(r.Statut),
	}
}

func toReportRow(r models.Report) reportRow {
	return reportRow{
		ID:              r.ID,
		UserID:          r.UserID,
		UserName:        r.UserName,
		Date:            r.Date,
		ProjetID:        r.ProjectID,
		ProjetNom:       r.ProjectName,
		PhaseID:         r.PhaseID,
		PhaseNom:        r.PhaseName,
		PhaseAutre:      r.PhaseOther,
		TypeStructure:   string(r.StructureType),
		NumeroStructure: r.StructureNumber,
		Taches:          pq.StringArray(append([]string{}, r.Tasks...)),
		StationID:       r.StationID,
		StationNom:      r.StationName,
		Remarques:       r.Remarks,
		Statut:          string(r.Status),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.CreatedAt,
	}
}

func (r reportRow) model() models.Report {
	tasks := []string(r.Taches)
	if tasks == nil {
		tasks = []string{}
	}
	return models.Report{
		ID:              r.ID,
		UserID:          r.UserID,
		UserName:        r.UserName,
		Date:            r.Date,
		ProjectID:       r.ProjetID,
		ProjectName:     r.ProjetNom,
		PhaseID:         r.PhaseID,
		PhaseName:       r.PhaseNom,
		PhaseOther:      r.PhaseAutre,
		StructureType:   models.StructureType(r.TypeStructure),
		StructureNumber: r.NumeroStructure,
		Tasks:           tasks,
		StationID:       r.StationID,
		StationName:     r.StationNom,
		Remarks:         r.Remarques,
		Status:          models.ReportStatus(r.Statut),
		CreatedAt:       r.CreatedAt.UTC(),
	}
}

func toActionLogRow(l models.ActionLog) actionLogRow {
	return actionLogRow{
		ID:        l.ID,
		UserID:    l.UserID,
		UserName:  l.UserName,
		Action:    l.Action,
		Details:   l.Details,
		Timestamp: l.Timestamp,
	}
}

func (r actionLogRow) model() models.ActionLog {
	return models.ActionLog{
		ID:        r.ID,
		UserID:    r.UserID,
		UserName:  r.UserName,
		Action:    r.Action,
		Details:   r.Details,
		Timestamp: r.Timestamp.UTC(),
	}
}

// --- patches -> column maps ---

// userPatchColumns returns the storage columns a patch changes.
func userPatchColumns(p models.UserPatch) map[string]any {
	values := map[string]any{}
	if p.Name != nil {
		values["nom"] = *p.Name
	}
	if p.Password != nil {
		values["motDePasse"] = *p.Password
	}
	if p.Role != nil {
		values["role"] = string(*p.Role)
	}
	if p.Active != nil {
		values["actif"] = *p.Active
	}
	return UserFields.Columns(values)
}

func projectPatchColumns(p models.ProjectPatch) map[string]any {
	values := map[string]any{}
	if p.Name != nil {
		values["nom"] = *p.Name
	}
	if p.Description != nil {
		values["description"] = *p.Description
	}
	if p.FullDescription != nil {
		values["descriptionComplete"] = *p.FullDescription
	}
	if p.StartDate != nil {
		values["dateDebut"] = *p.StartDate
	}
	if p.EndDate != nil {
		values["dateFin"] = *p.EndDate
	}
	if p.Status != nil {
		values["statut"] = string(*p.Status)
	}
	if p.Links != nil {
		values["liens.stations"] = p.Links.Stations
	}
	return ProjectFields.Columns(values)
}

func reportStatusColumns(status models.ReportStatus) map[string]any {
	return ReportFields.Columns(map[string]any{"statut": string(status)})
}
