package db

import (
	"fmt"
	"sort"
)

// FieldMap translates application field names (JSON, camel-case) to storage
// column names (snake-case) and back. Every map is a bijection.
type FieldMap struct {
	table    string
	toColumn map[string]string
	toField  map[string]string
}

func newFieldMap(table string, pairs ...string) FieldMap {
	if len(pairs)%2 != 0 {
		panic(fmt.Sprintf("db: odd field pairs for %s", table))
	}
	m := FieldMap{
		table:    table,
		toColumn: make(map[string]string, len(pairs)/2),
		toField:  make(map[string]string, len(pairs)/2),
	}
	for i := 0; i < len(pairs); i += 2 {
		field, column := pairs[i], pairs[i+1]
		if _, dup := m.toColumn[field]; dup {
			panic(fmt.Sprintf("db: duplicate field %s.%s", table, field))
		}
		if _, dup := m.toField[column]; dup {
			panic(fmt.Sprintf("db: duplicate column %s.%s", table, column))
		}
		m.toColumn[field] = column
		m.toField[column] = field
	}
	return m
}

// Table is the storage table (or collection) name.
func (m FieldMap) Table() string { return m.table }

// Column returns the storage column for an application field.
func (m FieldMap) Column(field string) (string, bool) {
	c, ok := m.toColumn[field]
	return c, ok
}

// Field returns the application field for a storage column.
func (m FieldMap) Field(column string) (string, bool) {
	f, ok := m.toField[column]
	return f, ok
}

// Fields lists the application field names in sorted order.
func (m FieldMap) Fields() []string {
	out := make([]string, 0, len(m.toColumn))
	for f := range m.toColumn {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Columns converts a map keyed by application field into one keyed by column.
// Unknown fields are a programming error and panic.
func (m FieldMap) Columns(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for field, v := range values {
		column, ok := m.toColumn[field]
		if !ok {
			panic(fmt.Sprintf("db: unknown field %s.%s", m.table, field))
		}
		out[column] = v
	}
	return out
}

const (
	tableUsers      = "users"
	tableProjects   = "projets"
	tableFiles      = "fichiers_drive"
	tablePhases     = "phases"
	tableStations   = "stations"
	tableReports    = "rapports"
	tableActionLogs = "action_logs"
)

var (
	UserFields = newFieldMap(tableUsers,
		"id", "id",
		"nom", "nom",
		"motDePasse", "mot_de_passe",
		"role", "role",
		"actif", "actif",
		"dateCreation", "date_creation",
	)
	ProjectFields = newFieldMap(tableProjects,
		"id", "id",
		"nom", "nom",
		"description", "description",
		"descriptionComplete", "description_complete",
		"dateDebut", "date_debut",
		"dateFin", "date_fin",
		"statut", "statut",
		"liens.stations", "liens_stations",
		"dateCreation", "created_at",
	)
	ProjectFileFields = newFieldMap(tableFiles,
		"id", "id",
		"projetId", "projet_id",
		"nom", "nom",
		"lien", "lien",
		"type", "type",
	)
	PhaseFields = newFieldMap(tablePhases,
		"id", "id",
		"nom", "nom",
		"type", "type",
	)
	StationFields = newFieldMap(tableStations,
		"id", "id",
		"nom", "nom",
		"modele", "modele",
		"numero", "numero",
		"statut", "statut",
	)
	ReportFields = newFieldMap(tableReports,
		"id", "id",
		"userId", "user_id",
		"userName", "user_name",
		"date", "date",
		"projetId", "projet_id",
		"projetNom", "projet_nom",
		"phaseId", "phase_id",
		"phaseNom", "phase_nom",
		"phaseAutre", "phase_autre",
		"typeStructure", "type_structure",
		"numeroStructure", "numero_structure",
		"taches", "taches",
		"stationId", "station_id",
		"stationNom", "station_nom",
		"remarques", "remarques",
		"statut", "statut",
		"dateCreation", "created_at",
	)
	ActionLogFields = newFieldMap(tableActionLogs,
		"id", "id",
		"userId", "user_id",
		"userName", "user_name",
		"action", "action",
		"details", "details",
		"timestamp", "timestamp",
	)
)
