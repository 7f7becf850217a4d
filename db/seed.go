package db

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"seroest/auth"
	"seroest/models"
)

// DefaultPhases is the phase catalogue a fresh store starts with.
func DefaultPhases() []models.Phase {
	return []models.Phase{
		{ID: "phase-1", Name: "Fond feuille de la semelle", Kind: models.PhaseStandard},
		{ID: "phase-2", Name: "Ferraillage de la semelle", Kind: models.PhaseStandard},
		{ID: "phase-3", Name: "Coffrage de la semelle", Kind: models.PhaseStandard},
		{ID: "phase-4", Name: "Implantation des axes", Kind: models.PhaseStandard},
		{ID: "phase-5", Name: "Coffrage du fût", Kind: models.PhaseStandard},
		{ID: "phase-autre", Name: "Autre", Kind: models.PhaseOther},
	}
}

// DefaultStations is the instrument park a fresh store starts with.
func DefaultStations() []models.Station {
	return []models.Station{
		{ID: "station-1", Name: "Station 1", Model: "Leica TS06", SerialNumber: "TS06-1001", Status: models.StationAvailable},
		{ID: "station-2", Name: "Station 2", Model: "Trimble S5", SerialNumber: "S5-2002", Status: models.StationAvailable},
		{ID: "station-3", Name: "Station 3", Model: "Topcon GT", SerialNumber: "GT-3003", Status: models.StationMaintenance},
	}
}

// DefaultUsers returns the demo accounts with hashed passwords.
func DefaultUsers() ([]models.User, error) {
	demo := auth.DemoUsers()
	users := make([]models.User, 0, len(demo))
	for _, u := range demo {
		hash, err := auth.HashPassword(u.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password for %s: %w", u.ID, err)
		}
		u.Password = hash
		users = append(users, u)
	}
	return users, nil
}

// Seedable is a remote backend that can tell whether a table is empty.
type Seedable interface {
	Backend
	IsEmpty(ctx context.Context, table string) (bool, error)
}

// Seed fills empty phase, station and user tables with the defaults.
// Tables that already hold data are left alone.
func Seed(ctx context.Context, b Seedable, log logrus.FieldLogger) error {
	empty := func(table string) (bool, error) {
		ok, err := b.IsEmpty(ctx, table)
		if err != nil {
			return false, fmt.Errorf("inspect %s: %w", table, err)
		}
		if !ok {
			log.WithField("table", table).Info("  ↷ already populated, skipped")
		}
		return ok, nil
	}

	if ok, err := empty(tablePhases); err != nil {
		return err
	} else if ok {
		if err := b.ReplacePhases(ctx, DefaultPhases()); err != nil {
			return fmt.Errorf("seed phases: %w", err)
		}
		log.WithField("count", len(DefaultPhases())).Info("  ✓ phases created")
	}

	if ok, err := empty(tableStations); err != nil {
		return err
	} else if ok {
		if err := b.ReplaceStations(ctx, DefaultStations()); err != nil {
			return fmt.Errorf("seed stations: %w", err)
		}
		log.WithField("count", len(DefaultStations())).Info("  ✓ stations created")
	}

	ok, err := empty(tableUsers)
	if err != nil || !ok {
		return err
	}
	users, err := DefaultUsers()
	if err != nil {
		return err
	}
	for _, u := range users {
		if err := b.InsertUser(ctx, u); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Name, err)
		}
		log.WithFields(logrus.Fields{"user": u.Name, "role": u.Role}).Info("  ✓ user created")
	}
	return nil
}
