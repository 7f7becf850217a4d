package auth

import (
	"time"

	"seroest/models"
)

var demoCreatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// DemoUsers returns the built-in accounts with plaintext passwords. They seed
// an empty store and serve as the last-resort credential list when the user
// collection cannot be read.
func DemoUsers() []models.User {
	return []models.User{
		{ID: "demo-admin-akram", Name: "Akram", Password: "akram2025", Role: models.RoleAdmin, Active: true, CreatedAt: demoCreatedAt},
		{ID: "demo-topo-akram", Name: "Akram", Password: "akram123", Role: models.RoleTopographer, Active: true, CreatedAt: demoCreatedAt},
		{ID: "demo-topo-bachir", Name: "Bachir", Password: "bachir123", Role: models.RoleTopographer, Active: true, CreatedAt: demoCreatedAt},
		{ID: "demo-resp-karim", Name: "Karim", Password: "karim2025", Role: models.RoleSupervisor, Active: true, CreatedAt: demoCreatedAt},
		{ID: "demo-topo-samir", Name: "Samir", Password: "samir123", Role: models.RoleTopographer, Active: true, CreatedAt: demoCreatedAt},
	}
}
