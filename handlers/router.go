package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"seroest/app"
	"seroest/auth"
	"seroest/config"
	"seroest/metrics"
	"seroest/middleware"
	"seroest/models"
)

// Router wires every API route to its handler.
type Router struct {
	Orchestrator *app.Orchestrator
	JWT          *auth.JWTManager
	Users        auth.UserSource
	RateLimiter  *middleware.RateLimiter
	CORS         config.CORSConfig
	Log          logrus.FieldLogger
}

// Handler builds the full middleware chain around the route table.
func (rt Router) Handler() http.Handler {
	authHandler := NewAuthHandler(rt.Orchestrator, rt.JWT, rt.Users, rt.Log)
	adminHandler := NewAdminHandler(rt.Orchestrator, rt.Log)
	fieldHandler := NewFieldHandler(rt.Orchestrator, rt.Log)
	supervisorHandler := NewSupervisorHandler(rt.Orchestrator, rt.Log)

	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("POST /api/login", authHandler.Login)
	mux.HandleFunc("POST /api/refresh", authHandler.RefreshToken)
	mux.Handle("GET /metrics", metrics.Handler())

	// Protected routes. The orchestrator enforces roles; supervisor routes are also gated here.
	protected := middleware.AuthMiddleware(rt.JWT, rt.Users, rt.Log)
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, protected(h))
	}
	supervisorOrAdmin := middleware.RequireRole(models.RoleAdmin, models.RoleSupervisor)
	handleSupervisor := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, protected(supervisorOrAdmin(h)))
	}

	handle("POST /api/logout", authHandler.Logout)
	handle("GET /api/me", authHandler.Me)

	handleSupervisor("GET /api/users", adminHandler.GetUsers)
	handle("POST /api/users", adminHandler.CreateUser)
	handle("PUT /api/users/{id}", adminHandler.UpdateUser)
	handle("DELETE /api/users/{id}", adminHandler.DeleteUser)

	handle("GET /api/projects", fieldHandler.GetProjects)
	handle("POST /api/projects", adminHandler.CreateProject)
	handle("PUT /api/projects/{id}", adminHandler.UpdateProject)
	handle("DELETE /api/projects/{id}", adminHandler.DeleteProject)

	handle("GET /api/phases", fieldHandler.GetPhases)
	handle("PUT /api/phases", adminHandler.UpdatePhases)
	handle("GET /api/stations", fieldHandler.GetStations)
	handle("PUT /api/stations", adminHandler.UpdateStations)

	handle("GET /api/reports", supervisorHandler.GetReports)
	handle("POST /api/reports", fieldHandler.SubmitReport)
	handleSupervisor("PUT /api/reports/{id}/status", supervisorHandler.UpdateReportStatus)
	handleSupervisor("GET /api/reports/export.csv", supervisorHandler.ExportCSV)
	handleSupervisor("GET /api/reports/export.xlsx", supervisorHandler.ExportXLSX)

	handle("GET /api/logs", adminHandler.GetActionLogs)
	handleSupervisor("GET /api/dashboard", supervisorHandler.Dashboard)

	var handler http.Handler = mux
	if rt.RateLimiter != nil {
		handler = rt.RateLimiter.Middleware()(handler)
	}
	handler = middleware.CORSMiddleware(rt.CORS.AllowedOrigins)(handler)
	return middleware.Metrics(handler)
}

// Health check endpoint
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":%d,"version":"1.0.0"}`, time.Now().Unix())
}
