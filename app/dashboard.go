package app

import (
	"context"
	"sort"
	"time"

	"github.com/samber/lo"

	"seroest/auth"
	"seroest/models"
)

// Count is one bucket of a dashboard breakdown.
type Count struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Dashboard summarizes the report activity for supervisors.
type Dashboard struct {
	TotalReports       int                         `json:"totalRapports"`
	ReportsToday       int                         `json:"rapportsAujourdhui"`
	ActiveProjects     int                         `json:"projetsActifs"`
	ActiveTopographers int                         `json:"topographesActifs"`
	ByStatus           map[models.ReportStatus]int `json:"parStatut"`
	ByProject          []Count                     `json:"parProjet"`
	ByTopographer      []Count                     `json:"parTopographe"`
	Recent             []models.Report             `json:"recents"`
}

const recentReports = 5

// Dashboard computes the summary as of now.
func (o *Orchestrator) Dashboard(ctx context.Context) (Dashboard, error) {
	if _, err := o.require(auth.PermSupervise); err != nil {
		return Dashboard{}, err
	}
	if err := o.Refresh(ctx); err != nil {
		return Dashboard{}, err
	}

	o.data.mu.RLock()
	defer o.data.mu.RUnlock()
	return summarize(o.data.reports, o.data.projects, o.data.users, time.Now()), nil
}

func summarize(reports []models.Report, projects []models.Project, users []models.User, now time.Time) Dashboard {
	today := now.Format(models.DateLayout)
	d := Dashboard{
		TotalReports: len(reports),
		ByStatus:     make(map[models.ReportStatus]int, 4),
		ActiveProjects: lo.CountBy(projects, func(p models.Project) bool {
			return p.Status == models.ProjectActive
		}),
		ActiveTopographers: lo.CountBy(users, func(u models.User) bool {
			return u.Role == models.RoleTopographer && u.Active
		}),
	}

	byProject := map[string]*Count{}
	byUser := map[string]*Count{}
	for _, r := range reports {
		d.ByStatus[r.Status]++
		if r.Date == today {
			d.ReportsToday++
		}
		bump(byProject, r.ProjectID, r.ProjectName)
		bump(byUser, r.UserID, r.UserName)
	}
	d.ByProject = ranked(byProject)
	d.ByTopographer = ranked(byUser)

	sorted := append([]models.Report{}, reports...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })
	if len(sorted) > recentReports {
		sorted = sorted[:recentReports]
	}
	d.Recent = sorted
	return d
}

func bump(m map[string]*Count, key, label string) {
	c, ok := m[key]
	if !ok {
		c = &Count{Key: key, Label: label}
		m[key] = c
	}
	c.Count++
}

// ranked orders buckets by count, then label.
func ranked(m map[string]*Count) []Count {
	out := lo.Map(lo.Values(m), func(c *Count, _ int) Count { return *c })
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}
