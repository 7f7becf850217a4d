// Package cli is the single-user console client. The logged-in user is kept
// in the local store between invocations.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/spf13/pflag"

	"seroest/app"
	"seroest/auth"
	"seroest/export"
	"seroest/lifecycle"
	"seroest/models"
)

// ErrUsage is returned for malformed command lines.
var ErrUsage = errors.New("usage")

const usage = `Usage:
  seroest serve                       run the HTTP API (default)
  seroest login NOM MOT_DE_PASSE      open a session
  seroest logout                      close the session
  seroest whoami                      show the session user
  seroest reports [--statut S]        list visible reports
  seroest status RAPPORT_ID STATUT    change a report status
  seroest export FICHIER.csv|.xlsx    export every report
`

// CLI runs console commands against an orchestrator bound to a persisted session.
type CLI struct {
	orch    *app.Orchestrator
	session *auth.Session
	out     io.Writer
}

func New(orch *app.Orchestrator, session *auth.Session, out io.Writer) *CLI {
	return &CLI{orch: orch, session: session, out: out}
}

// Usage prints the command summary.
func (c *CLI) Usage() { fmt.Fprint(c.out, usage) }

// Run executes args (without the program name).
func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		c.Usage()
		return ErrUsage
	}
	if err := c.session.Restore(ctx); err != nil {
		return err
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		return c.login(ctx, rest)
	case "logout":
		return c.logout(ctx)
	case "whoami":
		return c.whoami()
	case "reports":
		return c.reports(ctx, rest)
	case "status":
		return c.status(ctx, rest)
	case "export":
		return c.export(ctx, rest)
	case "help", "-h", "--help":
		c.Usage()
		return nil
	}
	c.Usage()
	return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
}

func (c *CLI) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: login NOM MOT_DE_PASSE", ErrUsage)
	}
	u, err := c.orch.Login(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Connecté: %s (%s)\n", u.Name, u.Role)
	return nil
}

func (c *CLI) logout(ctx context.Context) error {
	u, ok := c.session.Current()
	if !ok {
		fmt.Fprintln(c.out, "Aucune session ouverte")
		return nil
	}
	if err := c.orch.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Déconnecté: %s\n", u.Name)
	return nil
}

func (c *CLI) whoami() error {
	u, ok := c.session.Current()
	if !ok {
		return models.ErrNotAuthenticated
	}
	admin := ""
	if auth.IsMainAdmin(u) {
		admin = " [admin principal]"
	}
	fmt.Fprintf(c.out, "%s (%s)%s\n", u.Name, u.Role, admin)
	return nil
}

func (c *CLI) reports(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("reports", pflag.ContinueOnError)
	fs.SetOutput(c.out)
	status := fs.String("statut", "", "only reports with this status")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	reports, err := c.orch.Reports(ctx)
	if err != nil {
		return err
	}
	if *status != "" {
		reports = lo.Filter(reports, func(r models.Report, _ int) bool { return string(r.Status) == *status })
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTOPOGRAPHE\tPROJET\tPHASE\tSTRUCTURE\tSTATUT")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s %s\t%s\n",
			r.ID, r.Date, r.UserName, r.ProjectName, r.PhaseLabel(),
			r.StructureType, r.StructureNumber, lifecycle.Label(r.Status))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%d rapport(s)\n", len(reports))
	return nil
}

func (c *CLI) status(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: status RAPPORT_ID STATUT", ErrUsage)
	}
	status := models.ReportStatus(args[1])
	if err := c.orch.UpdateReportStatus(ctx, args[0], status); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Rapport %s: %s\n", args[0], lifecycle.Label(status))
	return nil
}

func (c *CLI) export(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: export FICHIER.csv|FICHIER.xlsx", ErrUsage)
	}
	path := args[0]

	var write func(io.Writer, []models.Report) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		write = export.WriteCSV
	case ".xlsx":
		write = export.WriteXLSX
	default:
		return fmt.Errorf("%w: export needs a .csv or .xlsx file", ErrUsage)
	}

	reports, err := c.orch.ExportReports(ctx)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f, reports); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%d rapport(s) exporté(s) vers %s\n", len(reports), path)
	return nil
}
