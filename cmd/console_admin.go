package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"seclabel/console"
	"seclabel/core"

	"github.com/spf13/cobra"
)

func newExportCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Create, track and download event exports",
	}
	cmd.AddCommand(newExportCreateCmd(o))
	cmd.AddCommand(newExportListCmd(o))
	cmd.AddCommand(newExportShowCmd(o))
	cmd.AddCommand(newExportDownloadCmd(o))
	return cmd
}

func newExportCreateCmd(o *options) *cobra.Command {
	var (
		filters filterFlags
		format  string
		wait    bool
		output  string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Queue an export of the events matching the filters",
		RunE: o.run(func(ctx context.Context, c *console.Client, p *printer, args []string) error {
			filter, err := filters.filter()
			if err != nil {
				return err
			}
			job, err := c.CreateExport(ctx, core.ExportRequest{Format: strings.ToLower(format), Filters: filter})
			if err != nil {
				return err
			}

			if wait || output != "" {
				s := p.spinner(fmt.Sprintf(" Export %d pending...", job.ID))
				job, err = c.WaitForExport(ctx, job.ID, pollInterval, func(j *core.ExportJob) {
					s.update(fmt.Sprintf(" Export %d %s...", j.ID, j.Status))
				})
				s.Stop()
				if err != nil {
					return err
				}
			}

			if output != "" && job.Status == core.ExportStatusCompleted {
				if _, err := downloadTo(ctx, c, job.FilePath, output); err != nil {
					return err
				}
			}

			if p.json {
				return p.outputJSON(job)
			}
			switch job.Status {
			case core.ExportStatusCompleted:
				p.success("Export %d completed: %d records in %s", job.ID, job.RecordCount, job.FilePath)
			case core.ExportStatusFailed:
				return fmt.Errorf("export %d failed: %s", job.ID, job.Message)
			default:
				p.success("Export %d queued (%s)", job.ID, job.Status)
			}
			return nil
		}),
	}

	filters.bind(cmd)
	cmd.Flags().StringVar(&format, "format", "", "Export format: csv or json (server default when empty)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the job to finish")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Wait and download the file to this path")
	return cmd
}

func newExportListCmd(o *options) *cobra.Command {
	var (
		status   string
		page     int
		pageSize int
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List export jobs, newest first",
		RunE: o.run(func(ctx context.Context, c *console.Client, p *printer, args []string) error {
			res, err := c.ListExportJobs(ctx, status, page, pageSize)
			if err != nil {
				return err
			}
			if p.json {
				return p.outputJSON(res)
			}
			p.exportJobsTable(res.Jobs)
			p.pagerFooter(console.Pager{Page: res.Page, PageSize: res.PageSize, TotalCount: res.TotalCount, TotalPages: res.TotalPages})
			return nil
		}),
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, processing, completed, failed)")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "Jobs per page")
	return cmd
}

func newExportShowCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one export job",
		Args:  cobra.ExactArgs(1),
		RunE: o.run(func(ctx context.Context, c *console.Client, p *printer, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			job, err := c.GetExportJob(ctx, id)
			if err != nil {
				return err
			}
			if p.json {
				return p.outputJSON(job)
			}
			p.exportJobDetails(job)
			return nil
		}),
	}
}

func newExportDownloadCmd(o *options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <file-name>",
		Short: "Download a finished export file",
		Args:  cobra.ExactArgs(1),
		RunE: o.run(func(ctx context.Context, c *console.Client, p *printer, args []string) error {
			name := args[0]
			if output == "" {
				output = filepath.Base(name)
			}
			if output == "-" {
				_, err := c.Download(ctx, name, p.w)
				return err
			}
			n, err := downloadTo(ctx, c, name, output)
			if err != nil {
				return err
			}
			p.success("Saved %s (%d bytes)", output, n)
			return nil
		}),
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination path, or - for stdout (default: the file name)")
	return cmd
}

// downloadTo streams an export file into a temp file beside path and renames
// it into place, so a failed download leaves any existing file untouched.
func downloadTo(ctx context.Context, c *console.Client, name, path string) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".seclabel-download-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := c.Download(ctx, name, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("failed to save %s: %w", path, err)
	}
	return n, nil
}

func newUsersCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage console users",
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List users",
		RunE: o.run(func(ctx context.Context, c *console.Client, p *printer, args []string) error {
			users, err := c.ListUsers(ctx)
			if err != nil {
				return err
			}
			if p.json {
				return p.outputJSON(users)
			}
			p.usersTable(users)
			return nil
		}),
	})

	var req core.CreateUserRequest
	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: o.run(func(ctx context.Context, c *console.Client, p *printer, args []string) error {
			req.Username = args[0]
			user, err := c.CreateUser(ctx, req)
			if err != nil {
				return err
			}
			if p.json {
				return p.outputJSON(user)
			}
			p.success("Created user %s (id %d, %s)", user.Username, user.ID, user.Role)
			return nil
		}),
	}
	add.Flags().StringVar(&req.Role, "role", core.RoleAnalyst, "Role: admin, analyst or viewer")
	add.Flags().StringVar(&req.Description, "description", "", "Description")
	add.Flags().StringVar(&req.Password, "password", "", "Optional password (8 characters or more)")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:     "delete <user-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a user",
		Args:    cobra.ExactArgs(1),
		RunE: o.run(func(ctx context.Context, c *console.Client, p *printer, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := c.DeleteUser(ctx, id); err != nil {
				return err
			}
			if p.json {
				return p.outputJSON(map[string]interface{}{"deleted": id})
			}
			p.success("Deleted user %d", id)
			return nil
		}),
	})

	return cmd
}

func newConfigCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and change server settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the system settings and SIEM connections",
		RunE: o.run(func(ctx context.Context, c *console.Client, p *printer, args []string) error {
			sys, err := c.GetSystemConfig(ctx)
			if err != nil {
				return err
			}
			apiCfg, err := c.GetAPIConfig(ctx)
			if err != nil && !console.IsNotFound(err) {
				return err
			}
			if p.json {
				return p.outputJSON(map[string]interface{}{"system": sys, "api": apiCfg})
			}
			p.systemConfig(sys)
			p.apiConfig(apiCfg)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <section.key=value>...",
		Short: "Change system settings",
		Long: `Change one or more system settings, for example:

  seclabel console config set ml.min_confidence_threshold=0.8 general.demo_mode_enabled=true

Values are read as booleans or numbers when they look like one; quote a value
("14.1") to keep it a string.`,
		Args: cobra.MinimumNArgs(1),
		RunE: o.run(func(ctx context.Context, c *console.Client, p *printer, args []string) error {
			patch, err := parseSettings(args)
			if err != nil {
				return err
			}
			sys, err := c.UpdateSystemConfig(ctx, patch)
			if err != nil {
				return err
			}
			if p.json {
				return p.outputJSON(sys)
			}
			p.success("Updated %d settings", len(args))
			return nil
		}),
	})

	var apiFlags core.APIConfig
	setAPI := &cobra.Command{
		Use:   "set-api",
		Short: "Save SIEM and ML connection settings",
		Long: `Save SIEM and ML connection settings. Omitted keys keep the stored key;
omitted URLs are cleared.`,
		RunE: o.run(func(ctx context.Context, c *console.Client, p *printer, args []string) error {
			saved, err := c.SaveAPIConfig(ctx, apiFlags)
			if err != nil {
				return err
			}
			if p.json {
				return p.outputJSON(saved)
			}
			p.success("Saved API settings")
			p.apiConfig(saved)
			return nil
		}),
	}
	setAPI.Flags().StringVar(&apiFlags.WazuhAPIURL, "wazuh-url", "", "Wazuh API URL")
	setAPI.Flags().StringVar(&apiFlags.WazuhAPIKey, "wazuh-key", "", "Wazuh API key")
	setAPI.Flags().StringVar(&apiFlags.SplunkAPIURL, "splunk-url", "", "Splunk API URL")
	setAPI.Flags().StringVar(&apiFlags.SplunkAPIKey, "splunk-key", "", "Splunk API key")
	setAPI.Flags().StringVar(&apiFlags.ElasticAPIURL, "elastic-url", "", "Elastic API URL")
	setAPI.Flags().StringVar(&apiFlags.ElasticAPIKey, "elastic-key", "", "Elastic API key")
	setAPI.Flags().StringVar(&apiFlags.MLAPIURL, "ml-url", "", "ML API URL")
	setAPI.Flags().StringVar(&apiFlags.MLAPIKey, "ml-key", "", "ML API key")
	cmd.AddCommand(setAPI)

	return cmd
}

// parseSettings turns section.key=value arguments into a system-config patch.
func parseSettings(args []string) (map[string]map[string]interface{}, error) {
	patch := make(map[string]map[string]interface{})
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid setting %q: expected section.key=value", arg)
		}
		section, key, ok := strings.Cut(strings.TrimSpace(name), ".")
		if !ok || section == "" || key == "" {
			return nil, fmt.Errorf("invalid setting name %q: expected section.key", name)
		}

		var value interface{}
		if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
			value = raw[1 : len(raw)-1]
		} else {
			value = core.ParseConfigValue(raw)
		}

		if patch[section] == nil {
			patch[section] = make(map[string]interface{})
		}
		patch[section][key] = value
	}
	return patch, nil
}

func newDashboardCmd(o *options) *cobra.Command {
	var timelineRange string

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show event statistics",
		RunE: o.run(func(ctx context.Context, c *console.Client, p *printer, args []string) error {
			d, err := c.Dashboard(ctx, timelineRange)
			if err != nil {
				return err
			}
			if p.json {
				return p.outputJSON(d)
			}
			p.dashboard(d)
			return nil
		}),
	}

	cmd.Flags().StringVar(&timelineRange, "range", core.TimelineRange7Days, "Timeline range: 24hours, 7days, 30days or 90days")
	return cmd
}

func newMLCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ml",
		Short: "Run and review ML classification",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the ML provider status",
		RunE: o.run(func(ctx context.Context, c *console.Client, p *printer, args []string) error {
			st, err := c.MLStatus(ctx)
			if err != nil {
				return err
			}
			if p.json {
				return p.outputJSON(st)
			}
			p.mlStatus(st)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "classify <event-id>...",
		Short: "Classify one or more events",
		Args:  cobra.MinimumNArgs(1),
		RunE: o.run(func(ctx context.Context, c *console.Client, p *printer, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, a := range args {
				id, err := parseID(a)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}

			var results []core.ClassificationResult
			if len(ids) == 1 {
				res, err := c.Classify(ctx, ids[0])
				if err != nil {
					return err
				}
				results = append(results, *res)
			} else {
				s := p.spinner(fmt.Sprintf(" Classifying %d events...", len(ids)))
				res, err := c.BatchClassify(ctx, ids)
				s.Stop()
				if err != nil {
					return err
				}
				results = res.Results
			}

			if p.json {
				return p.outputJSON(results)
			}
			p.classificationTable(results)
			return nil
		}),
	})

	var (
		verifyTP  string
		verify    core.VerifyRequest
		attack    string
		tactic    string
		technique string
		comment   string
	)
	verifyCmd := &cobra.Command{
		Use:   "verify <event-id>",
		Short: "Confirm or correct an ML label",
		Args:  cobra.ExactArgs(1),
		RunE: o.run(func(ctx context.Context, c *console.Client, p *printer, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if verify.TruePositive, err = parseOptionalBool("tp", verifyTP); err != nil {
				return err
			}
			for _, f := range []struct {
				value  string
				target **string
			}{
				{attack, &verify.AttackType},
				{tactic, &verify.MitreTactic},
				{technique, &verify.MitreTechnique},
				{comment, &verify.VerificationComment},
			} {
				if f.value != "" {
					v := f.value
					*f.target = &v
				}
			}

			e, err := c.VerifyLabel(ctx, id, verify)
			if err != nil {
				return err
			}
			if p.json {
				return p.outputJSON(e)
			}
			p.success("Verified event %d", id)
			return nil
		}),
	}
	verifyCmd.Flags().StringVar(&verifyTP, "tp", "", "Analyst verdict: true or false")
	verifyCmd.Flags().StringVar(&attack, "attack-type", "", "Corrected attack type")
	verifyCmd.Flags().StringVar(&tactic, "tactic", "", "Corrected MITRE tactic")
	verifyCmd.Flags().StringVar(&technique, "technique", "", "Corrected MITRE technique")
	verifyCmd.Flags().StringVar(&comment, "comment", "", "Verification comment")
	cmd.AddCommand(verifyCmd)

	var (
		update bool
		start  string
		end    string
		limit  int
	)
	metricsCmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show model metrics, or recompute them with --update",
		RunE: o.run(func(ctx context.Context, c *console.Client, p *printer, args []string) error {
			if update {
				res, err := c.UpdateMetrics(ctx, start, end)
				if err != nil {
					return err
				}
				if p.json {
					return p.outputJSON(res)
				}
				if !res.Success {
					p.warning("%s", res.Message)
					return nil
				}
				p.metricsDetails(res.Metrics)
				return nil
			}

			metrics, err := c.MLMetrics(ctx, limit)
			if err != nil {
				return err
			}
			if p.json {
				return p.outputJSON(metrics)
			}
			p.metricsTable(metrics)
			return nil
		}),
	}
	metricsCmd.Flags().BoolVar(&update, "update", false, "Recompute metrics from verified events")
	metricsCmd.Flags().StringVar(&start, "start", "", "Start date for --update (YYYY-MM-DD)")
	metricsCmd.Flags().StringVar(&end, "end", "", "End date for --update (YYYY-MM-DD)")
	metricsCmd.Flags().IntVar(&limit, "limit", 10, "Number of metric snapshots to show")
	cmd.AddCommand(metricsCmd)

	var page, pageSize int
	unverified := &cobra.Command{
		Use:   "unverified",
		Short: "List ML-labeled events awaiting verification",
		RunE: o.run(func(ctx context.Context, c *console.Client, p *printer, args []string) error {
			res, err := c.Unverified(ctx, page, pageSize)
			if err != nil {
				return err
			}
			if p.json {
				return p.outputJSON(res)
			}
			p.eventsTable(res.Events)
			p.pagerFooter(console.Pager{Page: res.Page, PageSize: res.PageSize, TotalCount: res.Total, TotalPages: res.TotalPages})
			return nil
		}),
	}
	unverified.Flags().IntVar(&page, "page", 1, "Page number")
	unverified.Flags().IntVar(&pageSize, "page-size", 50, "Events per page")
	cmd.AddCommand(unverified)

	return cmd
}

func newMitreCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mitre",
		Short: "Browse the MITRE ATT&CK catalog",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "tactics",
		Short: "List tactics",
		RunE: o.run(func(ctx context.Context, c *console.Client, p *printer, args []string) error {
			tactics, err := c.Tactics(ctx)
			if err != nil {
				return err
			}
			if p.json {
				return p.outputJSON(tactics)
			}
			p.section("Tactics")
			for _, t := range tactics {
				fmt.Fprintf(p.w, "  %-8s %s\n", t.ID, t.Name)
			}
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "techniques [tactic-id]",
		Short: "List techniques, optionally for one tactic",
		Args:  cobra.MaximumNArgs(1),
		RunE: o.run(func(ctx context.Context, c *console.Client, p *printer, args []string) error {
			tacticID := ""
			if len(args) == 1 {
				tacticID = args[0]
			}
			techniques, err := c.Techniques(ctx, tacticID)
			if err != nil {
				return err
			}
			if p.json {
				return p.outputJSON(techniques)
			}
			p.section("Techniques")
			for _, t := range techniques {
				fmt.Fprintf(p.w, "  %-10s %-45s %s\n", t.ID, t.Name, strings.Join(t.TacticIDs, ","))
			}
			return nil
		}),
	})

	return cmd
}

func newStatusCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show SIEM connection and ML provider status",
		RunE: o.run(func(ctx context.Context, c *console.Client, p *printer, args []string) error {
			st, err := c.ServicesStatus(ctx)
			if err != nil {
				return err
			}
			if p.json {
				return p.outputJSON(st)
			}
			p.section("SIEM Connections")
			names := make([]string, 0, len(st.SIEMs))
			for name := range st.SIEMs {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				p.field(name, formatServiceStatus(st.SIEMs[name]))
			}
			p.field("Sources", strings.Join(st.Sources, ", "))
			fmt.Fprintln(p.w)
			if st.ML != nil {
				p.mlStatus(st.ML)
			}
			return nil
		}),
	}
}
