// Package cmd provides the command-line interface for the seclabel console.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"seclabel/console"
	"seclabel/core"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

const (
	defaultServer  = "http://localhost:5000"
	defaultTimeout = 2 * time.Minute // context timeout for one CLI operation
	pollInterval   = time.Second
)

// options holds the global flags of one command tree.
type options struct {
	server     string
	outputJSON bool
	noColor    bool
	quiet      bool
	timeout    time.Duration
}

// client builds the REST client from the global flags.
func (o *options) client() (*console.Client, error) {
	return console.NewClient(o.server, o.timeout)
}

// run wraps a subcommand body with a timeout context, the REST client and
// the output printer. Request failures are reported with the server's message.
func (o *options) run(fn func(ctx context.Context, c *console.Client, p *printer, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
		defer cancel()

		c, err := o.client()
		if err != nil {
			return err
		}
		p := &printer{w: cmd.OutOrStdout(), json: o.outputJSON, quiet: o.quiet}
		if err := fn(ctx, c, p, args); err != nil {
			if msg := console.ErrorMessage(err); msg != err.Error() {
				return errors.New(msg)
			}
			return err
		}
		return nil
	}
}

// NewConsoleCmd creates the root console command with all subcommands.
func NewConsoleCmd() *cobra.Command {
	o := &options{}

	root := &cobra.Command{
		Use:   "console",
		Short: "Label SIEM events from the terminal",
		Long: `Browse, filter and label security events held by a seclabel server.

The console talks to the server's REST API. It covers event labeling, exports,
users, system settings, the dashboard and ML classification.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if o.noColor {
				color.NoColor = true
			}
		},
	}

	server := os.Getenv("SECLABEL_SERVER")
	if server == "" {
		server = defaultServer
	}
	root.PersistentFlags().StringVar(&o.server, "server", server, "Server base URL (env SECLABEL_SERVER)")
	root.PersistentFlags().BoolVar(&o.outputJSON, "json", false, "Output in JSON format")
	root.PersistentFlags().BoolVar(&o.noColor, "no-color", false, "Disable colored output")
	root.PersistentFlags().BoolVar(&o.quiet, "quiet", false, "Suppress non-essential output")
	root.PersistentFlags().DurationVar(&o.timeout, "timeout", console.DefaultTimeout, "Per-request timeout")

	root.AddCommand(newEventsCmd(o))
	root.AddCommand(newExportCmd(o))
	root.AddCommand(newUsersCmd(o))
	root.AddCommand(newConfigCmd(o))
	root.AddCommand(newDashboardCmd(o))
	root.AddCommand(newMLCmd(o))
	root.AddCommand(newMitreCmd(o))
	root.AddCommand(newStatusCmd(o))

	return root
}

func newEventsCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List, inspect, label and fetch events",
	}
	cmd.AddCommand(newEventsListCmd(o))
	cmd.AddCommand(newEventsShowCmd(o))
	cmd.AddCommand(newEventsLabelCmd(o))
	cmd.AddCommand(newEventsBatchLabelCmd(o))
	cmd.AddCommand(newEventsFetchCmd(o))
	return cmd
}

// filterFlags binds the event filter form to flags.
type filterFlags struct {
	severity   string
	source     string
	sourceIP   string
	attackType string
	reviewed   string
	from       string
	to         string
}

func (f *filterFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.severity, "severity", "", "Filter by severity (low, medium, high, critical)")
	cmd.Flags().StringVar(&f.source, "source", "", "Filter by SIEM source")
	cmd.Flags().StringVar(&f.sourceIP, "source-ip", "", "Filter by source IP")
	cmd.Flags().StringVar(&f.attackType, "attack-type", "", "Filter by attack type")
	cmd.Flags().StringVar(&f.reviewed, "reviewed", "", "Filter by manual review (true or false)")
	cmd.Flags().StringVar(&f.from, "from", "", "Earliest timestamp (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&f.to, "to", "", "Latest timestamp, inclusive")
}

func (f *filterFlags) form() (console.EventFilters, error) {
	reviewed, err := parseOptionalBool("reviewed", f.reviewed)
	if err != nil {
		return console.EventFilters{}, err
	}
	return console.EventFilters{
		Severity:     f.severity,
		SIEMSource:   f.source,
		SourceIP:     f.sourceIP,
		AttackType:   f.attackType,
		ManualReview: reviewed,
		DateFrom:     f.from,
		DateTo:       f.to,
	}, nil
}

// filter converts the flags into the server-side filter used by exports and
// batch labeling.
func (f *filterFlags) filter() (core.EventFilter, error) {
	form, err := f.form()
	if err != nil {
		return core.EventFilter{}, err
	}
	out := core.EventFilter{
		Severity:     strings.ToLower(strings.TrimSpace(form.Severity)),
		SIEMSource:   strings.TrimSpace(form.SIEMSource),
		SourceIP:     strings.TrimSpace(form.SourceIP),
		AttackType:   strings.TrimSpace(form.AttackType),
		ManualReview: form.ManualReview,
	}
	if form.DateFrom != "" {
		t, err := core.ParseFilterTime(form.DateFrom, false)
		if err != nil {
			return out, fmt.Errorf("invalid --from: %w", err)
		}
		out.DateFrom = &t
	}
	if form.DateTo != "" {
		t, err := core.ParseFilterTime(form.DateTo, true)
		if err != nil {
			return out, fmt.Errorf("invalid --to: %w", err)
		}
		out.DateTo = &t
	}
	return out, nil
}

func parseOptionalBool(name, v string) (*bool, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return nil, fmt.Errorf("--%s must be true or false", name)
	}
	return &b, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func newEventsListCmd(o *options) *cobra.Command {
	var (
		filters  filterFlags
		page     int
		pageSize int
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List events page by page",
		RunE: o.run(func(ctx context.Context, c *console.Client, p *printer, args []string) error {
			form, err := filters.form()
			if err != nil {
				return err
			}
			view := console.NewLabelingView(c, pageSize)
			view.Filters = form
			view.Pager.Page = max(page, 1)
			if err := view.Load(ctx); err != nil {
				return err
			}

			if p.json {
				return p.outputJSON(console.EventPage{
					Events:     view.Rows,
					Page:       view.Pager.Page,
					PageSize:   view.Pager.PageSize,
					TotalCount: view.Pager.TotalCount,
					TotalPages: view.Pager.TotalPages,
				})
			}
			p.eventsTable(view.Rows)
			p.pagerFooter(view.Pager)
			return nil
		}),
	}

	filters.bind(cmd)
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", console.DefaultPageSize, "Events per page")
	return cmd
}

func newEventsShowCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <event-id>",
		Short: "Show one event with its labels and raw logs",
		Args:  cobra.ExactArgs(1),
		RunE: o.run(func(ctx context.Context, c *console.Client, p *printer, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			e, err := c.GetEvent(ctx, id)
			if err != nil {
				return err
			}
			if p.json {
				return p.outputJSON(e)
			}
			p.eventDetails(e)
			return nil
		}),
	}
}

func newEventsLabelCmd(o *options) *cobra.Command {
	var (
		truePositive string
		attackType   string
		tactic       string
		technique    string
		tags         []string
		removeTags   []string
		clearTags    bool
	)

	cmd := &cobra.Command{
		Use:   "label <event-id>",
		Short: "Label an event",
		Long: `Label an event. The form starts from the event's current labels; flags
that are not given keep their current value.`,
		Args: cobra.ExactArgs(1),
		RunE: o.run(func(ctx context.Context, c *console.Client, p *printer, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			e, err := c.GetEvent(ctx, id)
			if err != nil {
				return err
			}

			form := console.FormFromEvent(*e)
			if truePositive != "" {
				if form.TruePositive, err = parseTruePositive(truePositive); err != nil {
					return err
				}
			}
			if attackType != "" {
				form.AttackType = attackType
			}
			if tactic != "" {
				form.MitreTactic = tactic
			}
			if technique != "" {
				form.MitreTechnique = technique
			}
			if clearTags {
				form.Tags = nil
			}
			for _, t := range removeTags {
				form.RemoveTag(t)
			}
			for _, t := range tags {
				if err := form.AddTag(t); err != nil {
					return err
				}
			}

			req, err := form.Request()
			if err != nil {
				return err
			}
			updated, err := c.LabelEvent(ctx, id, req)
			if err != nil {
				return err
			}

			if p.json {
				return p.outputJSON(updated)
			}
			p.success("Labeled event %d (%s)", updated.ID, updated.EventID)
			return nil
		}),
	}

	cmd.Flags().StringVar(&truePositive, "tp", "", "Verdict: true, false or unset")
	cmd.Flags().StringVar(&attackType, "attack-type", "", "Attack type")
	cmd.Flags().StringVar(&tactic, "tactic", "", "MITRE tactic")
	cmd.Flags().StringVar(&technique, "technique", "", "MITRE technique")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "Add a manual tag (repeatable)")
	cmd.Flags().StringArrayVar(&removeTags, "remove-tag", nil, "Remove a manual tag (repeatable)")
	cmd.Flags().BoolVar(&clearTags, "clear-tags", false, "Drop all existing manual tags first")
	return cmd
}

// parseTruePositive accepts true, false or unset; unset clears the verdict.
func parseTruePositive(v string) (*bool, error) {
	if strings.EqualFold(strings.TrimSpace(v), "unset") {
		return nil, nil
	}
	b, err := parseOptionalBool("tp", v)
	if err != nil {
		return nil, fmt.Errorf("--tp must be true, false or unset")
	}
	return b, nil
}

func newEventsBatchLabelCmd(o *options) *cobra.Command {
	var (
		filters      filterFlags
		truePositive string
		attackType   string
		tactic       string
		technique    string
		tags         []string
	)

	cmd := &cobra.Command{
		Use:   "batch-label",
		Short: "Merge labels into every event matching the filters",
		RunE: o.run(func(ctx context.Context, c *console.Client, p *printer, args []string) error {
			filter, err := filters.filter()
			if err != nil {
				return err
			}
			req := core.LabelRequest{
				AttackType:     attackType,
				MitreTactic:    tactic,
				MitreTechnique: technique,
				ManualTags:     core.Tags(tags),
			}
			if req.TruePositive, err = parseOptionalBool("tp", truePositive); err != nil {
				return err
			}
			req.Normalize()
			if req.IsEmpty() {
				return fmt.Errorf("nothing to apply: set --tp, --attack-type, --tactic, --technique or --tag")
			}
			if err := req.Validate(); err != nil {
				return err
			}

			res, err := c.BatchLabel(ctx, filter, req)
			if err != nil {
				return err
			}
			if p.json {
				return p.outputJSON(res)
			}
			p.success("Updated %d events", res.UpdatedCount)
			return nil
		}),
	}

	filters.bind(cmd)
	cmd.Flags().StringVar(&truePositive, "tp", "", "Verdict: true or false")
	cmd.Flags().StringVar(&attackType, "set-attack-type", "", "Attack type to apply")
	cmd.Flags().StringVar(&tactic, "tactic", "", "MITRE tactic")
	cmd.Flags().StringVar(&technique, "technique", "", "MITRE technique")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "Manual tag to add (repeatable)")
	return cmd
}

func newEventsFetchCmd(o *options) *cobra.Command {
	var (
		source string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Pull new events from a source",
		RunE: o.run(func(ctx context.Context, c *console.Client, p *printer, args []string) error {
			s := p.spinner(" Fetching events...")
			res, err := c.FetchEvents(ctx, source, limit)
			s.Stop()
			if err != nil {
				return err
			}
			if p.json {
				return p.outputJSON(res)
			}
			p.success("Fetched %d events from %s: %d imported, %d duplicates", res.Fetched, res.Source, res.Imported, res.Duplicates)
			if res.Failed > 0 {
				p.warning("%d events failed to import", res.Failed)
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&source, "source", "", "Event source (server default when empty)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum events to fetch (server default when 0)")
	return cmd
}
