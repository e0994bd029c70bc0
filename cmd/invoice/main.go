/*
main.go - Command-line pricing runs and calendar tools

PURPOSE:
  Prices a billing month from the configured sheets and writes one CSV per
  category, without starting the HTTP server. Also exposes the calendar,
  the overtime allocator and the invoice reconciliation as subcommands.

COMMANDS:
  invoice run --month 2024-01 [--categories salt,pti] [--plan plan.yaml] [--out out/] [--db invoice.db]
  invoice holidays --year 2024
  invoice split --date 2024-01-07 --start 14:00 --end 18:00 [--measure 100]
  invoice check --dataset washing --log log.csv --invoice out/washing.csv --month 2024-01
  invoice categories

  Settings come from --config, .env and PORTINV_* variables. A run exits
  non-zero when any category failed; failed categories are not written.
*/
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/warp/port-invoice/billing"
	"github.com/warp/port-invoice/config"
	"github.com/warp/port-invoice/export"
	"github.com/warp/port-invoice/factory"
	"github.com/warp/port-invoice/generic"
	"github.com/warp/port-invoice/ingest"
	"github.com/warp/port-invoice/reconcile"
	"github.com/warp/port-invoice/store/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "invoice",
		Short:         "Port logistics pricing runs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "YAML config file")
	root.AddCommand(newRunCmd(), newHolidaysCmd(), newSplitCmd(), newCheckCmd(), newCategoriesCmd())
	return root
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// =============================================================================
// RUN
// =============================================================================

type runFlags struct {
	plan       string
	month      string
	categories []string
	out        string
	db         string
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Price a billing period and write one CSV per category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPricing(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.plan, "plan", "", "Run plan (JSON or YAML); flags below override it")
	cmd.Flags().StringVar(&f.month, "month", "", "Billing month YYYY-MM")
	cmd.Flags().StringSliceVar(&f.categories, "categories", nil, "Categories to price (default: all)")
	cmd.Flags().StringVar(&f.out, "out", "", "Output directory (default: config output_dir)")
	cmd.Flags().StringVar(&f.db, "db", "", "Persist the run to this SQLite database")
	return cmd
}

func runPricing(cmd *cobra.Command, f runFlags) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := cfg.NewLogger(os.Stderr)

	pj := factory.PlanJSON{}
	if f.plan != "" {
		data, err := os.ReadFile(f.plan)
		if err != nil {
			return err
		}
		if pj, err = factory.DecodePlan(data, factory.FormatOf(f.plan)); err != nil {
			return err
		}
	}
	if f.month != "" {
		pj.Month, pj.Start, pj.End = f.month, "", ""
	}
	if len(f.categories) > 0 {
		pj.Categories = f.categories
	}
	if pj.Cutoffs == nil {
		pj.Cutoffs = cfg.Engine.Cutoffs
	}
	plan, err := pj.Build()
	if err != nil {
		return err
	}

	loader, closeCache, err := cfg.NewLoader(logger)
	if err != nil {
		return err
	}
	defer closeCache()

	runner := billing.NewRunner(loader, nil, nil, logger)
	runner.MaxParseFailureRatio = cfg.Engine.MaxParseFailureRatio
	if f.db != "" {
		store, err := sqlite.New(f.db)
		if err != nil {
			return err
		}
		defer store.Close()
		runner.Prices, runner.Runs = store, store
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	out, err := runner.Run(ctx, plan)
	if err != nil {
		return err
	}

	dir := firstNonEmpty(f.out, plan.OutputDir, cfg.OutputDir)
	paths, err := export.WriteRun(dir, out.Result)
	if err != nil {
		return err
	}

	printRun(cmd, out, paths)
	if failed := out.Result.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d categories failed: %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

func printRun(cmd *cobra.Command, out *billing.Outcome, paths []string) {
	w := cmd.OutOrStdout()
	r := out.Result
	fmt.Fprintf(w, "run %s period %s\n", r.ID, r.Period.String())
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "category\tlines\twarnings\ttotal\terror")
	for _, t := range r.Tables {
		errText := ""
		if t.Err != nil {
			errText = t.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", t.Category, len(t.Lines), len(t.Warnings), t.Total().StringFixed(2), errText)
	}
	tw.Flush()
	fmt.Fprintf(w, "total %s, %d files written\n", r.Total().StringFixed(2), len(paths))
	for name, err := range out.Unloaded {
		fmt.Fprintf(w, "table %s not loaded: %v\n", name, err)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// =============================================================================
// CALENDAR & OVERTIME
// =============================================================================

func newHolidaysCmd() *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "holidays",
		Short: "List the public holidays of a year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			set := generic.NewCalendar().HolidaysForYear(year)
			for _, d := range set.Dates() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n", generic.FormatDate(d), generic.Weekday(d).String()[:3], set[d])
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "Year")
	_ = cmd.MarkFlagRequired("year")
	return cmd
}

type splitFlags struct {
	date    string
	start   string
	end     string
	measure float64
}

func newSplitCmd() *cobra.Command {
	var f splitFlags
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Split a shift into normal, 150% and 200% buckets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSplit(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.date, "date", "", "Date (YYYY-MM-DD or DD/MM/YYYY)")
	cmd.Flags().StringVar(&f.start, "start", "", "Start time HH:MM")
	cmd.Flags().StringVar(&f.end, "end", "", "End time HH:MM")
	cmd.Flags().Float64Var(&f.measure, "measure", -1, "Measure to split (default: the interval's hours)")
	for _, name := range []string{"date", "start", "end"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func runSplit(cmd *cobra.Command, f splitFlags) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	d, err := generic.ParseDate(f.date)
	if err != nil {
		return err
	}
	s, err := generic.ParseClock(f.start)
	if err != nil {
		return err
	}
	e, err := generic.ParseClock(f.end)
	if err != nil {
		return err
	}

	dayType, dayName := generic.NewCalendar().Classify(d)
	iv := generic.Interval{Date: d, Start: s, End: e, DayType: dayType}
	alloc := generic.NewAllocator(cfg.Cutoffs())

	split := alloc.Hours(iv)
	if f.measure >= 0 {
		split = alloc.Allocate(iv, f.measure)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s (%s, %s)\n", generic.FormatDate(d), dayName, dayType)
	fmt.Fprintf(w, "  %-15s %g\n", generic.TierNormal.Label(), split.Normal)
	fmt.Fprintf(w, "  %-15s %g\n", generic.Tier150.Label(), split.OT150)
	fmt.Fprintf(w, "  %-15s %g\n", generic.Tier200.Label(), split.OT200)
	if err := alloc.Cutoffs.Check(iv); err != nil {
		slog.Warn("interval priced as fully normal", "error", err)
	}
	return nil
}

// =============================================================================
// CHECK
// =============================================================================

type checkFlags struct {
	dataset string
	log     string
	invoice string
	month   string
}

func newCheckCmd() *cobra.Command {
	var f checkFlags
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare an operations log with an invoice export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.dataset, "dataset", "", "Dataset: "+strings.Join(reconcile.Names(), ", "))
	cmd.Flags().StringVar(&f.log, "log", "", "Operations log CSV")
	cmd.Flags().StringVar(&f.invoice, "invoice", "", "Invoice CSV (an export of the same category)")
	cmd.Flags().StringVar(&f.month, "month", "", "Billing month YYYY-MM (default: every row)")
	for _, name := range []string{"dataset", "log", "invoice"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func runCheck(cmd *cobra.Command, f checkFlags) error {
	ds, err := reconcile.Lookup(f.dataset)
	if err != nil {
		return err
	}
	log, err := readCSV(f.log, "log")
	if err != nil {
		return err
	}
	inv, err := readCSV(f.invoice, ds.Name)
	if err != nil {
		return err
	}
	var period generic.Period
	if f.month != "" {
		if period, err = factory.ParseMonth(f.month); err != nil {
			return err
		}
	}

	report, err := reconcile.Diff(ds, log, inv, period)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s: %d logged, %d invoiced\n", report.Dataset, report.Logged, report.Invoiced)
	for _, e := range report.NotInvoiced {
		fmt.Fprintf(w, "  not invoiced  row %d  %s  %s\n", e.Row+2, generic.FormatDate(e.Date), e.Ref)
	}
	for _, e := range report.NotLogged {
		fmt.Fprintf(w, "  not logged    row %d  %s  %s\n", e.Row+2, generic.FormatDate(e.Date), e.Ref)
	}
	for _, warn := range report.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warn)
	}
	if !report.Clean() {
		return fmt.Errorf("%d rows not invoiced, %d rows not logged", len(report.NotInvoiced), len(report.NotLogged))
	}
	return nil
}

func readCSV(path, name string) (*generic.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ingest.DecodeCSV(name, f)
}

func newCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the registered pricing categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "category\tsources\tdescription")
			for _, p := range generic.ListPipelines() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Category, strings.Join(p.Sources, ","), p.Description)
			}
			return tw.Flush()
		},
	}
}
