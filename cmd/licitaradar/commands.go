package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/licitaradar/licitaradar/internal/api"
	"github.com/licitaradar/licitaradar/internal/classifier"
	"github.com/licitaradar/licitaradar/internal/config"
	"github.com/licitaradar/licitaradar/internal/model"
	"github.com/licitaradar/licitaradar/internal/pipeline"
	"github.com/licitaradar/licitaradar/internal/search"
	"github.com/licitaradar/licitaradar/internal/storage"
)

// --- sync ---

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch, classify and store procurement notices",
	Long: `Fetch, classify and store procurement notices.

The incremental mode syncs yesterday. The initial mode syncs every past
day of one month. Dates that already have a run are skipped.

Examples:
  licitaradar sync
  licitaradar sync --mode initial --month 1 --year 2025
  licitaradar sync --remote https://radar.example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		modeStr, _ := cmd.Flags().GetString("mode")
		month, _ := cmd.Flags().GetInt("month")
		year, _ := cmd.Flags().GetInt("year")
		remote, _ := cmd.Flags().GetString("remote")

		mode := pipeline.Mode(modeStr)
		my := pipeline.MonthYear{Month: month, Year: year}
		if err := pipeline.Validate(mode, my, time.Now()); err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if remote != "" {
			return runRemoteSync(ctx, newAPIClient(remote, cfg.Server.SyncSecret), mode, my)
		}

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		printStep("Syncing (%s)", mode)
		sum, err := a.orchestrator.RunMode(ctx, mode, my)
		for _, r := range sum.Reports {
			fmt.Println(formatReport(r))
		}
		if err != nil {
			return err
		}
		return reportSummary(sum.Runs, sum.RecordsFetched, sum.Failed, sum.Skipped)
	},
}

func init() {
	syncCmd.Flags().String("mode", string(pipeline.ModeIncremental), "incremental or initial")
	syncCmd.Flags().Int("month", 0, "month to load (initial mode)")
	syncCmd.Flags().Int("year", 0, "year to load (initial mode)")
	syncCmd.Flags().String("remote", "", "trigger the sync on a deployed server instead of running it locally")
}

func runRemoteSync(ctx context.Context, client *apiClient, mode pipeline.Mode, my pipeline.MonthYear) error {
	printStep("Triggering %s sync on %s", mode, client.baseURL)
	resp, err := client.post(ctx, "/api/sync", api.SyncRequest{Mode: string(mode), Month: my.Month, Year: my.Year})
	if err != nil {
		return err
	}
	var out api.SyncResponse
	if err := decodeJSON(resp, &out); err != nil {
		return err
	}
	if out.Error != "" {
		return fmt.Errorf("remote sync failed: %s", out.Error)
	}
	return reportSummary(out.Runs, out.RecordsFetched, out.Failed, out.Skipped)
}

func reportSummary(runs, fetched, failed, skipped int) error {
	if skipped > 0 {
		printWarning("%d date(s) already synced, skipped", skipped)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d run(s) failed", failed, runs)
	}
	printSuccess("%d run(s), %d record(s) fetched", runs, fetched)
	return nil
}

func formatReport(r pipeline.Report) string {
	line := fmt.Sprintf("%s  %-7s  fetched %d, viable %d, analyzed %d, written %d",
		r.Date, r.Status, r.Fetched, r.Viable, r.Analyzed, r.Written)
	if r.Error != "" {
		line += "  " + render(styleError, r.Error)
	}
	return line
}

// --- runs ---

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent sync runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		runs, err := store.ListSyncRuns(cmd.Context(), limit)
		if err != nil {
			return err
		}
		printRuns(cmd.OutOrStdout(), runs)
		return nil
	},
}

func init() {
	runsCmd.Flags().Int("limit", 30, "maximum number of runs to list")
}

func printRuns(w io.Writer, runs []model.SyncRun) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No sync runs recorded.")
		return
	}
	for _, r := range runs {
		fmt.Fprintln(w, formatRun(r))
	}
}

func formatRun(r model.SyncRun) string {
	status := string(r.Status)
	switch r.Status {
	case model.RunSuccess:
		status = render(styleSuccess, status)
	case model.RunFailed:
		status = render(styleError, status)
	}
	line := fmt.Sprintf("%s  %s  %d records", r.Date, status, r.RecordsFetched)
	if r.FinishedAt != nil {
		line += "  " + render(styleMuted, r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String())
	}
	if r.Error != "" {
		line += "  " + r.Error
	}
	return line
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <question>",
	Short: "Search stored notices with a free-text question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		exclude, _ := cmd.Flags().GetStringSlice("exclude")
		limit, _ := cmd.Flags().GetInt("limit")
		reclassify, _ := cmd.Flags().GetBool("reclassify")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.searcher.Search(ctx, search.Request{
			Question:   question,
			Exclusions: exclude,
			Reclassify: reclassify,
			Limit:      limit,
		}, func(e search.Event) {
			if msg := describeEvent(e); msg != "" {
				printStep("%s", msg)
			}
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(res.Records) == 0 {
			fmt.Fprintln(out, "Nenhuma licitação encontrada.")
			return nil
		}
		for i, p := range res.Records {
			fmt.Fprintln(out, formatProcurement(i+1, p))
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().StringSlice("exclude", nil, "terms the results must not mention")
	searchCmd.Flags().Int("limit", search.DefaultLimit, "maximum number of results")
	searchCmd.Flags().Bool("reclassify", false, "run the classifier again over the matches")
}

func describeEvent(e search.Event) string {
	switch e.Kind {
	case search.EventFilter:
		if e.Filter == nil {
			return ""
		}
		return "palavras-chave: " + strings.Join(e.Filter.Keywords, ", ")
	case search.EventMatches:
		return fmt.Sprintf("%d licitação(ões) no banco", e.Matches)
	case search.EventClassification:
		if e.Classification == nil {
			return ""
		}
		switch c := e.Classification; c.Kind {
		case classifier.EventStart:
			return fmt.Sprintf("classificando %d registro(s) em %d lote(s)", c.Total, c.Batches)
		case classifier.EventBatch:
			return fmt.Sprintf("lote %d/%d: %d viável(is)", c.Index, c.Batches, c.Viable)
		case classifier.EventDone:
			return fmt.Sprintf("%d viável(is)", c.Viable)
		}
	}
	return ""
}

func formatProcurement(n int, p model.Procurement) string {
	var b strings.Builder
	header := fmt.Sprintf("%d. %s", n, p.ControlNumber)
	if p.Relevance != nil {
		header += " [" + string(*p.Relevance) + "]"
	}
	fmt.Fprintln(&b, render(styleLabel, header))
	fmt.Fprintf(&b, "   %s | %s | %s\n", p.PublishedAt.Format("02/01/2006"), p.State, formatBRL(p.EstimatedValue))
	text := p.Description
	if p.Summary != nil && *p.Summary != "" {
		text = *p.Summary
	}
	if r := []rune(text); len(r) > 300 {
		text = string(r[:300]) + "..."
	}
	fmt.Fprintf(&b, "   %s", text)
	if p.SourceLink != "" {
		fmt.Fprintf(&b, "\n   %s", render(styleMuted, p.SourceLink))
	}
	return b.String()
}

// formatBRL renders v as Brazilian currency, e.g. R$ 1.250.000,50.
func formatBRL(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	cents := int64(v*100 + 0.5)
	intPart := fmt.Sprintf("%d", cents/100)

	var groups []string
	for len(intPart) > 3 {
		groups = append([]string{intPart[len(intPart)-3:]}, groups...)
		intPart = intPart[:len(intPart)-3]
	}
	groups = append([]string{intPart}, groups...)

	s := fmt.Sprintf("R$ %s,%02d", strings.Join(groups, "."), cents%100)
	if neg {
		s = "-" + s
	}
	return s
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", render(styleLabel, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			fmt.Fprintf(os.Stderr, "valid keys: %s\n", strings.Join(config.ValidKeys(), ", "))
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
