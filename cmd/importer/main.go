// Command importer runs the bank statement import pipeline from the shell:
// analyze a file's schema, or import it against a local profile store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/inmoledger/inmoledger/internal/domain/import/columns"
	"github.com/inmoledger/inmoledger/internal/domain/import/profile"
	"github.com/inmoledger/inmoledger/internal/domain/import/service"
	"github.com/inmoledger/inmoledger/pkg/config"
	"github.com/inmoledger/inmoledger/pkg/money"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	profiles *profile.Service
	store    profile.Store
}

func newRootCmd() *cobra.Command {
	var a app

	root := &cobra.Command{
		Use:           "importer",
		Short:         "Universal bank statement importer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg
			a.logger = newLogger(cfg.Logging)

			store, err := newProfileStore(cmd.Context(), cfg.Profiles)
			if err != nil {
				return err
			}
			a.store = store
			a.profiles = profile.NewService(store, a.logger)

			if cfg.Metrics.Enabled {
				go serveMetrics(a.logger, cfg.Metrics.Port)
			}
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.store != nil {
				return a.store.Close()
			}
			return nil
		},
	}

	root.AddCommand(newAnalyzeCmd(&a), newImportCmd(&a), newProfilesCmd(&a))
	return root
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func newProfileStore(ctx context.Context, cfg config.ProfileStoreConfig) (profile.Store, error) {
	switch cfg.Backend {
	case "memory":
		return profile.NewMemoryStore(0), nil
	case "sqlite", "":
		return profile.NewSQLiteStore(ctx, cfg.Path)
	default:
		return nil, fmt.Errorf("unknown profile store backend %q", cfg.Backend)
	}
}

func readStatement(path string, maxSize int64) (service.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return service.File{}, err
	}
	if info.Size() > maxSize {
		return service.File{}, fmt.Errorf("%s exceeds the %d byte limit", path, maxSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return service.File{}, err
	}
	return service.File{
		Name: filepath.Base(path),
		MIME: mime.TypeByExtension(filepath.Ext(path)),
		Data: data,
	}, nil
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Inspect a statement file without importing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := readStatement(args[0], a.cfg.Importer.MaxFileSizeBytes)
			if err != nil {
				return err
			}
			res, err := service.NewImporter(a.profiles, a.logger).Analyze(cmd.Context(), file)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, res)
			}
			printAnalysis(cmd, res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full analysis as JSON")
	return cmd
}

func printAnalysis(cmd *cobra.Command, res *service.AnalyzeResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "format: %s (%.0f%%, %s)\n", res.Format.Format, res.Format.Confidence*100, res.Format.Reason)
	if res.ProfileMatch != nil {
		fmt.Fprintf(out, "known bank: %s (matched by %s, %.0f%%)\n",
			res.ProfileMatch.Profile.DisplayName(), res.ProfileMatch.Method, res.ProfileMatch.Confidence*100)
	}
	fmt.Fprintf(out, "locale: %s  date format: %s  schema confidence: %.0f%%\n",
		res.Detection.Locale.Family(), res.Detection.DateFormat.Format, res.Detection.Overall*100)
	for _, col := range res.Detection.Columns {
		fmt.Fprintf(out, "  col %d %-24q %-12s %.0f%%  %s\n",
			col.Index, col.Header, col.Role, col.Confidence*100, col.Reason)
	}
	for _, c := range res.Detection.Conflicts {
		fmt.Fprintf(out, "conflict: %s\n", c)
	}
	if res.CanAutoRun {
		fmt.Fprintln(out, "ready for unattended import")
	} else {
		fmt.Fprintln(out, "manual column mapping needed")
	}
}

func newImportCmd(a *app) *cobra.Command {
	var (
		accountID string
		bankName  string
		mapping   string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Run the full import pipeline on a statement file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := readStatement(args[0], a.cfg.Importer.MaxFileSizeBytes)
			if err != nil {
				return err
			}

			if accountID == "" {
				accountID = a.cfg.Importer.DefaultAccountID
			}

			opts := service.Options{AccountID: accountID, BankName: bankName}
			if mapping != "" {
				m, err := parseMappingFlag(mapping)
				if err != nil {
					return err
				}
				opts.Mapping = &m
			}

			started := time.Now()
			res, err := service.NewImporter(a.profiles, a.logger).Import(cmd.Context(), file, opts)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, res)
			}
			printImport(cmd, res, time.Since(started))
			if res.Status == service.StatusNeedsMapping {
				return fmt.Errorf("manual mapping needed; rerun with --mapping")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "account the movements belong to")
	cmd.Flags().StringVar(&bankName, "bank", "", "bank name stored with the learned profile")
	cmd.Flags().StringVar(&mapping, "mapping", "", `explicit column mapping, e.g. "date=0,description=1,amount=2,balance=3"`)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func printImport(cmd *cobra.Command, res *service.Result, elapsed time.Duration) {
	out := cmd.OutOrStdout()
	if res.Status == service.StatusNeedsMapping {
		fmt.Fprintln(out, "manual column mapping needed:")
		for _, s := range res.ManualMapping.Suggestions {
			fmt.Fprintf(out, "  %s\n", s)
		}
		for _, a := range res.ManualMapping.Ambiguities {
			fmt.Fprintf(out, "  ambiguous: %s\n", a)
		}
		return
	}

	st := res.Statistics
	fmt.Fprintf(out, "imported %d of %d rows (%d skipped, %d duplicates) in %s\n",
		len(res.Movements), st.DataRows, st.SkippedRows, st.DuplicatesDetected, elapsed.Round(time.Millisecond))
	if res.Ledger != nil {
		fmt.Fprintf(out, "opening %s  net %s  closing %s\n",
			money.New(res.Ledger.OpeningCents, money.EUR).Display(),
			money.New(res.Ledger.NetCents, money.EUR).Display(),
			money.New(res.Ledger.ClosingCents, money.EUR).Display())
		fmt.Fprintf(out, "ledger check: %s (golden rule ok: %t)\n", res.Ledger.Outcome, res.Ledger.GoldenRuleOK)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	for _, e := range res.Errors {
		fmt.Fprintf(out, "error: %s\n", e)
	}
}

// parseMappingFlag reads "role=index" pairs, e.g. "date=0,amount=2,debit=3".
func parseMappingFlag(s string) (columns.Mapping, error) {
	m := columns.NewMapping()
	for _, pair := range strings.Split(s, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found {
			return m, fmt.Errorf("invalid mapping entry %q", pair)
		}
		var idx int
		if _, err := fmt.Sscanf(value, "%d", &idx); err != nil {
			return m, fmt.Errorf("invalid column index in %q", pair)
		}
		switch columns.Role(strings.TrimSpace(key)) {
		case columns.RoleDate:
			m.Date = idx
		case columns.RoleValueDate:
			m.ValueDate = idx
		case columns.RoleDescription:
			m.Description = idx
		case columns.RoleCounterparty:
			m.Counterparty = idx
		case columns.RoleAmount:
			m.Amount = idx
		case columns.RoleDebit:
			m.Debit = idx
		case columns.RoleCredit:
			m.Credit = idx
		case columns.RoleBalance:
			m.Balance = idx
		case columns.RoleReference:
			m.Reference = idx
		default:
			return m, fmt.Errorf("unknown role %q", key)
		}
	}
	if err := m.Validate(); err != nil {
		return m, err
	}
	return m, nil
}

func newProfilesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage learned bank profiles",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List stored bank profiles",
			RunE: func(c *cobra.Command, _ []string) error {
				all, err := a.store.List(c.Context())
				if err != nil {
					return err
				}
				out := c.OutOrStdout()
				for _, p := range all {
					fmt.Fprintf(out, "%s  %-20s used %d times, last %s\n",
						p.ID[:8], p.DisplayName(), p.UsageCount, p.LastUsedAt.Format("2006-01-02"))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "export",
			Short: "Write all profiles as JSON to stdout",
			RunE: func(c *cobra.Command, _ []string) error {
				return a.profiles.Export(c.Context(), c.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "import <file>",
			Short: "Merge a JSON profile export into the store",
			Args:  cobra.ExactArgs(1),
			RunE: func(c *cobra.Command, args []string) error {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				n, err := a.profiles.Import(c.Context(), f)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.OutOrStdout(), "merged %d profiles\n", n)
				return nil
			},
		},
	)
	return cmd
}

func serveMetrics(logger *slog.Logger, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics endpoint stopped", "error", err)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
