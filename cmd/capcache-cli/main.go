// Package main provides the capcache CLI entrypoint.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/mobr-ai/capcache/internal/cache"
	"github.com/mobr-ai/capcache/internal/config"
	"github.com/mobr-ai/capcache/internal/observability"
	"github.com/mobr-ai/capcache/pkg/engine"
)

var (
	// Global flags
	cfgFile    string
	outputJSON bool
	verbose    bool

	// Configuration and logger
	cfg    *config.Config
	logger *observability.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "capcache-cli",
	Short: "capcache CLI for query normalization and cache administration",
	Long: `capcache CLI provides commands for the natural-language SPARQL cache.

Use this tool to:
- Normalize natural language queries into cache keys
- Extract concrete values (limits, percentages, dates) from queries
- Turn SPARQL queries into placeholder templates and restore them
- Pre-cache query mapping files into Redis
- Inspect and clear the cache

All commands support --json for automation.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logFormat := "console"
		if outputJSON {
			logFormat = "json"
		}

		level := cfg.Observability.LogLevel
		if !verbose {
			level = "warn"
		}

		logger = observability.NewLogger(observability.LogConfig{
			Level:       level,
			Format:      logFormat,
			ServiceName: "capcache-cli",
		})

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(newNormalizeCmd())
	rootCmd.AddCommand(newExtractCmd())
	rootCmd.AddCommand(newSPARQLCmd())
	rootCmd.AddCommand(newRestoreCmd())
	rootCmd.AddCommand(newPrecacheCmd())
	rootCmd.AddCommand(newInfoCmd())
	rootCmd.AddCommand(newClearCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newEngine builds the shared normalization engine from config.
func newEngine() *engine.Engine {
	return engine.New(engine.Options{
		OntologyPath: cfg.Ontology.Path,
		Logger:       logger,
	})
}

// newCacheClient builds the configured cache backend, showing a spinner
// while waiting for Redis to accept connections.
func newCacheClient(ui *UI) (cache.Client, error) {
	if cfg.Cache.Driver != "redis" {
		return cache.NewMemoryClient(cfg.Cache.MaxEntries), nil
	}

	var sp *WaitSpinner
	if !outputJSON && IsTerminal() {
		sp = NewWaitSpinner(fmt.Sprintf("Connecting to Redis at %s", cfg.Cache.Redis.Addr))
		sp.Start()
	}

	client, err := cache.NewRedisClient(cache.RedisConfig{
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		PoolSize: cfg.Cache.Redis.PoolSize,
		Prefix:   cfg.Cache.KeyPrefix,
	})

	if sp != nil {
		sp.Stop()
	}
	if err != nil {
		return nil, err
	}
	if ui != nil {
		ui.Success("Connected to Redis at %s", cfg.Cache.Redis.Addr)
	}
	return client, nil
}

// printJSON writes a value as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readInput reads from a file path, or stdin when the path is "-".
func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// newNormalizeCmd creates the normalize subcommand.
func newNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize [query]",
		Short: "Normalize a natural language query into its cache key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng := newEngine()
			normalized := eng.NormalizeQuery(args[0])
			variant := eng.SemanticVariant(normalized)

			if outputJSON {
				return printJSON(map[string]string{
					"query":            args[0],
					"normalized":       normalized,
					"semantic_variant": variant,
				})
			}

			fmt.Println(normalized)
			if variant != normalized {
				fmt.Fprintf(os.Stderr, "semantic variant: %s\n", variant)
			}
			return nil
		},
	}
}

// newExtractCmd creates the extract subcommand.
func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract [query]",
		Short: "Extract concrete values (limits, percentages, dates) from a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values := newEngine().ExtractValues(args[0])

			if outputJSON {
				return printJSON(values)
			}

			ui := NewUI(outputJSON, false)
			defer ui.Close()

			rows := [][]string{}
			add := func(name string, vals []string) {
				if len(vals) > 0 {
					rows = append(rows, []string{name, strings.Join(vals, ", ")})
				}
			}
			add("limits", values.Limits)
			add("percentages", values.Percentages)
			add("numbers", values.Numbers)
			add("currencies", values.Currencies)
			add("tokens", values.Tokens)
			add("years", values.Years)
			add("months", values.Months)
			add("periods", values.TemporalPeriods)
			add("orderings", values.Orderings)
			add("durations", values.Durations)
			add("definitions", values.Definitions)
			add("quantifiers", values.Quantifiers)
			add("pool ids", values.PoolIDs)

			if len(rows) == 0 {
				ui.Info("No values found")
				return nil
			}
			ui.Table([]string{"KIND", "VALUES"}, rows)
			return nil
		},
	}
}

// newSPARQLCmd creates the sparql subcommand.
func newSPARQLCmd() *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:   "sparql [file]",
		Short: "Turn a SPARQL query into a placeholder template",
		Long: `Reads a SPARQL query from the given file (or stdin with "-"), replaces
literal values with typed placeholders, and prints the template together
with the placeholder map.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := readInput(args[0])
			if err != nil {
				return err
			}

			template, placeholders := newEngine().NormalizeSPARQL(query, nil)

			out := map[string]any{
				"template":     template,
				"placeholders": placeholders,
			}

			if outFile != "" {
				data, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return err
				}
				return os.WriteFile(outFile, data, 0o644)
			}

			if outputJSON {
				return printJSON(out)
			}

			fmt.Println(template)
			if len(placeholders) > 0 {
				fmt.Fprintln(os.Stderr)
				for ph, value := range placeholders {
					fmt.Fprintf(os.Stderr, "  %s = %s\n", ph, value)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write template and placeholder map as JSON to a file")
	return cmd
}

// newRestoreCmd creates the restore subcommand.
func newRestoreCmd() *cobra.Command {
	var (
		templateFile string
		mapFile      string
	)

	cmd := &cobra.Command{
		Use:   "restore [query]",
		Short: "Restore a SPARQL template using values from a natural language query",
		Long: `Reads a placeholder template and its placeholder map (the JSON produced
by "sparql --out"), extracts concrete values from the given natural
language query, and prints the restored SPARQL.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var template string
			placeholders := map[string]string{}

			if mapFile != "" {
				data, err := os.ReadFile(mapFile)
				if err != nil {
					return fmt.Errorf("read %s: %w", mapFile, err)
				}
				var stored struct {
					Template     string            `json:"template"`
					Placeholders map[string]string `json:"placeholders"`
				}
				if err := json.Unmarshal(data, &stored); err != nil {
					return fmt.Errorf("parse %s: %w", mapFile, err)
				}
				template = stored.Template
				placeholders = stored.Placeholders
			}

			if templateFile != "" {
				t, err := readInput(templateFile)
				if err != nil {
					return err
				}
				template = t
			}

			if template == "" {
				return errors.New("no template: pass --map and/or --template")
			}

			eng := newEngine()
			values := eng.ExtractValues(args[0])
			restored := eng.RestoreSPARQL(template, placeholders, values)

			if outputJSON {
				return printJSON(map[string]any{
					"query":    args[0],
					"restored": restored,
				})
			}

			fmt.Println(restored)
			return nil
		},
	}

	cmd.Flags().StringVarP(&mapFile, "map", "m", "", "JSON file with template and placeholder map (from sparql --out)")
	cmd.Flags().StringVarP(&templateFile, "template", "t", "", "SPARQL template file (overrides the template in --map)")
	return cmd
}

// newPrecacheCmd creates the precache subcommand.
func newPrecacheCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "precache [files...]",
		Short: "Pre-cache query mapping files",
		Long: `Parses MESSAGE user/assistant query mapping files and stores each
NL-to-SPARQL pair in the cache. Already cached queries are skipped.

With no arguments, all files in the configured precache directory are
processed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			ui := NewUI(outputJSON, false)
			defer ui.Close()

			files := args
			if len(files) == 0 {
				matches, err := filepath.Glob(filepath.Join(cfg.Precache.Dir, "*.txt"))
				if err != nil {
					return fmt.Errorf("list precache dir: %w", err)
				}
				files = matches
			}
			if len(files) == 0 {
				ui.Warning("No query mapping files found")
				return nil
			}

			client, err := newCacheClient(ui)
			if err != nil {
				return fmt.Errorf("connect cache backend: %w", err)
			}
			defer client.Close()

			nlCache := cache.NewNLClient(client, cfg.Cache.TTL, logger)

			total := &cache.PrecacheStats{}
			if len(files) == 1 {
				stats, err := precacheSingle(ctx, nlCache, files[0], ttl)
				if err != nil {
					return err
				}
				total = stats
			} else {
				for _, file := range files {
					stats, err := precacheWithBar(ctx, ui, nlCache, file, ttl)
					if err != nil {
						ui.Error("%s: %v", file, err)
						total.Failed++
						total.Total++
						continue
					}
					total.Total += stats.Total
					total.Cached += stats.Cached
					total.Failed += stats.Failed
					total.Skipped += stats.Skipped
					total.Errors = append(total.Errors, stats.Errors...)
				}
			}

			if outputJSON {
				return printJSON(total)
			}

			ui.Success("Cached %d queries (%d skipped, %d failed) from %d file(s)",
				total.Cached, total.Skipped, total.Failed, len(files))
			for _, msg := range total.Errors {
				ui.Warning("%s", msg)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "cache TTL for precached entries (default: config value)")
	return cmd
}

// precacheSingle precaches one file with a per-query progress bar.
func precacheSingle(ctx context.Context, nlCache *cache.NLClient, path string, ttl time.Duration) (*cache.PrecacheStats, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	pairs := cache.ParseQueryFile(string(content))
	stats := &cache.PrecacheStats{}

	var bar *progressbar.ProgressBar
	if !outputJSON && IsTerminal() {
		bar = QueryBar(len(pairs), filepath.Base(path))
	}

	for _, pair := range pairs {
		stats.Total++
		err := nlCache.Store(ctx, pair.NL, pair.SPARQL, cache.StoreOptions{
			TTL:          ttl,
			Precached:    true,
			SkipExisting: true,
		})
		switch {
		case errors.Is(err, cache.ErrAlreadyCached):
			stats.Skipped++
		case err != nil:
			stats.Failed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", pair.NL, err))
		default:
			stats.Cached++
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	return stats, nil
}

// precacheWithBar precaches one of several files, tracked on a shared multi-bar.
func precacheWithBar(ctx context.Context, ui *UI, nlCache *cache.NLClient, path string, ttl time.Duration) (*cache.PrecacheStats, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	pairs := cache.ParseQueryFile(string(content))
	bar := ui.FileBar(filepath.Base(path), int64(len(pairs)))

	stats := &cache.PrecacheStats{}
	for _, pair := range pairs {
		stats.Total++
		err := nlCache.Store(ctx, pair.NL, pair.SPARQL, cache.StoreOptions{
			TTL:          ttl,
			Precached:    true,
			SkipExisting: true,
		})
		switch {
		case errors.Is(err, cache.ErrAlreadyCached):
			stats.Skipped++
		case err != nil:
			stats.Failed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", pair.NL, err))
		default:
			stats.Cached++
		}
		if bar != nil {
			bar.Increment()
		}
	}
	return stats, nil
}

// newInfoCmd creates the info subcommand.
func newInfoCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show cache statistics and popular queries",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			ui := NewUI(outputJSON, false)
			defer ui.Close()

			client, err := newCacheClient(nil)
			if err != nil {
				return fmt.Errorf("connect cache backend: %w", err)
			}
			defer client.Close()

			nlCache := cache.NewNLClient(client, cfg.Cache.TTL, logger)

			info, err := nlCache.CacheInfo(ctx)
			if err != nil {
				return fmt.Errorf("cache info: %w", err)
			}
			popular, err := nlCache.PopularQueries(ctx, limit)
			if err != nil {
				return fmt.Errorf("popular queries: %w", err)
			}

			if outputJSON {
				return printJSON(map[string]any{
					"info":    info,
					"popular": popular,
				})
			}

			ui.Info("Entries: %d (precached: %d, dynamic: %d)",
				info.Entries, info.Precached, info.Entries-info.Precached)
			ui.Info("Total hits: %d", info.TotalHits)

			if len(popular) > 0 {
				fmt.Println()
				rows := make([][]string, 0, len(popular))
				for i, q := range popular {
					rows = append(rows, []string{
						fmt.Sprintf("%d", i+1),
						fmt.Sprintf("%d", q.Count),
						q.Query,
					})
				}
				ui.Table([]string{"#", "HITS", "QUERY"}, rows)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of popular queries to show")
	return cmd
}

// newClearCmd creates the clear subcommand.
func newClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all cached queries",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			ui := NewUI(outputJSON, false)
			defer ui.Close()

			if !yes {
				fmt.Print("Delete all cached queries? [y/N] ")
				var answer string
				fmt.Scanln(&answer)
				if !strings.EqualFold(strings.TrimSpace(answer), "y") {
					ui.Info("Aborted")
					return nil
				}
			}

			client, err := newCacheClient(nil)
			if err != nil {
				return fmt.Errorf("connect cache backend: %w", err)
			}
			defer client.Close()

			nlCache := cache.NewNLClient(client, cfg.Cache.TTL, logger)
			if err := nlCache.Clear(ctx); err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}

			if outputJSON {
				return printJSON(map[string]string{"status": "cleared"})
			}
			ui.Success("Cache cleared")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

// newVersionCmd creates the version subcommand.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if outputJSON {
				_ = printJSON(map[string]string{"version": version})
				return
			}
			fmt.Printf("capcache-cli %s\n", version)
		},
	}
}

// version is set at build time via -ldflags.
var version = "dev"
