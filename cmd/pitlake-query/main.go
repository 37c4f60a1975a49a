// Package main implements the pitlake-query binary: point-in-time
// queries over versioned fundamentals snapshots from the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/pitlake/pitlake/internal/config"
	"github.com/pitlake/pitlake/internal/dataset"
	"github.com/pitlake/pitlake/internal/engine"
	"github.com/pitlake/pitlake/internal/errors"
	"github.com/pitlake/pitlake/internal/manifest"
	"github.com/pitlake/pitlake/internal/query"
)

type flags struct {
	configPath      string
	op              string
	datasetKind     string
	startDate       string
	endDate         string
	asOfDate        string
	keys            string
	columns         string
	ticker          string
	companyKey      string
	includeInactive bool
	showStats       bool
}

func main() {
	f := parseFlags()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	store, err := manifest.NewSQLiteStore(cfg.ManifestDB)
	if err != nil {
		log.Fatalf("Failed to open manifest store: %v", err)
	}
	defer store.Close()

	lags := make(map[dataset.Kind]int, len(cfg.FilingLagDays))
	for kind, lag := range cfg.FilingLagDays {
		lags[dataset.Kind(kind)] = lag
	}

	svc, err := query.NewService(store, query.ServiceConfig{
		DataRoot:      cfg.DataRoot,
		FilingLagDays: lags,
		Pool: engine.PoolConfig{
			MaxHandles:  cfg.Engine.MaxHandles,
			IdleTimeout: cfg.Engine.IdleTimeout,
		},
	})
	if err != nil {
		log.Fatalf("Failed to create query service: %v", err)
	}
	defer svc.Close()

	ctx := context.Background()
	if err := run(ctx, svc, f); err != nil {
		log.Fatalf("Operation failed: %v", err)
	}

	if f.showStats {
		for _, s := range svc.Stats() {
			fmt.Printf("dataset %s: queries=%d scanned=%d pruned=%d conflicts=%d recomputes=%d\n",
				s.Dataset, s.Queries, s.PartitionsScanned, s.PartitionsPruned,
				s.VersionConflicts, s.MetadataRecomputes)
		}
	}
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "Path to config file (YAML or JSON)")
	flag.StringVar(&f.op, "op", "fundamentals", "Operation: fundamentals, key-to-ticker, ticker-to-key, universe")
	flag.StringVar(&f.datasetKind, "dataset", string(dataset.AnnualFundamentals), "Dataset kind")
	flag.StringVar(&f.startDate, "start", "", "Start date (YYYY-MM-DD)")
	flag.StringVar(&f.endDate, "end", "", "End date (YYYY-MM-DD)")
	flag.StringVar(&f.asOfDate, "as-of", "", "As-of date (YYYY-MM-DD, required)")
	flag.StringVar(&f.keys, "keys", "", "Comma-separated company keys (default: all)")
	flag.StringVar(&f.columns, "columns", "", "Comma-separated columns (default: all)")
	flag.StringVar(&f.ticker, "ticker", "", "Ticker for ticker-to-key")
	flag.StringVar(&f.companyKey, "key", "", "Company key for key-to-ticker")
	flag.BoolVar(&f.includeInactive, "include-inactive", false, "Include companies with no recent filing")
	flag.BoolVar(&f.showStats, "stats", false, "Print query statistics on exit")
	flag.Parse()
	return f
}

func run(ctx context.Context, svc *query.Service, f flags) error {
	kind := dataset.Kind(f.datasetKind)

	asOf, err := parseDate(f.asOfDate, "as-of")
	if err != nil {
		return err
	}

	switch f.op {
	case "fundamentals":
		start, err := parseDate(f.startDate, "start")
		if err != nil {
			return err
		}
		end, err := parseDate(f.endDate, "end")
		if err != nil {
			return err
		}
		req := query.FundamentalsRequest{
			Dataset:   kind,
			StartDate: start,
			EndDate:   end,
			AsOfDate:  asOf,
			Keys:      splitList(f.keys),
			Columns:   splitList(f.columns),
		}
		return withRetry(func() error {
			records, err := svc.GetFundamentals(ctx, req)
			if err != nil {
				return err
			}
			for _, r := range records {
				fmt.Printf("%s  %-12s  ticker=%s  values=%v\n",
					r.ReportingDate.Format("2006-01-02"), r.CompanyKey,
					strOrDash(r.Ticker), r.Values)
			}
			fmt.Printf("%d records\n", len(records))
			return nil
		})

	case "key-to-ticker":
		return withRetry(func() error {
			ticker, err := svc.KeyToTicker(ctx, f.companyKey, asOf, kind)
			if err != nil {
				return err
			}
			fmt.Println(ticker)
			return nil
		})

	case "ticker-to-key":
		return withRetry(func() error {
			key, err := svc.TickerToKey(ctx, f.ticker, asOf, kind)
			if err != nil {
				if candidates := errors.AmbiguousCandidates(err); candidates != nil {
					fmt.Printf("ambiguous ticker %s, candidates: %s\n",
						f.ticker, strings.Join(candidates, ", "))
				}
				return err
			}
			fmt.Println(key)
			return nil
		})

	case "universe":
		return withRetry(func() error {
			entries, err := svc.GetUniverse(ctx, asOf, f.includeInactive, kind)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%-12s  ticker=%-8s  first=%s  last=%s  %s\n",
					e.CompanyKey, strOrDash(e.Ticker),
					e.FirstAvailable.Format("2006-01-02"),
					e.LastAvailable.Format("2006-01-02"),
					strOrDash(e.CompanyName))
			}
			fmt.Printf("%d companies\n", len(entries))
			return nil
		})

	default:
		return fmt.Errorf("unknown op: %s", f.op)
	}
}

// withRetry retries version-conflict failures up to 3 attempts with full
// jitter. Everything else fails immediately.
func withRetry(fn func() error) error {
	const attempts = 3
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !errors.IsRetryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		delay := 50*time.Millisecond + time.Duration(rand.Int63n(int64(200*time.Millisecond)))
		log.Printf("Manifest changed mid-query, retrying in %v (attempt %d/%d)", delay, i+2, attempts)
		time.Sleep(delay)
	}
	return err
}

func parseDate(s, name string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("-%s is required", name)
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid -%s date %q: %w", name, s, err)
	}
	return t, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func strOrDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
