package query

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pitlake/pitlake/internal/dataset"
	"github.com/pitlake/pitlake/internal/engine"
	"github.com/pitlake/pitlake/internal/errors"
	"github.com/pitlake/pitlake/internal/manifest"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// fixtureRow is one fundamentals row for a parquet fixture.
type fixtureRow struct {
	date    string // YYYY-MM-DD
	key     string
	ticker  string // "" means NULL
	name    string
	revenue float64
}

// writeFixture writes a parquet partition with the full fundamentals
// schema; financial columns other than revenue are NULL.
func writeFixture(t *testing.T, path string, rows []fixtureRow) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create fixture dir: %v", err)
	}

	values := make([]string, len(rows))
	for i, r := range rows {
		ticker := "CAST(NULL AS VARCHAR)"
		if r.ticker != "" {
			ticker = "'" + r.ticker + "'"
		}
		values[i] = fmt.Sprintf(
			"(DATE '%s', '%s', %s, '%s', CAST(%f AS DOUBLE), %s)",
			r.date, r.key, ticker, r.name, r.revenue,
			strings.TrimSuffix(strings.Repeat("CAST(NULL AS DOUBLE), ", 8), ", "))
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("failed to open duckdb: %v", err)
	}
	defer db.Close()

	stmt := fmt.Sprintf(`COPY (SELECT * FROM (VALUES %s) t(
		reporting_date, company_key, ticker, company_name, revenue,
		net_income, total_assets, total_liabilities, shareholders_equity,
		operating_cash_flow, eps_basic, eps_diluted, shares_outstanding
	)) TO '%s' (FORMAT PARQUET)`, strings.Join(values, ",\n"), path)
	if _, err := db.Exec(stmt); err != nil {
		t.Fatalf("failed to write fixture %s: %v", path, err)
	}
}

type testEnv struct {
	root  string
	store *manifest.MemoryStore
	svc   *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	store := manifest.NewMemoryStore()
	svc, err := NewService(store, ServiceConfig{
		DataRoot: root,
		Pool:     engine.PoolConfig{MaxHandles: 2},
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return &testEnv{root: root, store: store, svc: svc}
}

func (e *testEnv) fixture(t *testing.T, kind dataset.Kind, year int, rows []fixtureRow) string {
	rel := filepath.Join(string(kind), fmt.Sprintf("%d.parquet", year))
	writeFixture(t, filepath.Join(e.root, rel), rows)
	return rel
}

func intPtr(v int) *int { return &v }

func TestGetFundamentals_PITInvariant(t *testing.T) {
	env := newTestEnv(t)
	kind := dataset.AnnualFundamentals
	p := env.fixture(t, kind, 2023, []fixtureRow{
		{"2023-03-31", "C001", "AAA", "Alpha", 100},
		{"2023-06-30", "C001", "AAA", "Alpha", 110},
		{"2023-09-30", "C001", "AAA", "Alpha", 120},
		{"2023-12-31", "C001", "AAA", "Alpha", 130},
	})
	env.store.Put(string(kind), 1, []string{p})

	lag := 30
	asOf := date(2023, 7, 30) // cutoff = 2023-06-30
	records, err := env.svc.GetFundamentals(context.Background(), FundamentalsRequest{
		Dataset:       kind,
		StartDate:     date(2023, 1, 1),
		EndDate:       date(2023, 12, 31),
		AsOfDate:      asOf,
		FilingLagDays: intPtr(lag),
		Columns:       []string{"revenue"},
	})
	if err != nil {
		t.Fatalf("GetFundamentals failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (Q1 and Q2 only)", len(records))
	}
	for _, r := range records {
		if r.ReportingDate.AddDate(0, 0, lag).After(asOf) {
			t.Errorf("look-ahead leak: record dated %s returned as of %s with lag %d",
				r.ReportingDate.Format("2006-01-02"), asOf.Format("2006-01-02"), lag)
		}
	}
	// The cutoff-boundary record (reporting + lag == as_of) is included.
	if !records[1].ReportingDate.Equal(date(2023, 6, 30)) {
		t.Errorf("boundary record missing, got %s", records[1].ReportingDate)
	}
}

func TestGetFundamentals_EmptyRangeIsNotAnError(t *testing.T) {
	env := newTestEnv(t)
	kind := dataset.AnnualFundamentals
	p := env.fixture(t, kind, 2020, []fixtureRow{
		{"2020-12-31", "C001", "AAA", "Alpha", 100},
	})
	env.store.Put(string(kind), 1, []string{p})

	records, err := env.svc.GetFundamentals(context.Background(), FundamentalsRequest{
		Dataset:   kind,
		StartDate: date(2023, 1, 1),
		EndDate:   date(2023, 12, 31),
		AsOfDate:  date(2024, 6, 30),
	})
	if err != nil {
		t.Fatalf("empty range must not be an error, got %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("want empty typed slice, got %v", records)
	}
}

func TestGetFundamentals_PruningMinimality(t *testing.T) {
	env := newTestEnv(t)
	kind := dataset.AnnualFundamentals
	paths := []string{
		env.fixture(t, kind, 2022, []fixtureRow{{"2022-06-30", "C001", "AAA", "Alpha", 90}}),
		env.fixture(t, kind, 2023, []fixtureRow{{"2023-06-15", "C001", "AAA", "Alpha", 100}}),
		env.fixture(t, kind, 2024, []fixtureRow{{"2024-06-30", "C001", "AAA", "Alpha", 110}}),
	}
	env.store.Put(string(kind), 1, paths)

	records, err := env.svc.GetFundamentals(context.Background(), FundamentalsRequest{
		Dataset:   kind,
		StartDate: date(2023, 6, 1),
		EndDate:   date(2023, 6, 30),
		AsOfDate:  date(2024, 12, 31),
	})
	if err != nil {
		t.Fatalf("GetFundamentals failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	stats := env.svc.Stats()
	if len(stats) != 1 {
		t.Fatalf("got %d stat entries, want 1", len(stats))
	}
	if stats[0].PartitionsScanned != 1 || stats[0].PartitionsPruned != 2 {
		t.Errorf("scanned=%d pruned=%d, want 1 scanned and 2 pruned",
			stats[0].PartitionsScanned, stats[0].PartitionsPruned)
	}
}

func TestGetFundamentals_PathOutsideRootYieldsEmpty(t *testing.T) {
	env := newTestEnv(t)
	kind := dataset.AnnualFundamentals

	// A real partition, but outside the sanctioned root.
	outside := filepath.Join(t.TempDir(), "2023.parquet")
	writeFixture(t, outside, []fixtureRow{{"2023-12-31", "C001", "AAA", "Alpha", 100}})
	env.store.Put(string(kind), 1, []string{outside})

	records, err := env.svc.GetFundamentals(context.Background(), FundamentalsRequest{
		Dataset:   kind,
		StartDate: date(2023, 1, 1),
		EndDate:   date(2023, 12, 31),
		AsOfDate:  date(2024, 12, 31),
	})
	if err != nil {
		t.Fatalf("escaping entry must be dropped silently, got %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records from an out-of-root partition, want 0", len(records))
	}
}

func TestGetFundamentals_InvalidColumns(t *testing.T) {
	env := newTestEnv(t)
	kind := dataset.AnnualFundamentals
	env.store.Put(string(kind), 1, nil)

	_, err := env.svc.GetFundamentals(context.Background(), FundamentalsRequest{
		Dataset:   kind,
		StartDate: date(2023, 1, 1),
		EndDate:   date(2023, 12, 31),
		AsOfDate:  date(2024, 1, 1),
		Columns:   []string{"revenue", "free_cash_flow"},
	})
	if errors.GetCode(err) != errors.CodeInvalidColumns {
		t.Fatalf("got %v, want INVALID_COLUMNS", err)
	}
}

func TestGetFundamentals_InputValidation(t *testing.T) {
	env := newTestEnv(t)
	kind := dataset.AnnualFundamentals
	env.store.Put(string(kind), 1, nil)
	ctx := context.Background()

	// Missing as_of_date: the look-ahead-bias bug class is unreachable.
	_, err := env.svc.GetFundamentals(ctx, FundamentalsRequest{
		Dataset:   kind,
		StartDate: date(2023, 1, 1),
		EndDate:   date(2023, 12, 31),
	})
	if errors.GetCategory(err) != errors.ErrCategoryValidation {
		t.Errorf("missing as_of: got %v, want validation error", err)
	}

	// Inverted range.
	_, err = env.svc.GetFundamentals(ctx, FundamentalsRequest{
		Dataset:   kind,
		StartDate: date(2023, 12, 31),
		EndDate:   date(2023, 1, 1),
		AsOfDate:  date(2024, 1, 1),
	})
	if errors.GetCode(err) != errors.CodeInvalidRange {
		t.Errorf("inverted range: got %v, want INVALID_RANGE", err)
	}

	// Unknown dataset.
	_, err = env.svc.GetFundamentals(ctx, FundamentalsRequest{
		Dataset:   dataset.Kind("prices_daily"),
		StartDate: date(2023, 1, 1),
		EndDate:   date(2023, 12, 31),
		AsOfDate:  date(2024, 1, 1),
	})
	if errors.GetCode(err) != errors.CodeUnknownDataset {
		t.Errorf("unknown dataset: got %v, want UNKNOWN_DATASET", err)
	}
}

func TestGetFundamentals_MissingManifest(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.GetFundamentals(context.Background(), FundamentalsRequest{
		Dataset:   dataset.AnnualFundamentals,
		StartDate: date(2023, 1, 1),
		EndDate:   date(2023, 12, 31),
		AsOfDate:  date(2024, 1, 1),
	})
	if errors.GetCode(err) != errors.CodeDataNotFound {
		t.Fatalf("got %v, want DATA_NOT_FOUND", err)
	}
}

func TestGetFundamentals_VersionConflict(t *testing.T) {
	env := newTestEnv(t)
	kind := dataset.AnnualFundamentals
	p := env.fixture(t, kind, 2023, []fixtureRow{
		{"2023-12-31", "C001", "AAA", "Alpha", 100},
	})
	env.store.Put(string(kind), 1, []string{p})

	// The sync pipeline publishes v2 between pin and verify.
	env.store.OnLoad = func(ds string, loads int) {
		if loads == 2 {
			env.store.Put(ds, 2, []string{p})
		}
	}

	_, err := env.svc.GetFundamentals(context.Background(), FundamentalsRequest{
		Dataset:   kind,
		StartDate: date(2023, 1, 1),
		EndDate:   date(2023, 12, 31),
		AsOfDate:  date(2024, 12, 31),
	})
	if errors.GetCode(err) != errors.CodeManifestVersionChanged {
		t.Fatalf("got %v, want MANIFEST_VERSION_CHANGED", err)
	}
	if !errors.IsRetryable(err) {
		t.Error("version conflict must be retryable")
	}

	stats := env.svc.Stats()
	if len(stats) != 1 || stats[0].VersionConflicts != 1 {
		t.Errorf("conflict not recorded: %+v", stats)
	}

	// A clean retry (no concurrent publish) succeeds.
	env.store.OnLoad = nil
	records, err := env.svc.GetFundamentals(context.Background(), FundamentalsRequest{
		Dataset:   kind,
		StartDate: date(2023, 1, 1),
		EndDate:   date(2023, 12, 31),
		AsOfDate:  date(2024, 12, 31),
	})
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records after retry, want 1", len(records))
	}
}

func TestGetFundamentals_KeysFilter(t *testing.T) {
	env := newTestEnv(t)
	kind := dataset.AnnualFundamentals
	p := env.fixture(t, kind, 2023, []fixtureRow{
		{"2023-12-31", "C001", "AAA", "Alpha", 100},
		{"2023-12-31", "C002", "BBB", "Beta", 50},
		{"2023-12-31", "C003", "CCC", "Gamma", 25},
	})
	env.store.Put(string(kind), 1, []string{p})

	records, err := env.svc.GetFundamentals(context.Background(), FundamentalsRequest{
		Dataset:   kind,
		StartDate: date(2023, 1, 1),
		EndDate:   date(2023, 12, 31),
		AsOfDate:  date(2024, 12, 31),
		Keys:      []string{"C001", "C003"},
	})
	if err != nil {
		t.Fatalf("GetFundamentals failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].CompanyKey != "C001" || records[1].CompanyKey != "C003" {
		t.Errorf("unexpected keys: %s, %s", records[0].CompanyKey, records[1].CompanyKey)
	}
}

func TestKeyToTicker_PointInTime(t *testing.T) {
	env := newTestEnv(t)
	kind := dataset.AnnualFundamentals // lag 90
	p2022 := env.fixture(t, kind, 2022, []fixtureRow{
		{"2022-12-31", "C001", "OLD", "Alpha", 90},
	})
	p2023 := env.fixture(t, kind, 2023, []fixtureRow{
		{"2023-12-31", "C001", "NEW", "Alpha", 100},
	})
	env.store.Put(string(kind), 1, []string{p2022, p2023})
	ctx := context.Background()

	// 2023 filing available from 2024-03-30; before that the 2022
	// ticker is still the point-in-time answer.
	ticker, err := env.svc.KeyToTicker(ctx, "C001", date(2024, 3, 1), kind)
	if err != nil {
		t.Fatalf("KeyToTicker failed: %v", err)
	}
	if ticker != "OLD" {
		t.Errorf("got %q, want OLD before the new filing is available", ticker)
	}

	ticker, err = env.svc.KeyToTicker(ctx, "C001", date(2024, 4, 15), kind)
	if err != nil {
		t.Fatalf("KeyToTicker failed: %v", err)
	}
	if ticker != "NEW" {
		t.Errorf("got %q, want NEW after the lag elapsed", ticker)
	}

	// Before the first filing's availability: nothing to resolve.
	_, err = env.svc.KeyToTicker(ctx, "C001", date(2023, 1, 15), kind)
	if errors.GetCode(err) != errors.CodeDataNotFound {
		t.Errorf("got %v, want DATA_NOT_FOUND before any filing is available", err)
	}

	// Unknown key.
	_, err = env.svc.KeyToTicker(ctx, "C999", date(2024, 6, 30), kind)
	if errors.GetCode(err) != errors.CodeDataNotFound {
		t.Errorf("got %v, want DATA_NOT_FOUND for unknown key", err)
	}
}

func TestTickerToKey_CaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	kind := dataset.AnnualFundamentals
	p := env.fixture(t, kind, 2023, []fixtureRow{
		{"2023-12-31", "C001", "Acme", "Acme Corp", 100},
	})
	env.store.Put(string(kind), 1, []string{p})

	key, err := env.svc.TickerToKey(context.Background(), "ACME", date(2024, 12, 31), kind)
	if err != nil {
		t.Fatalf("TickerToKey failed: %v", err)
	}
	if key != "C001" {
		t.Errorf("got %q, want C001", key)
	}
}

func TestTickerToKey_Ambiguous(t *testing.T) {
	env := newTestEnv(t)
	kind := dataset.AnnualFundamentals
	p := env.fixture(t, kind, 2023, []fixtureRow{
		{"2023-12-31", "C001", "DUP", "Alpha", 100},
		{"2023-12-31", "C002", "DUP", "Beta", 50},
	})
	env.store.Put(string(kind), 1, []string{p})

	_, err := env.svc.TickerToKey(context.Background(), "DUP", date(2024, 12, 31), kind)
	if errors.GetCode(err) != errors.CodeAmbiguousKey {
		t.Fatalf("got %v, want AMBIGUOUS_KEY", err)
	}
	candidates := errors.AmbiguousCandidates(err)
	if len(candidates) != 2 || candidates[0] != "C001" || candidates[1] != "C002" {
		t.Errorf("got candidates %v, want [C001 C002]", candidates)
	}
}

func TestTickerToKey_TickerReassignedOverTime(t *testing.T) {
	env := newTestEnv(t)
	kind := dataset.AnnualFundamentals
	// C001 held the ticker through 2022; C002 picked it up in 2023.
	p2022 := env.fixture(t, kind, 2022, []fixtureRow{
		{"2022-12-31", "C001", "MOVE", "Alpha", 90},
	})
	p2023 := env.fixture(t, kind, 2023, []fixtureRow{
		{"2023-12-31", "C001", "ALFA", "Alpha", 100},
		{"2023-12-31", "C002", "MOVE", "Beta", 50},
	})
	env.store.Put(string(kind), 1, []string{p2022, p2023})
	ctx := context.Background()

	// Before the 2023 filings are available, MOVE still means C001.
	key, err := env.svc.TickerToKey(ctx, "MOVE", date(2023, 6, 30), kind)
	if err != nil {
		t.Fatalf("TickerToKey failed: %v", err)
	}
	if key != "C001" {
		t.Errorf("got %q, want C001 before the reassignment is visible", key)
	}

	// Once the 2023 filings are available, MOVE means C002 and only C002.
	key, err = env.svc.TickerToKey(ctx, "MOVE", date(2024, 6, 30), kind)
	if err != nil {
		t.Fatalf("TickerToKey failed: %v", err)
	}
	if key != "C002" {
		t.Errorf("got %q, want C002 after the reassignment is visible", key)
	}

	_, err = env.svc.TickerToKey(ctx, "GONE", date(2024, 6, 30), kind)
	if errors.GetCode(err) != errors.CodeDataNotFound {
		t.Errorf("got %v, want DATA_NOT_FOUND for an unused ticker", err)
	}
}

func TestGetUniverse_LagAdjustment(t *testing.T) {
	env := newTestEnv(t)
	kind := dataset.AnnualFundamentals // lag 90
	p := env.fixture(t, kind, 2023, []fixtureRow{
		{"2023-12-31", "C001", "AAA", "Alpha", 100},
	})
	env.store.Put(string(kind), 1, []string{p})
	ctx := context.Background()

	// 2023-12-31 + 90d = 2024-03-30: not yet available on 2024-03-01.
	entries, err := env.svc.GetUniverse(ctx, date(2024, 3, 1), true, kind)
	if err != nil {
		t.Fatalf("GetUniverse failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("key present before lag elapsed: %v", entries)
	}

	entries, err = env.svc.GetUniverse(ctx, date(2024, 4, 15), true, kind)
	if err != nil {
		t.Fatalf("GetUniverse failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1 after lag elapsed", len(entries))
	}
	e := entries[0]
	if e.CompanyKey != "C001" {
		t.Errorf("key = %q", e.CompanyKey)
	}
	if !e.FirstAvailable.Equal(date(2024, 3, 30)) {
		t.Errorf("first_available = %s, want 2024-03-30", e.FirstAvailable.Format("2006-01-02"))
	}
	if e.Ticker == nil || *e.Ticker != "AAA" {
		t.Errorf("ticker = %v, want AAA", e.Ticker)
	}
}

func TestGetUniverse_IncludeInactive(t *testing.T) {
	env := newTestEnv(t)
	kind := dataset.AnnualFundamentals
	pOld := env.fixture(t, kind, 2019, []fixtureRow{
		{"2019-12-31", "C900", "DEAD", "Delisted Co", 10},
	})
	p2022 := env.fixture(t, kind, 2022, []fixtureRow{
		{"2022-12-31", "C001", "AAA", "Alpha", 95},
	})
	p2023 := env.fixture(t, kind, 2023, []fixtureRow{
		{"2023-12-31", "C001", "AAA", "Alpha", 100},
	})
	env.store.Put(string(kind), 1, []string{pOld, p2022, p2023})
	ctx := context.Background()

	// C001's last filing becomes available 2024-03-30, so at 2024-02-01
	// its last_available is still ahead of as_of (active); C900's last
	// availability date passed back in 2020 (inactive).
	asOf := date(2024, 2, 1)

	active, err := env.svc.GetUniverse(ctx, asOf, false, kind)
	if err != nil {
		t.Fatalf("GetUniverse failed: %v", err)
	}
	if len(active) != 1 || active[0].CompanyKey != "C001" {
		t.Errorf("active universe = %v, want only C001", active)
	}

	all, err := env.svc.GetUniverse(ctx, asOf, true, kind)
	if err != nil {
		t.Fatalf("GetUniverse failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d entries with include_inactive, want 2", len(all))
	}
	if all[0].CompanyKey != "C001" || all[1].CompanyKey != "C900" {
		t.Errorf("universe not sorted by key: %v", all)
	}
}

func TestGetUniverse_EmptyIsTypedSlice(t *testing.T) {
	env := newTestEnv(t)
	kind := dataset.QuarterlyFundamentals
	env.store.Put(string(kind), 1, nil)

	entries, err := env.svc.GetUniverse(context.Background(), date(2024, 1, 1), true, kind)
	if err != nil {
		t.Fatalf("empty universe must not be an error, got %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("want empty typed slice, got %v", entries)
	}
}

func TestMetadataCache_RecomputeOnVersionBump(t *testing.T) {
	env := newTestEnv(t)
	kind := dataset.AnnualFundamentals
	p := env.fixture(t, kind, 2023, []fixtureRow{
		{"2023-12-31", "C001", "AAA", "Alpha", 100},
	})
	env.store.Put(string(kind), 1, []string{p})
	ctx := context.Background()
	asOf := date(2024, 6, 30)

	if _, err := env.svc.GetUniverse(ctx, asOf, true, kind); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.GetUniverse(ctx, asOf, true, kind); err != nil {
		t.Fatal(err)
	}

	// Identical rows under a bumped version: the aggregate must be
	// recomputed anyway.
	env.store.Put(string(kind), 2, []string{p})
	if _, err := env.svc.GetUniverse(ctx, asOf, true, kind); err != nil {
		t.Fatal(err)
	}

	stats := env.svc.Stats()
	if len(stats) != 1 || stats[0].MetadataRecomputes != 2 {
		t.Errorf("recomputes = %+v, want 2 (initial + version bump)", stats)
	}
}

func TestInvalidateMetadata(t *testing.T) {
	env := newTestEnv(t)
	kind := dataset.AnnualFundamentals
	p := env.fixture(t, kind, 2023, []fixtureRow{
		{"2023-12-31", "C001", "AAA", "Alpha", 100},
	})
	env.store.Put(string(kind), 1, []string{p})
	ctx := context.Background()
	asOf := date(2024, 6, 30)

	if _, err := env.svc.GetUniverse(ctx, asOf, true, kind); err != nil {
		t.Fatal(err)
	}
	env.svc.InvalidateMetadata(kind)
	if _, err := env.svc.GetUniverse(ctx, asOf, true, kind); err != nil {
		t.Fatal(err)
	}

	stats := env.svc.Stats()
	if len(stats) != 1 || stats[0].MetadataRecomputes != 2 {
		t.Errorf("recomputes = %+v, want 2 after explicit invalidation", stats)
	}
}

func TestFilingLagOverrides(t *testing.T) {
	root := t.TempDir()
	store := manifest.NewMemoryStore()
	svc, err := NewService(store, ServiceConfig{
		DataRoot:      root,
		FilingLagDays: map[dataset.Kind]int{dataset.AnnualFundamentals: 10},
		Pool:          engine.PoolConfig{MaxHandles: 2},
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Close()

	rel := filepath.Join(string(dataset.AnnualFundamentals), "2023.parquet")
	writeFixture(t, filepath.Join(root, rel), []fixtureRow{
		{"2023-12-31", "C001", "AAA", "Alpha", 100},
	})
	store.Put(string(dataset.AnnualFundamentals), 1, []string{rel})

	// With a 10-day lag the filing is available on 2024-01-10, far
	// before the 90-day descriptor default would allow.
	ticker, err := svc.KeyToTicker(context.Background(), "C001", date(2024, 1, 10), dataset.AnnualFundamentals)
	if err != nil {
		t.Fatalf("KeyToTicker failed: %v", err)
	}
	if ticker != "AAA" {
		t.Errorf("got %q, want AAA", ticker)
	}
}

func TestGetFundamentals_RejectsNegativeLagOverride(t *testing.T) {
	env := newTestEnv(t)
	kind := dataset.AnnualFundamentals
	p := env.fixture(t, kind, 2024, []fixtureRow{
		{"2024-09-30", "C001", "AAA", "Alpha", 100},
	})
	env.store.Put(string(kind), 1, []string{p})

	// A negative lag would pull the cutoff past as_of and leak the
	// September filing into a January query.
	records, err := env.svc.GetFundamentals(context.Background(), FundamentalsRequest{
		Dataset:       kind,
		StartDate:     date(2024, 1, 1),
		EndDate:       date(2024, 12, 31),
		AsOfDate:      date(2024, 1, 1),
		FilingLagDays: intPtr(-365),
	})
	if errors.GetCode(err) != errors.CodeInvalidRange {
		t.Fatalf("got %v, want INVALID_RANGE", err)
	}
	if len(records) != 0 {
		t.Errorf("look-ahead leak: %d records returned via negative lag override", len(records))
	}
}

func TestKeyToTicker_StaleMissDuringSyncIsRetryable(t *testing.T) {
	env := newTestEnv(t)
	kind := dataset.AnnualFundamentals
	env.store.Put(string(kind), 1, nil)

	// The pinned (empty) snapshot misses the key while a sync publishes
	// the partition carrying it. The stale miss must surface retryable,
	// not as a terminal DATA_NOT_FOUND.
	p := env.fixture(t, kind, 2023, []fixtureRow{
		{"2023-12-31", "C001", "AAA", "Alpha", 100},
	})
	env.store.OnLoad = func(ds string, loads int) {
		if loads == 2 {
			env.store.Put(ds, 2, []string{p})
		}
	}

	_, err := env.svc.KeyToTicker(context.Background(), "C001", date(2024, 6, 30), kind)
	if errors.GetCode(err) != errors.CodeManifestVersionChanged {
		t.Fatalf("got %v, want MANIFEST_VERSION_CHANGED", err)
	}
	if !errors.IsRetryable(err) {
		t.Error("stale miss under a concurrent sync must be retryable")
	}

	env.store.OnLoad = nil
	ticker, err := env.svc.KeyToTicker(context.Background(), "C001", date(2024, 6, 30), kind)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if ticker != "AAA" {
		t.Errorf("got %q, want AAA", ticker)
	}
}

func TestNewService_RejectsNegativeConfigLag(t *testing.T) {
	store := manifest.NewMemoryStore()
	_, err := NewService(store, ServiceConfig{
		DataRoot:      t.TempDir(),
		FilingLagDays: map[dataset.Kind]int{dataset.AnnualFundamentals: -30},
	})
	if errors.GetCode(err) != errors.CodeInvalidRange {
		t.Fatalf("got %v, want INVALID_RANGE", err)
	}
}

func TestNewService_RejectsUnknownLagOverride(t *testing.T) {
	store := manifest.NewMemoryStore()
	_, err := NewService(store, ServiceConfig{
		DataRoot:      t.TempDir(),
		FilingLagDays: map[dataset.Kind]int{dataset.Kind("prices_daily"): 5},
	})
	if errors.GetCode(err) != errors.CodeUnknownDataset {
		t.Fatalf("got %v, want UNKNOWN_DATASET", err)
	}
}
