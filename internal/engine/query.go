package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pitlake/pitlake/internal/dataset"
	"github.com/pitlake/pitlake/internal/errors"
	"github.com/pitlake/pitlake/pkg/types"
)

// SelectSpec describes one parameterized, read-only select over a set of
// partition files. All filter values are passed as bound parameters;
// column names come from the closed descriptor set, and partition paths
// come from the validated manifest, never from callers.
type SelectSpec struct {
	// Paths are the resolved partition files to scan.
	Paths []string

	// Columns is the normalized projection (identity columns included).
	Columns []string

	// Start and End bound reporting_date when non-nil.
	Start *time.Time
	End   *time.Time

	// Cutoff is the point-in-time availability cutoff. Rows with
	// reporting_date after it are never returned.
	Cutoff time.Time

	// Keys restricts to the given company keys when non-empty.
	Keys []string
}

// quoteLiteral escapes a string for embedding as a SQL string literal.
// Used only for partition paths, which pass the path validator first.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// readParquet renders the read_parquet table function over the given
// paths. union_by_name tolerates column-order drift between partition
// files written by different sync pipeline versions.
func readParquet(paths []string) string {
	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = quoteLiteral(p)
	}
	return fmt.Sprintf("read_parquet([%s], union_by_name=true)", strings.Join(quoted, ", "))
}

// buildSelect renders the SQL and bound arguments for a SelectSpec.
func buildSelect(spec SelectSpec) (string, []interface{}) {
	var sb strings.Builder
	var args []interface{}

	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(spec.Columns, ", "))
	sb.WriteString("\nFROM ")
	sb.WriteString(readParquet(spec.Paths))
	sb.WriteString("\nWHERE reporting_date <= ?")
	args = append(args, spec.Cutoff)

	if spec.Start != nil {
		sb.WriteString("\n  AND reporting_date >= ?")
		args = append(args, *spec.Start)
	}
	if spec.End != nil {
		sb.WriteString("\n  AND reporting_date <= ?")
		args = append(args, *spec.End)
	}
	if len(spec.Keys) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(spec.Keys)), ", ")
		sb.WriteString("\n  AND company_key IN (")
		sb.WriteString(placeholders)
		sb.WriteString(")")
		for _, k := range spec.Keys {
			args = append(args, k)
		}
	}

	sb.WriteString("\nORDER BY reporting_date, company_key")
	return sb.String(), args
}

// SelectRecords executes a SelectSpec and returns the matching rows
// ordered by (reporting_date, company_key).
func (h *Handle) SelectRecords(ctx context.Context, desc *dataset.Descriptor, spec SelectSpec) ([]types.Record, error) {
	if len(spec.Paths) == 0 {
		return []types.Record{}, nil
	}

	query, args := buildSelect(spec)
	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternalError("failed to execute partition scan", err)
	}
	defer rows.Close()

	records := []types.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows, desc, spec.Columns)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("error iterating partition scan", err)
	}
	return records, nil
}

// scanRecord scans one row according to the projected columns.
func scanRecord(rows *sql.Rows, desc *dataset.Descriptor, columns []string) (types.Record, error) {
	dests := make([]interface{}, len(columns))
	var reportingDate time.Time
	var companyKey string
	texts := make(map[int]*sql.NullString)
	numerics := make(map[int]*sql.NullFloat64)

	for i, col := range columns {
		switch col {
		case dataset.ColReportingDate:
			dests[i] = &reportingDate
		case dataset.ColCompanyKey:
			dests[i] = &companyKey
		default:
			if desc.Schema[col] == dataset.ColumnText {
				ns := &sql.NullString{}
				texts[i] = ns
				dests[i] = ns
			} else {
				nf := &sql.NullFloat64{}
				numerics[i] = nf
				dests[i] = nf
			}
		}
	}

	if err := rows.Scan(dests...); err != nil {
		return types.Record{}, errors.NewInternalError("failed to scan record", err)
	}

	rec := types.Record{
		ReportingDate: reportingDate.UTC(),
		CompanyKey:    companyKey,
		Values:        make(map[string]*float64),
	}
	for i, col := range columns {
		if ns, ok := texts[i]; ok {
			var v *string
			if ns.Valid {
				s := ns.String
				v = &s
			}
			switch col {
			case dataset.ColTicker:
				rec.Ticker = v
			case dataset.ColCompanyName:
				rec.CompanyName = v
			}
			continue
		}
		if nf, ok := numerics[i]; ok {
			if nf.Valid {
				f := nf.Float64
				rec.Values[col] = &f
			} else {
				rec.Values[col] = nil
			}
		}
	}
	return rec, nil
}

// AggregateMetadata computes the per-company first/last reporting dates
// and the ticker/name from each company's most recent record, optionally
// restricted to records at or before cutoff. With a nil cutoff it scans
// full history, which is what the metadata cache stores per manifest
// version.
func (h *Handle) AggregateMetadata(ctx context.Context, paths []string, cutoff *time.Time) ([]types.SecurityMetadata, error) {
	if len(paths) == 0 {
		return []types.SecurityMetadata{}, nil
	}

	var sb strings.Builder
	var args []interface{}

	sb.WriteString("SELECT company_key,\n")
	sb.WriteString("  min(reporting_date) AS first_reporting_date,\n")
	sb.WriteString("  max(reporting_date) AS last_reporting_date,\n")
	sb.WriteString("  arg_max(ticker, reporting_date) AS ticker,\n")
	sb.WriteString("  arg_max(company_name, reporting_date) AS company_name\n")
	sb.WriteString("FROM ")
	sb.WriteString(readParquet(paths))
	if cutoff != nil {
		sb.WriteString("\nWHERE reporting_date <= ?")
		args = append(args, *cutoff)
	}
	sb.WriteString("\nGROUP BY company_key\nORDER BY company_key")

	rows, err := h.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, errors.NewInternalError("failed to aggregate security metadata", err)
	}
	defer rows.Close()

	out := []types.SecurityMetadata{}
	for rows.Next() {
		var m types.SecurityMetadata
		var first, last time.Time
		var ticker, name sql.NullString
		if err := rows.Scan(&m.CompanyKey, &first, &last, &ticker, &name); err != nil {
			return nil, errors.NewInternalError("failed to scan security metadata", err)
		}
		m.FirstReportingDate = first.UTC()
		m.LastReportingDate = last.UTC()
		if ticker.Valid {
			s := ticker.String
			m.Ticker = &s
		}
		if name.Valid {
			s := name.String
			m.CompanyName = &s
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("error iterating security metadata", err)
	}
	return out, nil
}

// LatestTicker returns the ticker from the most recent record for the
// company key at or before cutoff. found is false when the key has no
// available record; a record whose ticker is NULL yields (nil, true).
func (h *Handle) LatestTicker(ctx context.Context, paths []string, companyKey string, cutoff time.Time) (ticker *string, found bool, err error) {
	if len(paths) == 0 {
		return nil, false, nil
	}

	query := fmt.Sprintf(
		"SELECT ticker FROM %s WHERE company_key = ? AND reporting_date <= ? ORDER BY reporting_date DESC LIMIT 1",
		readParquet(paths))

	var ns sql.NullString
	err = h.db.QueryRowContext(ctx, query, companyKey, cutoff).Scan(&ns)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.NewInternalError("failed to look up latest ticker", err)
	}
	if ns.Valid {
		s := ns.String
		return &s, true, nil
	}
	return nil, true, nil
}
