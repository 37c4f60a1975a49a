// Package dataset defines the compiled-in dataset descriptors: the closed
// set of valid columns, their semantic types, and the default filing lag
// for each supported dataset kind. Descriptors are immutable for the
// process lifetime; projection requests are validated against them before
// any SQL is built.
package dataset

import (
	"fmt"
	"sort"

	"github.com/pitlake/pitlake/internal/errors"
)

// Kind identifies a supported dataset.
type Kind string

const (
	// AnnualFundamentals holds one row per company per fiscal year.
	AnnualFundamentals Kind = "fundamentals_annual"

	// QuarterlyFundamentals holds one row per company per fiscal quarter.
	QuarterlyFundamentals Kind = "fundamentals_quarterly"
)

// ColumnType is the semantic type of a column.
type ColumnType int

const (
	ColumnDate ColumnType = iota
	ColumnText
	ColumnNumeric
)

// Identity column names shared by every dataset kind.
const (
	ColReportingDate = "reporting_date"
	ColCompanyKey    = "company_key"
	ColTicker        = "ticker"
	ColCompanyName   = "company_name"
)

// Descriptor describes one dataset: its column set, column order, schema,
// and default filing lag in days.
type Descriptor struct {
	Kind Kind

	// Columns is the full column order as stored in the partitions.
	Columns []string

	// Schema maps column name to semantic type.
	Schema map[string]ColumnType

	// DefaultFilingLagDays is the delay between a record's reporting date
	// and the date it becomes publicly available.
	DefaultFilingLagDays int

	valid map[string]struct{}
}

// financialColumns is shared by both fundamentals kinds. The quarterly
// feed carries the same statement lines at a quarterly cadence.
var financialColumns = []string{
	"revenue",
	"net_income",
	"total_assets",
	"total_liabilities",
	"shareholders_equity",
	"operating_cash_flow",
	"eps_basic",
	"eps_diluted",
	"shares_outstanding",
}

var descriptors = map[Kind]*Descriptor{
	AnnualFundamentals:    newDescriptor(AnnualFundamentals, 90),
	QuarterlyFundamentals: newDescriptor(QuarterlyFundamentals, 45),
}

func newDescriptor(kind Kind, lagDays int) *Descriptor {
	cols := []string{ColReportingDate, ColCompanyKey, ColTicker, ColCompanyName}
	cols = append(cols, financialColumns...)

	schema := map[string]ColumnType{
		ColReportingDate: ColumnDate,
		ColCompanyKey:    ColumnText,
		ColTicker:        ColumnText,
		ColCompanyName:   ColumnText,
	}
	valid := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		valid[c] = struct{}{}
		if _, ok := schema[c]; !ok {
			schema[c] = ColumnNumeric
		}
	}

	return &Descriptor{
		Kind:                 kind,
		Columns:              cols,
		Schema:               schema,
		DefaultFilingLagDays: lagDays,
		valid:                valid,
	}
}

// Lookup returns the descriptor for a kind.
func Lookup(kind Kind) (*Descriptor, error) {
	d, ok := descriptors[kind]
	if !ok {
		return nil, errors.NewValidationError(errors.CodeUnknownDataset,
			fmt.Sprintf("unknown dataset kind %q", kind))
	}
	return d, nil
}

// Kinds returns all supported dataset kinds in stable order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(descriptors))
	for k := range descriptors {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// HasColumn reports whether the column belongs to the descriptor's set.
func (d *Descriptor) HasColumn(name string) bool {
	_, ok := d.valid[name]
	return ok
}

// ValidateColumns checks a requested projection against the descriptor's
// valid set. The whole request fails if any column is unknown, before any
// partition is touched.
func (d *Descriptor) ValidateColumns(cols []string) error {
	var invalid []string
	for _, c := range cols {
		if !d.HasColumn(c) {
			invalid = append(invalid, c)
		}
	}
	if len(invalid) > 0 {
		return errors.NewInvalidColumns(
			fmt.Sprintf("dataset %s does not have columns %v", d.Kind, invalid), invalid)
	}
	return nil
}

// Projection normalizes a requested column list: nil means all columns,
// and reporting_date/company_key are always included because the result
// ordering contract requires them. The returned slice preserves the
// descriptor's stored column order.
func (d *Descriptor) Projection(requested []string) ([]string, error) {
	if requested == nil {
		out := make([]string, len(d.Columns))
		copy(out, d.Columns)
		return out, nil
	}
	if err := d.ValidateColumns(requested); err != nil {
		return nil, err
	}

	want := map[string]struct{}{
		ColReportingDate: {},
		ColCompanyKey:    {},
	}
	for _, c := range requested {
		want[c] = struct{}{}
	}

	out := make([]string, 0, len(want))
	for _, c := range d.Columns {
		if _, ok := want[c]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}
