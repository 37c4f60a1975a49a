// Package types provides core data types for Pitlake.
package types

import "time"

// Record represents a single fundamentals row as returned by a query.
// Identity columns are always populated; financial columns appear in
// Values only when projected, and a nil entry means SQL NULL.
type Record struct {
	// ReportingDate is the fiscal-period-end date (never the publication date)
	ReportingDate time.Time `json:"reporting_date"`

	// CompanyKey is the stable company identifier
	CompanyKey string `json:"company_key"`

	// Ticker is the exchange ticker as filed, nil when not reported
	Ticker *string `json:"ticker"`

	// CompanyName is the registrant name as filed, nil when not reported
	CompanyName *string `json:"company_name"`

	// Values holds the projected financial columns by column name
	Values map[string]*float64 `json:"values"`
}

// SecurityMetadata is the per-company aggregate derived from all
// partitions of one dataset. It is a purely in-process view, cached by
// manifest version and never persisted.
type SecurityMetadata struct {
	// CompanyKey is the stable company identifier
	CompanyKey string `json:"company_key"`

	// Ticker is the ticker from the latest filing, nil when never reported
	Ticker *string `json:"ticker"`

	// CompanyName is the name from the latest filing, nil when never reported
	CompanyName *string `json:"company_name"`

	// FirstReportingDate is the earliest reporting date for the key
	FirstReportingDate time.Time `json:"first_reporting_date"`

	// LastReportingDate is the latest reporting date for the key
	LastReportingDate time.Time `json:"last_reporting_date"`
}

// UniverseEntry is one row of a point-in-time universe.
type UniverseEntry struct {
	// CompanyKey is the stable company identifier
	CompanyKey string `json:"company_key"`

	// Ticker is the point-in-time ticker, nil when no available filing names one
	Ticker *string `json:"ticker"`

	// CompanyName is the point-in-time registrant name
	CompanyName *string `json:"company_name"`

	// FirstAvailable is the lag-adjusted date the key entered the universe
	FirstAvailable time.Time `json:"first_available"`

	// LastAvailable is the lag-adjusted date of the key's latest filing
	LastAvailable time.Time `json:"last_available"`
}
