// Package pit implements the point-in-time cutoff arithmetic.
//
// A record is available at as_of_date iff
//
//	reporting_date + filing_lag_days <= as_of_date
//
// Every public operation that could leak look-ahead information takes a
// required as_of_date; there is no "default to latest" mode.
package pit

import "time"

// Cutoff returns the latest reporting date whose filing is publicly
// available at asOf under the given filing lag.
func Cutoff(asOf time.Time, filingLagDays int) time.Time {
	return asOf.AddDate(0, 0, -filingLagDays)
}

// Available reports whether a record with the given reporting date is
// publicly available at asOf under the given filing lag.
func Available(reportingDate, asOf time.Time, filingLagDays int) bool {
	return !reportingDate.AddDate(0, 0, filingLagDays).After(asOf)
}

// AvailableDate returns the date a record with the given reporting date
// becomes publicly available.
func AvailableDate(reportingDate time.Time, filingLagDays int) time.Time {
	return reportingDate.AddDate(0, 0, filingLagDays)
}

// Day truncates a time to a UTC calendar date. All date comparisons in
// the query layer operate on day granularity.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
