// Package models contains GORM persistence models for the customs reference tables.
// Models carry the ORM tags and column types; ToDomain validates a row into the
// fixed-field domain value and rejects malformed records.
//
// Structure:
//   - base.go: shared audit columns
//   - customs.go: tax classifications and destination tax regimes
package models
