// Package triage provides the business boundary for complaint triage and routing.
// It defines the Service (intake, dedup, lifecycle, export), Engine (pure fusion of
// routing, priority, duplicate and export rules), Store interface (persistence),
// classifier capabilities, and domain models.
package triage
