// Package services implements the business logic layer of LedgerLens. It
// sits between the HTTP handlers and the datastore.
//
// # Available Services
//
//	- DatasetService: reads workbooks and CSV files, runs type detection,
//	  stores datasets and serves queries, aggregates and exports
//	- HealthService: readiness and liveness checks
//
// Every DatasetService operation opens an OpenTelemetry span named
// "dataset.<op>" carrying the dataset name, and logs writes with slog.
//
// # Error Handling
//
// Services pass through the typed errors of internal/errors unchanged so
// handlers can map them to problem responses. Unparseable cells are never
// errors; they are stored as failure values and counted in the metadata.
package services
