// Package config loads the ledgerlens configuration.
//
// # Configuration Sources
//
// Configuration is assembled in order of increasing precedence:
//
//	1. Default values
//	2. A YAML file (explicit path, or ledgerlens.yaml / config.yaml / configs/config.yaml)
//	3. Environment variables
//
// # Environment Variables
//
// Variables use the LEDGERLENS prefix followed by section and field:
//
//	LEDGERLENS_SERVER_PORT=8080
//	LEDGERLENS_STORAGE_BACKEND=sqlite
//	LEDGERLENS_STORAGE_SQLITE_PATH=data/ledgerlens.db
//	LEDGERLENS_DETECTION_DATE_CONVENTION=eu
//	LEDGERLENS_LOGGING_LEVEL=debug
//
// # Validation
//
// Load rejects out-of-range ports, unknown enumerations (logging output,
// date convention, storage backend, trace exporter) and backends missing
// their connection settings.
package config
