// Package app wires the LedgerLens server together and manages its
// lifecycle.
//
// # Initialization Flow
//
//	1. Load configuration (defaults, YAML file, LEDGERLENS_* env)
//	2. Initialize logging, tracing and metrics
//	3. Build the value parser and column detector
//	4. Open the configured dataset backend (memory, sqlite or postgres)
//	5. Create the dataset and health services
//	6. Mount middleware and routes, then create the HTTP server
//
// # Usage
//
//	a, err := app.NewApplication("ledgerlens.yaml")
//	if err != nil {
//	    return err
//	}
//	return a.Run()
//
// Run blocks until SIGINT or SIGTERM, then drains in-flight requests and
// closes the backend before flushing telemetry.
package app
