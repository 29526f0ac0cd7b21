// Package files finds and checks the spreadsheet and delimited files a
// batch ingest reads.
//
//	d := files.NewDiscovery(logger)
//	sources, err := d.FindSources("exports/2023")
//	for _, src := range sources {
//	    // src.Format picks the tabular reader
//	}
package files
