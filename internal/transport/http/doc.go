// Package http implements the HTTP handlers of the LedgerLens service.
// Handlers stay thin: they decode and validate request DTOs from
// pkg/contracts/api/v1, call the dataset service and render the result.
//
// # Routes
//
//	GET    /api/v1/datasets                           list metadata
//	POST   /api/v1/datasets                           ingest a JSON table
//	POST   /api/v1/datasets/upload                    ingest a multipart workbook or CSV
//	GET    /api/v1/datasets/{name}                    metadata
//	DELETE /api/v1/datasets/{name}                    drop
//	POST   /api/v1/datasets/{name}/indexes            create an index
//	DELETE /api/v1/datasets/{name}/indexes/{column}   drop an index
//	POST   /api/v1/datasets/{name}/query              filtered rows
//	POST   /api/v1/datasets/{name}/aggregate          grouped measures
//	GET    /api/v1/datasets/{name}/export             csv or xlsx download
//	POST   /api/v1/datasets/{name}/rows               append rows
//	PATCH  /api/v1/datasets/{name}/rows/{id}          update one cell
//	POST   /api/v1/datasets/{name}/rows/delete        delete matching rows
//	POST   /api/v1/analyze                            detection only
//
// # Error Handling
//
// All errors are rendered as RFC 7807 problems by internal/errors:
//
//	{
//	    "type": "/errors/dataset/not-found",
//	    "title": "Dataset Not Found",
//	    "status": 404,
//	    "detail": "dataset \"ledger\"",
//	    "instance": "/api/v1/datasets/ledger",
//	    "trace_id": "..."
//	}
package http
