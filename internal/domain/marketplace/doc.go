// Package marketplace contains the marketplace feed bounded context.
// It models what the upstream seller API returns and how its failures are classified.
//
// Key concepts:
//   - AccountID: validated seller account (profile) identifier
//   - Cursor: watermark timestamp of an incremental feed, never regresses
//   - OrderRow / StockRow: one row of the orders and stocks feeds
//   - OrderFeed / StockFeed / WarehouseDirectory / StockPusher: ports implemented by the HTTP client
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package marketplace
