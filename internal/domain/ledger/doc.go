// Package ledger contains the local order and stock ledger fed by marketplace sync.
//
// Key concepts:
//   - ProductIdentity: invariant key of a product/offer/variation/modification combination
//   - OrderRecord: immutable order row, created once per upstream order id
//   - StockRecord: current point-in-time stock per product identity, overwritten on every sync
//   - ProductResolver: port resolving a marketplace barcode to a ProductIdentity
package ledger
