// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
// - base.go: BaseModel and the model list used for auto-migration
// - ledger.go: ingested orders, current stock and the barcode directory
// - manufacture.go: production batches, supplies, workflow orders and packages
package models
