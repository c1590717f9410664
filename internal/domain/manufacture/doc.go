// Package manufacture contains the production workflow entities the sync core reacts to.
// Batches, supplies, workflow orders and packages are owned by sibling subsystems;
// this package models them only as far as completion handling needs them, behind ports.
package manufacture
