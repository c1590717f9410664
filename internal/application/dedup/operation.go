package dedup

// Namespace separates key spaces of unrelated subsystems sharing one store
type Namespace string

// NamespaceManufacture is the key space of marketplace sync and completion handling
const NamespaceManufacture Namespace = "wildberries-manufacture"

// Operation identifies the guarded side effect. The same business key used by two
// operations never collides because the operation is part of the composite key.
type Operation string

const (
	OpIngestOrder       Operation = "ingest-order"
	OpIngestStock       Operation = "ingest-stock"
	OpCompletionHandler Operation = "completion-handler"
	OpPackOrder         Operation = "pack-handler"
	OpOpenSupply        Operation = "open-supply"
	OpResetFBSStock     Operation = "reset-fbs-stock"
)

// IsValid returns true if the operation is known
func (o Operation) IsValid() bool {
	switch o {
	case OpIngestOrder, OpIngestStock, OpCompletionHandler, OpPackOrder,
		OpOpenSupply, OpResetFBSStock:
		return true
	default:
		return false
	}
}

// String returns the string representation of Operation
func (o Operation) String() string {
	return string(o)
}
