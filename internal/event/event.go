package event

// Kind is the normalized operation type of a change event.
type Kind string

const (
	KindInsert  Kind = "insert"
	KindUpdate  Kind = "update"
	KindDelete  Kind = "delete"
	KindReplace Kind = "replace"
)

// Event is the canonical change event delivered to every subscriber.
type Event struct {
	// ID is the opaque position identifier assigned by the upstream feed.
	// IDs observed from a single reader are strictly increasing in
	// delivery order.
	ID string `json:"id"`

	// Kind is the normalized operation type.
	Kind Kind `json:"kind"`

	// Collection identifies the originating logical stream.
	Collection string `json:"collection"`

	// Payload depends on Kind: the full document for insert and replace,
	// the changed-field delta for update, and the document key only for
	// delete.
	Payload map[string]any `json:"payload"`

	// Removed lists field names removed by an update. Empty for all
	// other kinds.
	Removed []string `json:"removed,omitempty"`
}

// RawRecord is one change record as produced by a feed adapter, before
// normalization. Fields that do not apply to the operation are nil.
type RawRecord struct {
	// Op is the upstream operation type string, e.g. "insert".
	Op string

	// ID is the upstream position identifier for this record.
	ID string

	// Collection identifies the originating logical stream.
	Collection string

	// Key is the identifying key of the changed document.
	Key map[string]any

	// Document is the full document, when the upstream supplied one.
	Document map[string]any

	// Updated holds the changed fields of an update.
	Updated map[string]any

	// Removed holds the field names removed by an update.
	Removed []string

	// Token is the opaque resume token positioned just after this record.
	Token []byte
}
