package types

// RecordKind distinguishes physics events from run transitions in a stream.
type RecordKind uint8

const (
	// KindEvent is a regular event carrying banks
	KindEvent RecordKind = 1

	// KindBeginRun marks the start of a run
	KindBeginRun RecordKind = 2

	// KindEndRun marks the end of a run
	KindEndRun RecordKind = 3
)

// String returns a short name for the record kind.
func (k RecordKind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindBeginRun:
		return "begin-run"
	case KindEndRun:
		return "end-run"
	default:
		return "unknown"
	}
}

// EventRecord is one decoded element of the acquisition stream.
type EventRecord struct {
	// Kind tells whether this is an event or a run transition
	Kind RecordKind `json:"kind"`

	// RunNumber is set on transitions and carried on events when known
	RunNumber uint32 `json:"run_number"`

	// EventID is the acquisition event id from the header
	EventID uint16 `json:"event_id"`

	// Serial is the event serial number within the run
	Serial uint32 `json:"serial"`

	// Timestamp is the 32-bit event timestamp (seconds)
	Timestamp uint32 `json:"timestamp"`

	// Banks is the event's bank directory, in stream order
	Banks []Bank `json:"banks"`
}

// BankTagLen is the length of a bank tag.
const BankTagLen = 4

// BankType is the declared sample type of a bank, using the acquisition
// system's type id numbering.
type BankType uint16

const (
	BankTypeU8  BankType = 1
	BankTypeI8  BankType = 2
	BankTypeU16 BankType = 4
	BankTypeI16 BankType = 3
	BankTypeU32 BankType = 6
	BankTypeI32 BankType = 7
	BankTypeF32 BankType = 9
	BankTypeF64 BankType = 10
	BankTypeI64 BankType = 17
	BankTypeU64 BankType = 18
)

// Width returns the size in bytes of one sample, or 0 for unknown types.
func (t BankType) Width() int {
	switch t {
	case BankTypeU8, BankTypeI8:
		return 1
	case BankTypeU16, BankTypeI16:
		return 2
	case BankTypeU32, BankTypeI32, BankTypeF32:
		return 4
	case BankTypeF64, BankTypeI64, BankTypeU64:
		return 8
	default:
		return 0
	}
}

// String returns the type name.
func (t BankType) String() string {
	switch t {
	case BankTypeU8:
		return "uint8"
	case BankTypeI8:
		return "int8"
	case BankTypeU16:
		return "uint16"
	case BankTypeI16:
		return "int16"
	case BankTypeU32:
		return "uint32"
	case BankTypeI32:
		return "int32"
	case BankTypeF32:
		return "float32"
	case BankTypeF64:
		return "float64"
	case BankTypeI64:
		return "int64"
	case BankTypeU64:
		return "uint64"
	default:
		return "unknown"
	}
}

// Bank is a named block of raw little-endian samples inside one event.
type Bank struct {
	// Tag is the 4-character bank name, e.g. "1ALG"
	Tag string `json:"tag"`

	// Type is the declared sample type
	Type BankType `json:"type"`

	// Data is the raw sample payload
	Data []byte `json:"data"`
}

// Len returns the number of whole samples in the bank.
func (b *Bank) Len() int {
	w := b.Type.Width()
	if w == 0 {
		return 0
	}
	return len(b.Data) / w
}
