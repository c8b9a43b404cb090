package types

// ColumnType is the logical type of a table column.
type ColumnType string

const (
	// ColumnInt32 is a fixed 32-bit integer scalar
	ColumnInt32 ColumnType = "INT32"

	// ColumnFloat64Array is a variable-length float64 array sized by a sibling column
	ColumnFloat64Array ColumnType = "FLOAT64_ARRAY"
)

// TimeStampColumn is the name of the event timestamp column.
const TimeStampColumn = "timeStamp"

// Schema defines the columns of a run table.
type Schema struct {
	// Version tracks schema evolution
	Version int `json:"version"`

	// TableName is the name of the table inside the run file
	TableName string `json:"table_name"`

	// Columns defines the columns in declaration order
	Columns []ColumnDef `json:"columns"`

	// Channels are the channels the columns were derived from
	Channels []Channel `json:"channels"`
}

// ColumnDef defines a single column in the schema.
type ColumnDef struct {
	// Name is the column name
	Name string `json:"name"`

	// Type is the column's logical type
	Type ColumnType `json:"type"`

	// SizeColumn names the scalar column holding this array's length (arrays only)
	SizeColumn string `json:"size_column,omitempty"`

	// MaxLen is the upper bound of the size column or array length (0 = unbounded)
	MaxLen int `json:"max_len,omitempty"`
}

// Column returns the column with the given name.
func (s Schema) Column(name string) (ColumnDef, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}
