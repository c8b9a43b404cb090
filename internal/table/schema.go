// Package table declares the run-scoped table schema and the sinks that
// persist committed rows under it.
package table

import (
	"fmt"

	converrors "github.com/arkilian/fifotable/internal/errors"
	"github.com/arkilian/fifotable/pkg/types"
)

// SchemaVersion is the version written into every run table.
const SchemaVersion = 1

// DefaultTableName is the table name used when none is configured.
const DefaultTableName = "fifo_tree"

// NewSchema declares the timestamp column, one INT32 size column per channel
// and one array column per channel bound to its size column.
func NewSchema(tableName string, channels []types.Channel) (types.Schema, error) {
	if tableName == "" {
		tableName = DefaultTableName
	}
	schema := types.Schema{
		Version:   SchemaVersion,
		TableName: tableName,
		Channels:  append([]types.Channel(nil), channels...),
	}

	schema.Columns = append(schema.Columns, types.ColumnDef{Name: types.TimeStampColumn, Type: types.ColumnInt32})
	for _, ch := range channels {
		schema.Columns = append(schema.Columns, types.ColumnDef{
			Name:   ch.SizeColumn,
			Type:   types.ColumnInt32,
			MaxLen: ch.MaxCapacity,
		})
	}
	for _, ch := range channels {
		schema.Columns = append(schema.Columns, types.ColumnDef{
			Name:       ch.ValueColumn,
			Type:       types.ColumnFloat64Array,
			SizeColumn: ch.SizeColumn,
			MaxLen:     ch.MaxCapacity,
		})
	}

	if err := Validate(schema); err != nil {
		return types.Schema{}, err
	}
	return schema, nil
}

// Validate checks the schema's internal consistency: unique column names,
// array columns bound to earlier INT32 size columns with the same bound,
// and one well-formed channel per array column.
func Validate(s types.Schema) error {
	if s.TableName == "" {
		return schemaError("table name is required")
	}
	if len(s.Columns) == 0 || s.Columns[0].Name != types.TimeStampColumn || s.Columns[0].Type != types.ColumnInt32 {
		return schemaError("first column must be %s %s", types.TimeStampColumn, types.ColumnInt32)
	}

	seen := make(map[string]types.ColumnDef, len(s.Columns))
	arrays := 0
	for _, c := range s.Columns {
		if c.Name == "" {
			return schemaError("empty column name")
		}
		if _, dup := seen[c.Name]; dup {
			return schemaError("duplicate column %q", c.Name)
		}
		switch c.Type {
		case types.ColumnInt32:
			if c.SizeColumn != "" {
				return schemaError("scalar column %q cannot be bound to a size column", c.Name)
			}
		case types.ColumnFloat64Array:
			arrays++
			size, ok := seen[c.SizeColumn]
			if !ok {
				return schemaError("array column %q bound to undeclared size column %q", c.Name, c.SizeColumn)
			}
			if size.Type != types.ColumnInt32 {
				return schemaError("size column %q of %q must be %s", size.Name, c.Name, types.ColumnInt32)
			}
			if c.MaxLen <= 0 || c.MaxLen != size.MaxLen {
				return schemaError("array column %q must share a positive bound with %q", c.Name, size.Name)
			}
		default:
			return schemaError("column %q has unsupported type %q", c.Name, c.Type)
		}
		seen[c.Name] = c
	}

	if arrays != len(s.Channels) {
		return schemaError("%d array columns for %d channels", arrays, len(s.Channels))
	}
	tags := make(map[string]bool, len(s.Channels))
	for _, ch := range s.Channels {
		if len(ch.Tag) != types.BankTagLen {
			return schemaError("channel %q: bank tag %q must be %d characters", ch.Name, ch.Tag, types.BankTagLen)
		}
		if tags[ch.Tag] {
			return schemaError("bank tag %q bound twice", ch.Tag)
		}
		tags[ch.Tag] = true
		col, ok := seen[ch.ValueColumn]
		if !ok || col.Type != types.ColumnFloat64Array || col.SizeColumn != ch.SizeColumn {
			return schemaError("channel %q: value column %q not bound to %q", ch.Name, ch.ValueColumn, ch.SizeColumn)
		}
		if ch.MaxCapacity != col.MaxLen {
			return schemaError("channel %q: capacity %d does not match column bound %d", ch.Name, ch.MaxCapacity, col.MaxLen)
		}
	}
	return nil
}

// ValidateRow enforces len(values) == size <= capacity for every channel.
func ValidateRow(s types.Schema, row types.Row) error {
	if len(row.Channels) != len(s.Channels) {
		return converrors.NewTableError(converrors.CodeSchemaViolation,
			fmt.Sprintf("row has %d channels, schema declares %d", len(row.Channels), len(s.Channels)), nil)
	}
	for i, ch := range s.Channels {
		cd := row.Channels[i]
		if cd.Size < 0 || int(cd.Size) != len(cd.Values) {
			return converrors.NewTableError(converrors.CodeSchemaViolation,
				fmt.Sprintf("%s=%d but %s has %d values", ch.SizeColumn, cd.Size, ch.ValueColumn, len(cd.Values)), nil)
		}
		if int(cd.Size) > ch.MaxCapacity {
			return converrors.NewTableError(converrors.CodeSchemaViolation,
				fmt.Sprintf("%s=%d exceeds capacity %d", ch.SizeColumn, cd.Size, ch.MaxCapacity), nil)
		}
	}
	return nil
}

func schemaError(format string, args ...interface{}) error {
	return converrors.NewTableError(converrors.CodeSchemaViolation, "invalid schema: "+fmt.Sprintf(format, args...), nil)
}
