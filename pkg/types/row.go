// Package types provides core data types for the fifotable converter.
package types

// Row is the conversion result of one event: a timestamp plus, for every
// configured channel, a size scalar and a value array.
type Row struct {
	// TimeStamp is the event timestamp taken from the event header
	TimeStamp uint32 `json:"timeStamp"`

	// Channels holds one entry per schema channel, in schema channel order
	Channels []ChannelData `json:"channels"`
}

// ChannelData holds one channel's values for a single row.
type ChannelData struct {
	// Size is the element count written to the channel's size column
	Size int32 `json:"size"`

	// Values are the converted samples in acquisition order
	Values []float64 `json:"values"`
}
