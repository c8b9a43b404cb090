package types

// DefaultMaxCapacity is the maximum number of samples a FIFO channel holds.
const DefaultMaxCapacity = 15000

// Channel binds one output array and its size column to a bank tag.
type Channel struct {
	// Name is a short label used in logs, e.g. "LG"
	Name string `json:"name" yaml:"name"`

	// Tag is the bank tag read for this channel
	Tag string `json:"tag" yaml:"tag"`

	// SizeColumn is the scalar column holding the element count
	SizeColumn string `json:"size_column" yaml:"size_column"`

	// ValueColumn is the variable-length array column
	ValueColumn string `json:"value_column" yaml:"value_column"`

	// MaxCapacity bounds the element count
	MaxCapacity int `json:"max_capacity" yaml:"max_capacity"`
}

// DefaultChannels returns the low-gain and high-gain FIFO channels.
func DefaultChannels() []Channel {
	return []Channel{
		{Name: "LG", Tag: "1ALG", SizeColumn: "LGsize", ValueColumn: "fifoLG", MaxCapacity: DefaultMaxCapacity},
		{Name: "HG", Tag: "1AHG", SizeColumn: "HGsize", ValueColumn: "fifoHG", MaxCapacity: DefaultMaxCapacity},
	}
}
