// Package bank locates banks inside an event record and converts their raw
// samples into float64 channel arrays.
package bank

import "github.com/arkilian/fifotable/pkg/types"

// Locate returns the first bank in ev whose tag equals tag exactly.
func Locate(ev *types.EventRecord, tag string) (*types.Bank, bool) {
	if ev == nil {
		return nil, false
	}
	for i := range ev.Banks {
		if ev.Banks[i].Tag == tag {
			return &ev.Banks[i], true
		}
	}
	return nil, false
}

// List returns the tags of all banks in ev in directory order.
func List(ev *types.EventRecord) []string {
	if ev == nil {
		return nil
	}
	tags := make([]string, 0, len(ev.Banks))
	for _, b := range ev.Banks {
		tags = append(tags, b.Tag)
	}
	return tags
}
