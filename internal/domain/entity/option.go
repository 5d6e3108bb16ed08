package entity

import "github.com/sangkips/pharmadesk/internal/domain/enum"

// Option is a searchable entity reduced to what a picker needs
type Option struct {
	ID    RemoteID        `json:"id"`
	Label string          `json:"label"`
	Kind  enum.LookupKind `json:"kind"`
	Extra map[string]any  `json:"extra,omitempty"`
}

// OptionLabel and OptionKey are the display and value accessors for Option.
func OptionLabel(o Option) string { return o.Label }
func OptionKey(o Option) string   { return string(o.ID) }
