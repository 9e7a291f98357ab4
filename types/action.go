package types

// LoadAction selects what happens to a render-target attachment's contents
// when its encoder begins.
type LoadAction uint8

const (
	// LoadActionDontCare leaves the attachment contents undefined.
	LoadActionDontCare LoadAction = iota

	// LoadActionLoad preserves the attachment contents.
	LoadActionLoad

	// LoadActionClear fills the attachment with the clear value.
	LoadActionClear
)

// String returns a human-readable representation of the load action.
func (a LoadAction) String() string {
	switch a {
	case LoadActionDontCare:
		return "DontCare"
	case LoadActionLoad:
		return "Load"
	case LoadActionClear:
		return "Clear"
	default:
		return "Unknown"
	}
}

// StoreAction selects whether an attachment's contents are written back to
// memory when its encoder ends.
type StoreAction uint8

const (
	// StoreActionDontCare discards the attachment contents.
	StoreActionDontCare StoreAction = iota

	// StoreActionStore writes the attachment contents back to memory.
	StoreActionStore
)

// String returns a human-readable representation of the store action.
func (a StoreAction) String() string {
	switch a {
	case StoreActionDontCare:
		return "DontCare"
	case StoreActionStore:
		return "Store"
	default:
		return "Unknown"
	}
}
