package types

// PassKind identifies the unit of GPU work a pass performs. Consecutive
// passes of the same kind may share an encoder; a kind change always closes
// the current encoder.
type PassKind uint8

const (
	// PassDraw renders into a set of attachments.
	PassDraw PassKind = iota

	// PassCompute dispatches compute work.
	PassCompute

	// PassBlit copies and converts resource contents.
	PassBlit

	// PassExternal hands the frame's command buffer to code outside the
	// frame graph; no encoder is opened for it.
	PassExternal

	// PassCPU runs host-side work ordered within the frame.
	PassCPU
)

// String returns a human-readable representation of the pass kind.
func (k PassKind) String() string {
	switch k {
	case PassDraw:
		return "Draw"
	case PassCompute:
		return "Compute"
	case PassBlit:
		return "Blit"
	case PassExternal:
		return "External"
	case PassCPU:
		return "CPU"
	default:
		return "Unknown"
	}
}
