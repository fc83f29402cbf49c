package dialect

import (
	"stcisp/internal/mcudb"
	"stcisp/internal/transport"
)

// TargetState accumulates everything identify and the subsequent protocol
// steps learn about the connected device (spec §3). It's created by
// Detect, mutated monotonically by later Engine calls, and discarded at
// session end.
type TargetState struct {
	Descriptor         mcudb.Descriptor
	BSLVersion         string
	FactoryFreqHz      float64
	FactoryTrimCounter int
	WakeupFreqHz       *float64
	UID                []byte // 7 bytes, nil if the dialect doesn't report one
	CurrentOptionBytes []byte
	CurrentBaud        uint32
}

// BaudPlan is the negotiated link speed for handshake and transfer phases
// (spec §3): HandshakeBaud ≤ TransferBaud, both constrained by the
// dialect's fractional-divider tolerance.
type BaudPlan struct {
	HandshakeBaud         uint32
	TransferBaud          uint32
	ParityDuringHandshake transport.Parity
	ParityDuringTransfer  transport.Parity
}
