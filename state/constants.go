package state

import "time"

const (
	// LSInfinity is the metric of a withdrawn record
	LSInfinity = uint32(0xffffff)
	// InitialSequenceNumber is the first sequence number used by an origin
	InitialSequenceNumber = uint32(0x80000001)

	// FakeLinkCost is the cost of the link between a fake node and its anchor
	FakeLinkCost = uint32(1)

	// MaxFrameSize bounds a single southbound frame
	MaxFrameSize = 1 << 20
)

var (
	// InjectionCost is the default cost of the link attaching the controller to the network.
	InjectionCost = uint32(10000)

	AdjacencyRetryMin = time.Millisecond * 500
	AdjacencyRetryMax = time.Second * 30
	HandshakeTimeout  = time.Second * 5
	ShutdownTimeout   = time.Second * 5

	TombstoneTTL   = time.Minute * 1
	GcDelay        = time.Second * 5
	EventDedupTTL  = time.Second * 10
	DispatchBuffer = 128

	// RecomputeWarnThreshold logs recomputations slower than this
	RecomputeWarnThreshold = time.Millisecond * 50
)
