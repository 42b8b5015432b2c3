package version

var (
	// GitCommit is the current HEAD set using ldflags.
	GitCommit string

	// Version is the built softwares version.
	Version string = NodeSemVer
)

func init() {
	if GitCommit != "" {
		Version += "-" + GitCommit
	}
}

const (
	// NodeSemVer is the current version of intentd.
	// It's the Semantic Version of the software.
	NodeSemVer = "0.4.0"
)

// Protocol is used for implementation agnostic versioning.
type Protocol uint64

// Uint64 returns the Protocol version as a uint64.
func (p Protocol) Uint64() uint64 {
	return uint64(p)
}

var (
	// GossipProtocol versions the gossip messages and topic names.
	GossipProtocol Protocol = 1

	// LedgerProtocol versions tx encoding, the host ABI and the state
	// commitment.
	LedgerProtocol Protocol = 1
)

// Protocols reports the protocol versions a node speaks.
type Protocols struct {
	Gossip Protocol `json:"gossip"`
	Ledger Protocol `json:"ledger"`
}

// Current returns the protocol versions of this build.
func Current() Protocols {
	return Protocols{Gossip: GossipProtocol, Ledger: LedgerProtocol}
}
