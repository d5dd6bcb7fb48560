// Package commchannel tracks remote-fabric channels and the requests in flight
// on them.
package commchannel

import "fmt"

// A Channel describes one remote communication path. Channels are compared
// structurally.
type Channel struct {
	Handle        uint64
	LocalTagID    uint32
	PeerTagID     uint32
	LocalRankID   uint32
	PeerRankID    uint32
	LocalTagDepth uint32
	PeerTagDepth  uint32
}

func (c Channel) String() string {
	return fmt.Sprintf("comm(%d r%d/t%d->r%d/t%d)",
		c.Handle, c.LocalRankID, c.LocalTagID, c.PeerRankID, c.PeerTagID)
}
