package entitymanager

import (
	"sync"

	"github.com/sarchlab/bqs/endpoint"
)

// CommChannels is the set of channel entities of one direction together with
// their in-flight requests. Membership is guarded by a read-write lock; the
// request set has its own lock so that posting requests does not contend with
// membership changes.
type CommChannels struct {
	mu       sync.RWMutex
	entities []*endpoint.ChannelEntity

	Requests *endpoint.RequestSet
}

func newCommChannels() *CommChannels {
	return &CommChannels{Requests: endpoint.NewRequestSet()}
}

func (c *CommChannels) add(e *endpoint.ChannelEntity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entities = append(c.entities, e)
}

func (c *CommChannels) remove(e *endpoint.ChannelEntity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, x := range c.entities {
		if x == e {
			c.entities = append(c.entities[:i], c.entities[i+1:]...)
			break
		}
	}

	c.Requests.RemoveOwner(e)
}

// Entities returns a snapshot of the channel entities.
func (c *CommChannels) Entities() []*endpoint.ChannelEntity {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]*endpoint.ChannelEntity(nil), c.entities...)
}

// Len returns the number of channel entities.
func (c *CommChannels) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entities)
}
