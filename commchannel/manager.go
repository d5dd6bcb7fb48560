package commchannel

import "sync"

// ID is the numeric id assigned to a Channel by a Manager.
type ID uint32

// Manager is the sole source of channel ids. It owns a copy of every
// registered descriptor so that pollers can compare channels by pointer.
// One Manager is shared by all partitions, so the use count it keeps decides
// when a descriptor goes away.
type Manager struct {
	mu     sync.Mutex
	ids    map[Channel]ID
	descs  map[ID]*Channel
	uses   map[ID]int
	nextID ID
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		ids:   make(map[Channel]ID),
		descs: make(map[ID]*Channel),
		uses:  make(map[ID]int),
	}
}

func (m *Manager) registerLocked(ch Channel) (ID, *Channel) {
	if id, found := m.ids[ch]; found {
		return id, m.descs[id]
	}

	id := m.nextID
	m.nextID++

	desc := ch
	m.ids[ch] = id
	m.descs[id] = &desc

	return id, &desc
}

// ChannelID looks up the id of ch, assigning a new one if ch has not been
// seen. The returned pointer stays valid until the channel is deleted.
func (m *Manager) ChannelID(ch Channel) (ID, *Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.registerLocked(ch)
}

// Acquire is ChannelID that also counts one more user of ch. Every Acquire
// is paired with a Release.
func (m *Manager) Acquire(ch Channel) (ID, *Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, desc := m.registerLocked(ch)
	m.uses[id]++

	return id, desc
}

// Release drops one user of ch. The channel is deleted with its last user.
func (m *Manager) Release(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, found := m.ids[ch]
	if !found {
		return
	}

	m.uses[id]--
	if m.uses[id] > 0 {
		return
	}

	m.deleteLocked(ch, id)
}

// Uses returns the number of users of ch.
func (m *Manager) Uses(ch Channel) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, found := m.ids[ch]
	if !found {
		return 0
	}

	return m.uses[id]
}

// Lookup returns the descriptor registered under id.
func (m *Manager) Lookup(id ID) (*Channel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	desc, found := m.descs[id]

	return desc, found
}

// Delete removes ch regardless of its users. Deleting an unknown channel
// does nothing.
func (m *Manager) Delete(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, found := m.ids[ch]; found {
		m.deleteLocked(ch, id)
	}
}

func (m *Manager) deleteLocked(ch Channel, id ID) {
	delete(m.ids, ch)
	delete(m.descs, id)
	delete(m.uses, id)
}

// Len returns the number of registered channels.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.ids)
}
