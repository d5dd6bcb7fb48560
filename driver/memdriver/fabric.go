package memdriver

import (
	"errors"
	"sync"

	"github.com/sarchlab/bqs/commchannel"
	"github.com/sarchlab/bqs/driver"
)

// ErrUnknownRequest is reported for requests the fabric does not know.
var ErrUnknownRequest = errors.New("unknown fabric request")

type mailboxKey struct {
	handle  uint64
	dstRank uint32
	dstTag  uint32
	srcRank uint32
}

type request struct {
	done bool
	err  error
}

// Fabric is a loopback remote fabric. A message sent on a channel is
// received by the channel whose local rank and tag equal the sender's peer
// rank and tag on the same communicator handle.
type Fabric struct {
	mu sync.Mutex

	mailboxes map[mailboxKey][][]byte
	probed    map[uint64][]byte
	reqs      map[driver.Request]*request
	nextReq   driver.Request
	nextProbe uint64

	sendErr   error
	cancelErr error
	holdAll   bool
}

// NewFabric creates an empty Fabric.
func NewFabric() *Fabric {
	return &Fabric{
		mailboxes: make(map[mailboxKey][][]byte),
		probed:    make(map[uint64][]byte),
		reqs:      make(map[driver.Request]*request),
	}
}

// FailSend makes later Isend calls fail with err. A nil err clears it.
func (f *Fabric) FailSend(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sendErr = err
}

// FailCancel makes later Cancel calls fail with err. A nil err clears it.
func (f *Fabric) FailCancel(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelErr = err
}

// Hold keeps every new request pending until Release is called.
func (f *Fabric) Hold() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.holdAll = true
}

// Release completes every held request.
func (f *Fabric) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.holdAll = false
	for _, r := range f.reqs {
		r.done = true
	}
}

// Pending returns the number of messages waiting to be probed by ch.
func (f *Fabric) Pending(ch *commchannel.Channel) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.mailboxes[recvKey(ch)])
}

func sendKey(ch *commchannel.Channel) mailboxKey {
	return mailboxKey{
		handle:  ch.Handle,
		dstRank: ch.PeerRankID,
		dstTag:  ch.PeerTagID,
		srcRank: ch.LocalRankID,
	}
}

func recvKey(ch *commchannel.Channel) mailboxKey {
	return mailboxKey{
		handle:  ch.Handle,
		dstRank: ch.LocalRankID,
		dstTag:  ch.LocalTagID,
		srcRank: ch.PeerRankID,
	}
}

func (f *Fabric) newRequestLocked(err error) driver.Request {
	f.nextReq++
	f.reqs[f.nextReq] = &request{done: !f.holdAll, err: err}

	return f.nextReq
}

// Isend posts a send. The data is copied. It fails with driver.ErrFull while
// the peer holds PeerTagDepth unreceived messages.
func (f *Fabric) Isend(
	ch *commchannel.Channel,
	data []byte,
) (driver.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sendErr != nil {
		return 0, f.sendErr
	}

	key := sendKey(ch)
	if ch.PeerTagDepth > 0 &&
		len(f.mailboxes[key]) >= int(ch.PeerTagDepth) {
		return 0, driver.ErrFull
	}

	f.mailboxes[key] = append(f.mailboxes[key], append([]byte(nil), data...))

	return f.newRequestLocked(nil), nil
}

// Improbe matches the oldest message addressed to ch.
func (f *Fabric) Improbe(
	ch *commchannel.Channel,
) (driver.Envelope, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := recvKey(ch)

	box := f.mailboxes[key]
	if len(box) == 0 {
		return driver.Envelope{}, false, nil
	}

	msg := box[0]
	f.mailboxes[key] = box[1:]

	f.nextProbe++
	f.probed[f.nextProbe] = msg

	return driver.Envelope{Handle: f.nextProbe, Len: len(msg)}, true, nil
}

// Imrecv receives a probed message into buf.
func (f *Fabric) Imrecv(
	_ *commchannel.Channel,
	env driver.Envelope,
	buf []byte,
) (driver.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msg, found := f.probed[env.Handle]
	if !found {
		return 0, ErrUnknownRequest
	}

	delete(f.probed, env.Handle)
	copy(buf, msg)

	return f.newRequestLocked(nil), nil
}

// TestSome reports the finished requests among reqs.
func (f *Fabric) TestSome(reqs []driver.Request) ([]driver.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []driver.Completion

	for _, id := range reqs {
		r, found := f.reqs[id]
		if !found {
			out = append(out, driver.Completion{
				Request: id,
				Err:     ErrUnknownRequest,
			})

			continue
		}

		if !r.done {
			continue
		}

		out = append(out, driver.Completion{Request: id, Err: r.err})
		delete(f.reqs, id)
	}

	return out, nil
}

// Cancel forgets a request, finished or not.
func (f *Fabric) Cancel(req driver.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancelErr != nil {
		return f.cancelErr
	}

	if _, found := f.reqs[req]; !found {
		return ErrUnknownRequest
	}

	delete(f.reqs, req)

	return nil
}

// Outstanding returns the number of requests not yet reported by TestSome
// nor cancelled.
func (f *Fabric) Outstanding() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.reqs)
}
