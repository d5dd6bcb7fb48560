// Package entity defines the identity of a routable endpoint.
package entity

import (
	"fmt"

	"github.com/sarchlab/bqs/commchannel"
)

// Class discriminates the kind of queue an endpoint is backed by.
type Class uint8

// Classes of endpoints.
const (
	ClassDeviceQueue Class = iota
	ClassClientQueue
	ClassCommTag
)

func (c Class) String() string {
	switch c {
	case ClassDeviceQueue:
		return "dev"
	case ClassClientQueue:
		return "client"
	case ClassCommTag:
		return "comm"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// Variant tells whether an endpoint is a queue, a remote tag or a group.
type Variant uint8

// Variants of endpoints.
const (
	VariantQueue Variant = iota
	VariantTag
	VariantGroup
)

func (v Variant) String() string {
	switch v {
	case VariantQueue:
		return "queue"
	case VariantTag:
		return "tag"
	case VariantGroup:
		return "group"
	default:
		return fmt.Sprintf("variant(%d)", uint8(v))
	}
}

// GroupPolicy selects how a group destination fans out.
type GroupPolicy uint8

// Group policies. The zero value broadcasts to every member.
const (
	PolicyBroadcast GroupPolicy = iota
	PolicyRoundRobin
)

// Direction tells which side of a relation a runtime entity serves.
type Direction uint8

// Directions.
const (
	DirSrc Direction = iota
	DirDst
)

func (d Direction) String() string {
	if d == DirSrc {
		return "src"
	}

	return "dst"
}

// Key is the identity of an endpoint. Two Infos are the same endpoint if and
// only if their keys are equal.
type Key struct {
	Class    Class
	DeviceID uint32
	Variant  Variant
	ID       uint32
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d/%s/%d", k.Class, k.DeviceID, k.Variant, k.ID)
}

// IsGroup tells if the key names a group.
func (k Key) IsGroup() bool {
	return k.Variant == VariantGroup
}

// IsTag tells if the key names a remote tag.
func (k Key) IsTag() bool {
	return k.Variant == VariantTag
}

// Ref locates a runtime entity inside the registry of one partition.
type Ref struct {
	Partition int
	Key       Key
	Dir       Direction
}

// Info carries the identity of an endpoint together with the metadata that
// stays attached to it while it is bound.
type Info struct {
	DeviceID uint32
	Class    Class
	ID       uint32
	Variant  Variant

	GlobalID    uint32
	UUID        uint64
	SchedCfgKey uint32

	GroupPolicy        GroupPolicy
	PeerInstanceNum    uint32
	LocalInstanceIndex uint32

	// Channel is set for tags.
	Channel *commchannel.Channel

	refs  [2]Ref
	bound [2]bool
}

// Queue creates the Info of a plain queue.
func Queue(class Class, deviceID, id uint32) Info {
	return Info{Class: class, DeviceID: deviceID, ID: id, Variant: VariantQueue}
}

// Tag creates the Info of a remote tag bound to ch.
func Tag(deviceID, id uint32, ch commchannel.Channel) Info {
	return Info{
		Class:    ClassCommTag,
		DeviceID: deviceID,
		ID:       id,
		Variant:  VariantTag,
		Channel:  &ch,
	}
}

// Key returns the identity of the endpoint.
func (i *Info) Key() Key {
	return Key{
		Class:    i.Class,
		DeviceID: i.DeviceID,
		Variant:  i.Variant,
		ID:       i.ID,
	}
}

// Equal tells if two Infos name the same endpoint.
func (i *Info) Equal(o *Info) bool {
	return i.Key() == o.Key()
}

func (i *Info) String() string {
	return i.Key().String()
}

// SetEntity records where the runtime entity of the given direction lives.
func (i *Info) SetEntity(ref Ref) {
	i.refs[ref.Dir] = ref
	i.bound[ref.Dir] = true
}

// ClearEntity forgets the runtime entity of the given direction.
func (i *Info) ClearEntity(dir Direction) {
	i.refs[dir] = Ref{}
	i.bound[dir] = false
}

// Entity returns the location of the runtime entity of the given direction.
func (i *Info) Entity(dir Direction) (Ref, bool) {
	return i.refs[dir], i.bound[dir]
}

// Detached returns a copy of the Info without runtime references.
func (i *Info) Detached() Info {
	c := *i
	c.refs = [2]Ref{}
	c.bound = [2]bool{}

	return c
}

// Group creates the Info of a group.
func Group(id uint32, policy GroupPolicy) Info {
	return Info{ID: id, Variant: VariantGroup, GroupPolicy: policy}
}
