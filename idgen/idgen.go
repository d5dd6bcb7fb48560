// Package idgen generates the numeric ids used for groups and transactions.
package idgen

import "sync/atomic"

// ID is a unique identifier represented as a uint64.
type ID uint64

// Generator produces unique identifiers.
type Generator interface {
	Generate() ID
}

// New returns a sequential generator whose first emitted ID is "1".
func New() Generator {
	return &sequentialGenerator{}
}

// NewFrom returns a sequential generator whose first emitted ID is start+1.
func NewFrom(start ID) Generator {
	g := &sequentialGenerator{}
	g.next.Store(uint64(start))

	return g
}

type sequentialGenerator struct {
	next atomic.Uint64
}

func (g *sequentialGenerator) Generate() ID {
	return ID(g.next.Add(1))
}
