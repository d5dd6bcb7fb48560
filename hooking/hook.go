// Package hooking lets observers attach to the router without changing it.
package hooking

import (
	"reflect"
	"sync"
)

// HookPos defines the enum of possible hooking positions.
type HookPos struct {
	Name string
}

// HookCtx is the context that holds all the information about the site that a
// hook is triggered.
type HookCtx struct {
	Domain    Hookable
	Pos       *HookPos
	Partition int
	Item      any
	Detail    any
}

// Hookable defines an object that accept Hooks.
type Hookable interface {
	// AcceptHook registers a hook.
	AcceptHook(hook Hook)

	// NumHooks returns the number of hooks registered.
	NumHooks() int
}

// Hook is a short piece of program that can be invoked by a hookable object.
type Hook interface {
	// Func determines what to do if hook is invoked.
	Func(ctx HookCtx)
}

// HookFunc adapts a function to the Hook interface.
type HookFunc func(ctx HookCtx)

// Func calls f.
func (f HookFunc) Func(ctx HookCtx) {
	f(ctx)
}

// A HookableBase provides some utility function for other type that implement
// the Hookable interface. Hooks may be registered and invoked from different
// goroutines.
type HookableBase struct {
	mu       sync.RWMutex
	hookList []Hook
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.hookList)
}

// AcceptHook register a hook.
func (h *HookableBase) AcceptHook(hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if reflect.TypeOf(hook).Comparable() {
		for _, existing := range h.hookList {
			if existing == hook {
				panic("duplicated hook")
			}
		}
	}

	h.hookList = append(h.hookList, hook)
}

// InvokeHook triggers the register Hooks.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	h.mu.RLock()
	hooks := h.hookList
	h.mu.RUnlock()

	for _, hook := range hooks {
		hook.Func(ctx)
	}
}
