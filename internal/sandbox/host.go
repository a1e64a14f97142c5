package sandbox

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/traefik/yaegi/interp"
)

const (
	// HostPackage is the import path of the package tool code registers through.
	HostPackage = "toolartifact/sandbox"

	hostAlias  = "toolartifact_host"
	invokeFunc = "toolartifact_invoke"
)

// ToolFunc is the host-side view of a registered tool function.
type ToolFunc func(map[string]interface{}) interface{}

// host is the per-run binding between the interpreter and the runner.
// Each run gets its own host, so registrations never leak between calls.
type host struct {
	mu         sync.Mutex
	registered map[string]ToolFunc
	order      []string
	target     string
	params     map[string]interface{}
	result     interface{}
	invoked    bool
}

func newHost(params map[string]interface{}) *host {
	return &host{registered: make(map[string]ToolFunc), params: params}
}

func (h *host) register(name string, fn ToolFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.registered[name]; !ok {
		h.order = append(h.order, name)
	}
	h.registered[name] = fn
}

func (h *host) invoke() {
	h.mu.Lock()
	fn := h.registered[h.target]
	params := h.params
	h.mu.Unlock()

	if fn == nil {
		panic(fmt.Sprintf("tool %s is not registered", h.target))
	}
	out := fn(params)

	h.mu.Lock()
	h.result = out
	h.invoked = true
	h.mu.Unlock()
}

// bound reports whether exactly name was registered.
func (h *host) bound(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.registered[name]; !ok {
		return fmt.Errorf("%w: %s (registered: %v)", ErrNotRegistered, name, h.order)
	}
	if len(h.registered) != 1 {
		return fmt.Errorf("%w: expected only %s, got %v", ErrNotRegistered, name, h.order)
	}
	h.target = name
	return nil
}

func (h *host) outcome() (interface{}, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.invoked
}

func (h *host) exports() interp.Exports {
	return interp.Exports{
		HostPackage + "/sandbox": {
			"Register": reflect.ValueOf(func(name string, fn func(map[string]interface{}) interface{}) {
				h.register(name, fn)
			}),
			"Invoke": reflect.ValueOf(h.invoke),
		},
	}
}

// wrap assembles the compilation unit: the tool source in package main,
// the host import, and an init that registers the function by name.
func wrap(name, source string) string {
	return fmt.Sprintf(`package main

import %s %q

%s

func init() {
	%s.Register(%q, func(p map[string]interface{}) interface{} { return %s(p) })
}

func %s() { %s.Invoke() }
`, hostAlias, HostPackage, source, hostAlias, name, name, invokeFunc, hostAlias)
}
