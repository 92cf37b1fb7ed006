package handler

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/unixorn/crankd/internal/config"
	"github.com/unixorn/crankd/internal/logging"
)

// Compile-time registration tables. Handler packages register their
// functions and classes from init(); the tables are read-only after
// program start.
var (
	tableMutex sync.RWMutex
	functions  = make(map[string]Func)
	classes    = make(map[string]Constructor)
)

// RegisterFunction registers a function handler under a qualified name
// such as "builtin.LogEvent". Called from init() in handler packages.
//
// Example:
//
//	func init() {
//	    handler.RegisterFunction("builtin.LogEvent", LogEvent)
//	}
func RegisterFunction(name string, fn Func) {
	tableMutex.Lock()
	defer tableMutex.Unlock()

	if name == "" {
		panic("handler: RegisterFunction with empty name")
	}
	if fn == nil {
		panic(fmt.Sprintf("handler: RegisterFunction %s with nil function", name))
	}
	if _, exists := functions[name]; exists {
		panic(fmt.Sprintf("handler: RegisterFunction called twice for %s", name))
	}

	functions[name] = fn
}

// RegisterClass registers a class constructor under its name. Called
// from init() in handler packages.
func RegisterClass(name string, ctor Constructor) {
	tableMutex.Lock()
	defer tableMutex.Unlock()

	if name == "" {
		panic("handler: RegisterClass with empty name")
	}
	if ctor == nil {
		panic(fmt.Sprintf("handler: RegisterClass %s with nil constructor", name))
	}
	if _, exists := classes[name]; exists {
		panic(fmt.Sprintf("handler: RegisterClass called twice for %s", name))
	}

	classes[name] = ctor
}

// RegisteredFunctions returns the registered function names, sorted.
func RegisteredFunctions() []string {
	tableMutex.RLock()
	defer tableMutex.RUnlock()

	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisteredClasses returns the registered class names, sorted.
func RegisteredClasses() []string {
	tableMutex.RLock()
	defer tableMutex.RUnlock()

	names := make([]string, 0, len(classes))
	for name := range classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasNamespace reports whether any registered function or class lives
// under the given namespace. Used to validate the config's imports
// list: "builtin" matches "builtin.LogEvent" and a class named either
// "builtin" or "builtin.X".
func HasNamespace(ns string) bool {
	tableMutex.RLock()
	defer tableMutex.RUnlock()

	prefix := ns + "."
	for name := range functions {
		if name == ns || strings.HasPrefix(name, prefix) {
			return true
		}
	}
	for name := range classes {
		if name == ns || strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// UnregisterAll clears both tables. Primarily useful for tests.
func UnregisterAll() {
	tableMutex.Lock()
	defer tableMutex.Unlock()
	functions = make(map[string]Func)
	classes = make(map[string]Constructor)
}

func lookupFunction(name string) (Func, bool) {
	tableMutex.RLock()
	defer tableMutex.RUnlock()
	fn, ok := functions[name]
	return fn, ok
}

func lookupClass(name string) (Constructor, bool) {
	tableMutex.RLock()
	defer tableMutex.RUnlock()
	ctor, ok := classes[name]
	return ctor, ok
}

// Registry resolves specs against the registration tables and owns the
// class instance cache. Each daemon builds its own Registry, so tests
// can run several daemons without shared state.
type Registry struct {
	logger *logging.Logger

	mu        sync.Mutex
	instances map[string]Instance
}

// NewRegistry returns an empty registry logging through logger.
func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Registry{
		logger:    logger,
		instances: make(map[string]Instance),
	}
}

// Instance returns the cached singleton for a class name, constructing
// it on first use. Two specs naming the same class share one instance.
func (r *Registry) Instance(className string) (Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if inst, ok := r.instances[className]; ok {
		return inst, nil
	}

	ctor, ok := lookupClass(className)
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %s)",
			ErrUnknownClass, className, strings.Join(RegisteredClasses(), ", "))
	}

	inst, err := ctor(r.logger.With("class", className))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInstantiation, className, err)
	}
	if inst == nil {
		return nil, fmt.Errorf("%w: %s returned nil", ErrInstantiation, className)
	}

	r.instances[className] = inst
	r.logger.Debugf("instantiated handler class %s", className)
	return inst, nil
}

// Resolve turns a config entry into an invokable Handle. key is the
// event identifier, source the adapter kind ("workspace", "store",
// "path"). Any error here is a startup-fatal resolution error.
func (r *Registry) Resolve(spec config.EventSpec, key, source string) (*Handle, error) {
	h := &Handle{
		Key:     key,
		Source:  source,
		Context: source + ": " + key,
		Spec:    spec,
		logger:  r.logger,
	}

	switch spec.Kind() {
	case config.SpecCommand:
		h.action = commandAction(spec.Command, r.logger)

	case config.SpecFunction:
		fn, ok := lookupFunction(spec.Function)
		if !ok {
			return nil, fmt.Errorf("%w: %q (registered: %s)",
				ErrUnknownFunction, spec.Function, strings.Join(RegisteredFunctions(), ", "))
		}
		h.action = fn

	case config.SpecMethod:
		inst, err := r.Instance(spec.Method[0])
		if err != nil {
			return nil, err
		}
		m, ok := inst.Handlers()[spec.Method[1]]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no handler %q",
				ErrMissingMethod, spec.Method[0], spec.Method[1])
		}
		h.action = m

	case config.SpecClass:
		inst, err := r.Instance(spec.Class)
		if err != nil {
			return nil, err
		}
		m, ok := inst.Handlers()[key]
		if !ok {
			return nil, fmt.Errorf("%w: %s declares no handler for event %q",
				ErrMissingMethod, spec.Class, key)
		}
		h.action = m

	default:
		if spec.Empty() {
			return nil, fmt.Errorf("%w: %s", ErrNoHandlerSpec, key)
		}
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousSpec, key)
	}

	return h, nil
}
