package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// SpecKind identifies which action an EventSpec describes.
type SpecKind int

const (
	// SpecInvalid means no variant (or more than one) is set.
	SpecInvalid SpecKind = iota

	// SpecCommand runs a shell command.
	SpecCommand

	// SpecFunction calls a registered function.
	SpecFunction

	// SpecClass dispatches to the instance's handler for the event key.
	SpecClass

	// SpecMethod calls a named handler on a class instance.
	SpecMethod
)

// String returns the config keyword for the kind.
func (k SpecKind) String() string {
	switch k {
	case SpecCommand:
		return "command"
	case SpecFunction:
		return "function"
	case SpecClass:
		return "class"
	case SpecMethod:
		return "method"
	default:
		return "invalid"
	}
}

// EventSpec is one configuration entry: how to handle one named event.
// Exactly one of Command, Function, Class, or Method must be set.
type EventSpec struct {
	// Command is a shell command run with /bin/sh -c. The invocation
	// context arrives as CRANKD_* environment variables.
	Command string `yaml:"command,omitempty" plist:"command,omitempty"`

	// Function names a registered handler function, e.g. "builtin.LogEvent".
	Function string `yaml:"function,omitempty" plist:"function,omitempty"`

	// Class names a registered handler class. The cached instance must
	// declare a handler for the event key it is attached to.
	Class string `yaml:"class,omitempty" plist:"class,omitempty"`

	// Method is a [class, handler] pair naming one handler on the
	// class's cached instance.
	Method []string `yaml:"method,omitempty,flow" plist:"method,omitempty"`
}

// Empty reports whether no variant is set.
func (s EventSpec) Empty() bool {
	return s.Command == "" && s.Function == "" && s.Class == "" && len(s.Method) == 0
}

// Kind reports which variant is set, or SpecInvalid when the spec is
// empty or ambiguous.
func (s EventSpec) Kind() SpecKind {
	kind := SpecInvalid
	n := 0

	if s.Command != "" {
		kind = SpecCommand
		n++
	}
	if s.Function != "" {
		kind = SpecFunction
		n++
	}
	if s.Class != "" {
		kind = SpecClass
		n++
	}
	if len(s.Method) > 0 {
		kind = SpecMethod
		n++
	}

	if n != 1 {
		return SpecInvalid
	}
	return kind
}

// Validate checks the tagged-union invariant and the shape of the set
// variant.
func (s EventSpec) Validate() error {
	set := 0
	for _, present := range []bool{s.Command != "", s.Function != "", s.Class != "", len(s.Method) > 0} {
		if present {
			set++
		}
	}

	switch {
	case set == 0:
		return fmt.Errorf("spec must set one of command, function, class, or method")
	case set > 1:
		return fmt.Errorf("spec sets %d actions, want exactly one", set)
	}

	if len(s.Method) > 0 {
		if len(s.Method) != 2 {
			return fmt.Errorf("method must be a [class, handler] pair, got %d elements", len(s.Method))
		}
		if s.Method[0] == "" || s.Method[1] == "" {
			return fmt.Errorf("method class and handler names must be non-empty")
		}
	}

	return nil
}

// UnmarshalYAML decodes a spec and validates it in place, so malformed
// entries fail at load time rather than at resolution.
func (s *EventSpec) UnmarshalYAML(value *yaml.Node) error {
	type plain EventSpec
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}

	*s = EventSpec(p)
	if err := s.Validate(); err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	return nil
}

// String renders the spec the way list-events and logs show it.
func (s EventSpec) String() string {
	switch s.Kind() {
	case SpecCommand:
		return "command: " + s.Command
	case SpecFunction:
		return "function: " + s.Function
	case SpecClass:
		return "class: " + s.Class
	case SpecMethod:
		return "method: " + strings.Join(s.Method, ".")
	default:
		return "invalid spec"
	}
}
