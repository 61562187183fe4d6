package codec

import (
	"fmt"
	"reflect"

	"golang.org/x/text/unicode/norm"
)

// Registration binds a custom type name to its Go type. Ignored fields
// are stripped on encode and are permanently lost on a round trip; the
// name is what appears in the "custom-<Name>" wire tag.
type Registration struct {
	Name    string
	Type    reflect.Type
	Pointer bool
	Ignored map[string]bool
}

// Registry holds custom-type registrations for one codec instance.
// It is populated once at startup and read-only afterwards; lookups by
// type walk registrations in registration order, first match wins.
type Registry struct {
	byName  map[string]*Registration
	ordered []*Registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Registration)}
}

// Register adds a custom type. The prototype may be a struct value or a
// pointer to one; decode reproduces the same form. Registering the same
// name or the same type twice is an error, since a name lookup at decode
// time must be unambiguous.
func (r *Registry) Register(name string, prototype any, ignored ...string) error {
	name = norm.NFC.String(name)
	if name == "" {
		return fmt.Errorf("register custom type: empty name")
	}
	t := reflect.TypeOf(prototype)
	if t == nil {
		return fmt.Errorf("register custom type %q: nil prototype", name)
	}
	pointer := t.Kind() == reflect.Pointer
	if pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return fmt.Errorf("register custom type %q: prototype must be a struct or struct pointer, got %s", name, t.Kind())
	}
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("register custom type %q: name already registered", name)
	}
	for _, reg := range r.ordered {
		if reg.Type == t {
			return fmt.Errorf("register custom type %q: type %s already registered as %q", name, t, reg.Name)
		}
	}

	ign := make(map[string]bool, len(ignored))
	for _, f := range ignored {
		ign[f] = true
	}
	reg := &Registration{Name: name, Type: t, Pointer: pointer, Ignored: ign}
	r.byName[name] = reg
	r.ordered = append(r.ordered, reg)
	return nil
}

// lookupByType returns the first registration matching t, which may be
// the struct type itself or a pointer to it.
func (r *Registry) lookupByType(t reflect.Type) (*Registration, bool) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	for _, reg := range r.ordered {
		if reg.Type == t {
			return reg, true
		}
	}
	return nil, false
}

// lookupByName returns the registration for a wire tag name.
func (r *Registry) lookupByName(name string) (*Registration, bool) {
	reg, ok := r.byName[norm.NFC.String(name)]
	return reg, ok
}
