// Package uia models the UI-automation elements the recorder points at.
//
// The recorder never owns an element. Raw events carry a Ref, an opaque key
// issued by the capture backend, and every access goes through a Registry
// lookup that may fail once the underlying object has disappeared.
package uia

import (
	"errors"
	"time"
)

// ErrElementUnavailable reports that the referenced element no longer exists
// or cannot be inspected.
var ErrElementUnavailable = errors.New("ui element unavailable")

// Ref is a weak reference to an element owned by the capture backend.
type Ref string

// IsZero reports whether the reference is empty.
func (r Ref) IsZero() bool { return r == "" }

// Info is the resolved, serialisable description of an element.
type Info struct {
	Role            string `json:"role,omitempty"`
	Name            string `json:"name,omitempty"`
	ApplicationName string `json:"application_name,omitempty"`
}

// Element is a live handle to an external UI object. Every method may fail
// with ErrElementUnavailable.
type Element interface {
	Describe() (Info, error)
	// Text returns the element's textual content, descending at most depth
	// levels into its children.
	Text(depth int) (string, error)
	Highlight(color uint32, d time.Duration) error
}

// Registry resolves weak references into live elements.
type Registry interface {
	Lookup(ref Ref) (Element, error)
}

// RegistryFunc adapts a function to the Registry interface.
type RegistryFunc func(ref Ref) (Element, error)

// Lookup calls the underlying function.
func (f RegistryFunc) Lookup(ref Ref) (Element, error) {
	return f(ref)
}

// Describe resolves ref through reg. A nil registry or zero ref yields
// (nil, nil); lookup failures are returned so callers can count them.
func Describe(reg Registry, ref Ref) (*Info, error) {
	if reg == nil || ref.IsZero() {
		return nil, nil
	}
	el, err := reg.Lookup(ref)
	if err != nil {
		return nil, err
	}
	info, err := el.Describe()
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// IsEditable reports whether a role accepts free text. Unknown roles are
// treated as editable so sessions still open when the backend cannot tell.
func IsEditable(role string) bool {
	switch role {
	case "", "edit", "text", "textfield", "textarea", "document", "combobox", "searchfield", "AXTextField", "AXTextArea", "AXComboBox", "AXSearchField":
		return true
	default:
		return false
	}
}
