package uia

import (
	"fmt"
	"sync"
	"time"
)

// MemoryRegistry is an in-process Registry used by the synthetic and replay
// sources. Elements can be removed to simulate vanished UI objects.
type MemoryRegistry struct {
	mu       sync.RWMutex
	elements map[Ref]Element
}

// NewMemoryRegistry constructs an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{elements: make(map[Ref]Element)}
}

// Put registers or replaces the element behind ref.
func (m *MemoryRegistry) Put(ref Ref, el Element) {
	m.mu.Lock()
	m.elements[ref] = el
	m.mu.Unlock()
}

// Forget drops ref; later lookups fail with ErrElementUnavailable.
func (m *MemoryRegistry) Forget(ref Ref) {
	m.mu.Lock()
	delete(m.elements, ref)
	m.mu.Unlock()
}

// Lookup implements Registry.
func (m *MemoryRegistry) Lookup(ref Ref) (Element, error) {
	m.mu.RLock()
	el, ok := m.elements[ref]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("lookup %q: %w", ref, ErrElementUnavailable)
	}
	return el, nil
}

// StaticElement is a fixed Element. Value is mutable so tests can simulate
// the control's text changing underneath the recorder.
type StaticElement struct {
	mu         sync.Mutex
	info       Info
	value      string
	highlights int
}

// NewStaticElement constructs an element with the supplied description.
func NewStaticElement(role, name, app string) *StaticElement {
	return &StaticElement{info: Info{Role: role, Name: name, ApplicationName: app}}
}

// SetValue replaces the element's text content.
func (s *StaticElement) SetValue(v string) {
	s.mu.Lock()
	s.value = v
	s.mu.Unlock()
}

// Describe implements Element.
func (s *StaticElement) Describe() (Info, error) {
	return s.info, nil
}

// Text implements Element.
func (s *StaticElement) Text(int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, nil
}

// Highlight implements Element by counting requests.
func (s *StaticElement) Highlight(uint32, time.Duration) error {
	s.mu.Lock()
	s.highlights++
	s.mu.Unlock()
	return nil
}

// Highlights returns how many highlight requests were received.
func (s *StaticElement) Highlights() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highlights
}
