package model

// This file contains the test registry: the ordered collection of
// discovered test cases. The registry is a value constructed by
// discovery and handed to the classifier and scheduler; there is no
// process-wide instance.

import "fmt"

// Registry holds discovered test cases in discovery order.
type Registry struct {
	cases []TestCase
	index map[string]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Add appends a test case, rejecting duplicate identities.
func (r *Registry) Add(tc TestCase) error {
	if tc.ID == "" {
		return fmt.Errorf("test case has empty identity")
	}
	if _, ok := r.index[tc.ID]; ok {
		return fmt.Errorf("duplicate test identity %q", tc.ID)
	}
	r.index[tc.ID] = len(r.cases)
	r.cases = append(r.cases, tc)
	return nil
}

// Get returns the test case with the given identity.
func (r *Registry) Get(id string) (TestCase, bool) {
	i, ok := r.index[id]
	if !ok {
		return TestCase{}, false
	}
	return r.cases[i], true
}

// Update replaces an existing test case. Used by the classifier to
// assign category and priority.
func (r *Registry) Update(tc TestCase) error {
	i, ok := r.index[tc.ID]
	if !ok {
		return fmt.Errorf("unknown test identity %q", tc.ID)
	}
	r.cases[i] = tc
	return nil
}

// Cases returns the test cases in discovery order. The slice is a copy;
// mutating it does not affect the registry.
func (r *Registry) Cases() []TestCase {
	out := make([]TestCase, len(r.cases))
	copy(out, r.cases)
	return out
}

// Len returns the number of registered test cases.
func (r *Registry) Len() int {
	return len(r.cases)
}
