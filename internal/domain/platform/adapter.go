package platform

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Adapter is the narrow outbound port to one marketplace. The transport,
// authentication, and payload plumbing behind it live outside the core; the
// core never performs marketplace I/O directly.
type Adapter interface {
	// Code returns the marketplace this adapter talks to
	Code() Code

	// PushQuantity sets the live quantity of the mirrored listing
	PushQuantity(ctx context.Context, mirror *Mirror, desiredQuantity int64) error

	// EndListing ends the mirrored listing on the marketplace
	EndListing(ctx context.Context, mirror *Mirror, reason string) error
}

// AdapterRegistry resolves adapters by platform code
type AdapterRegistry interface {
	// Get returns the adapter for the given code
	Get(code Code) (Adapter, error)

	// Codes returns the codes of all registered adapters
	Codes() []Code
}

// Registry is an in-memory AdapterRegistry
type Registry struct {
	adapters map[Code]Adapter
}

// NewRegistry creates a registry holding the given adapters
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[Code]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Code()] = a
	}
	return &Registry{adapters: m}
}

// Get returns the adapter for the given code
func (r *Registry) Get(code Code) (Adapter, error) {
	a, ok := r.adapters[code]
	if !ok {
		return nil, fmt.Errorf("platform: no adapter registered for %s", code)
	}
	return a, nil
}

// Codes returns the codes of all registered adapters, sorted for determinism
func (r *Registry) Codes() []Code {
	codes := make([]Code, 0, len(r.adapters))
	for c := range r.adapters {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// SyncError aggregates per-platform push failures for one product. It is
// always handed to the recovery manager, never surfaced raw to the end user.
type SyncError struct {
	Failed     map[Code]string
	Successful []Code
}

// Error implements the error interface
func (e *SyncError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, c := range sortedCodes(e.Failed) {
		parts = append(parts, fmt.Sprintf("%s: %s", c, e.Failed[c]))
	}
	return "platform: sync failed [" + strings.Join(parts, "; ") + "]"
}

// FailedCodes returns the failed platform codes, sorted
func (e *SyncError) FailedCodes() []Code {
	return sortedCodes(e.Failed)
}

func sortedCodes(m map[Code]string) []Code {
	codes := make([]Code, 0, len(m))
	for c := range m {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}
