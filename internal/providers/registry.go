package providers

import (
	"errors"
	"log/slog"
	"slices"
	"sort"
	"sync"
)

// Config is the on-disk shape of the provider catalogue.
type Config struct {
	Providers []Descriptor        `yaml:"providers"`
	Failover  map[string][]string `yaml:"failover"`
}

type snapshot struct {
	byID     map[string]Descriptor
	failover map[string][]string
	version  uint64
}

// Registry holds the current provider catalogue. Readers always see a complete
// snapshot; Load swaps snapshots atomically.
type Registry struct {
	knownProtocol func(string) bool

	mu   sync.RWMutex
	snap *snapshot
	subs []chan struct{}
}

// New returns an empty registry. knownProtocol is used to reject descriptors
// whose protocol has no adapter.
func New(knownProtocol func(string) bool) *Registry {
	return &Registry{
		knownProtocol: knownProtocol,
		snap: &snapshot{
			byID:     map[string]Descriptor{},
			failover: map[string][]string{},
		},
	}
}

// Load validates cfg and replaces the catalogue. Invalid descriptors are
// dropped and reported in the returned error; the rest are still loaded.
func (r *Registry) Load(cfg Config) error {
	next := &snapshot{
		byID:     make(map[string]Descriptor, len(cfg.Providers)),
		failover: make(map[string][]string, len(cfg.Failover)),
	}

	var errs []error

	for _, d := range cfg.Providers {
		err := d.Validate(r.knownProtocol)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if _, dup := next.byID[d.ID]; dup {
			errs = append(errs, &ConfigurationError{ProviderID: d.ID, Reason: "duplicate id"})
			continue
		}

		next.byID[d.ID] = d
	}

	for primary, order := range cfg.Failover {
		for _, id := range order {
			if _, ok := next.byID[id]; !ok {
				slog.Warn("failover entry references unknown provider", "primary", primary, "candidate", id)
			}
		}

		next.failover[primary] = slices.Clone(order)
	}

	r.mu.Lock()
	next.version = r.snap.version + 1
	r.snap = next
	subs := slices.Clone(r.subs)
	r.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}

	slog.Info("provider registry loaded", "providers", len(next.byID), "rejected", len(errs), "version", next.version)

	return errors.Join(errs...)
}

// Get returns the descriptor for id.
func (r *Registry) Get(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.snap.byID[id]

	return d, ok
}

// All returns every loaded descriptor ordered by id.
func (r *Registry) All() []Descriptor {
	r.mu.RLock()
	out := make([]Descriptor, 0, len(r.snap.byID))
	for _, d := range r.snap.byID {
		out = append(out, d)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// Enabled returns the enabled descriptors ordered by id.
func (r *Registry) Enabled() []Descriptor {
	all := r.All()

	return slices.DeleteFunc(all, func(d Descriptor) bool { return !d.Enabled })
}

// FailoverOrder returns a copy of the configured fallback candidates for id.
func (r *Registry) FailoverOrder(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.snap.failover[id])
}

// Version increases by one on every Load.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.snap.version
}

// Subscribe returns a channel that receives a value after each Load. Slow
// readers miss intermediate notifications but never the latest one.
func (r *Registry) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)

	r.mu.Lock()
	r.subs = append(r.subs, ch)
	r.mu.Unlock()

	return ch
}
