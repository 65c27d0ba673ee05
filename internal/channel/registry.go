package channel

import (
	"sort"
	"sync"
)

// subKey uniquely identifies a desired subscription.
type subKey struct {
	topicID int
	kind    string
}

// Registry holds the desired set of topic subscriptions. Mutations are
// accepted in any connection state; the Client reconciles the set against
// the live connection whenever it reaches Connected.
type Registry struct {
	mu   sync.Mutex
	want map[subKey]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{want: make(map[subKey]struct{})}
}

// Add records a desired subscription. Adding an existing (topicID, kind)
// pair is a no-op. Returns true if the set changed.
func (r *Registry) Add(topicID int, kind string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := subKey{topicID: topicID, kind: kind}
	if _, ok := r.want[key]; ok {
		return false
	}
	r.want[key] = struct{}{}
	return true
}

// Remove drops every desired subscription for the topic, regardless of
// kind. Returns true if anything was removed.
func (r *Registry) Remove(topicID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := false
	for key := range r.want {
		if key.topicID == topicID {
			delete(r.want, key)
			removed = true
		}
	}
	return removed
}

// Contains reports whether (topicID, kind) is in the desired set.
func (r *Registry) Contains(topicID int, kind string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.want[subKey{topicID: topicID, kind: kind}]
	return ok
}

// List returns the desired set sorted by (kind, topicID) for stable output.
func (r *Registry) List() []Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := make([]Subscription, 0, len(r.want))
	for key := range r.want {
		subs = append(subs, Subscription{TopicID: key.topicID, Kind: key.kind})
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].Kind != subs[j].Kind {
			return subs[i].Kind < subs[j].Kind
		}
		return subs[i].TopicID < subs[j].TopicID
	})
	return subs
}

// Len returns the size of the desired set.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.want)
}

// byKind groups the desired set into one (kind → sorted topic ids) bucket
// per kind. The wire subscribe carries a single type per request, so
// reconciliation sends one request per bucket.
func (r *Registry) byKind() map[string][]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	groups := make(map[string][]int)
	for key := range r.want {
		groups[key.kind] = append(groups[key.kind], key.topicID)
	}
	for kind := range groups {
		sort.Ints(groups[kind])
	}
	return groups
}
