// Package subscription tracks event-feed subscriptions by entity so they can
// be torn down reliably. Each subscribed entity holds exactly one token, a
// token unsubscribes at most once no matter how often it is invoked, and
// UnsubscribeAll releases everything in one sweep when the server goes away.
package subscription

import "sync"

// Kind identifies which class of entity a subscription is attached to.
type Kind int

const (
	KindServer Kind = iota
	KindClient
	KindGroup
)

func (k Kind) String() string {
	switch k {
	case KindServer:
		return "server"
	case KindClient:
		return "client"
	case KindGroup:
		return "group"
	default:
		return "unknown"
	}
}

// Key names one subscribed entity.
type Key struct {
	Kind Kind
	ID   string
}

func ServerKey(id string) Key { return Key{Kind: KindServer, ID: id} }
func ClientKey(id string) Key { return Key{Kind: KindClient, ID: id} }
func GroupKey(id string) Key  { return Key{Kind: KindGroup, ID: id} }

// Token wraps an unsubscribe function so that invoking it twice, or after
// the entity is already gone, has no effect beyond the first call.
type Token struct {
	once   sync.Once
	cancel func()
}

func newToken(cancel func()) *Token {
	return &Token{cancel: cancel}
}

// Unsubscribe detaches the underlying listener. Safe to call repeatedly.
func (t *Token) Unsubscribe() {
	t.once.Do(func() {
		if t.cancel != nil {
			t.cancel()
		}
	})
}

// Registry maps entity keys to live subscription tokens.
type Registry struct {
	mu     sync.Mutex
	tokens map[Key]*Token
}

func NewRegistry() *Registry {
	return &Registry{tokens: make(map[Key]*Token)}
}

// Subscribe attaches a listener for key unless one is already tracked.
// attach runs without the registry lock held and returns the entity's
// unsubscribe function. Subscribe reports whether the attachment happened,
// so a second subscription for the same entity is refused rather than
// stacked.
func (r *Registry) Subscribe(key Key, attach func() func()) bool {
	r.mu.Lock()
	if _, exists := r.tokens[key]; exists {
		r.mu.Unlock()
		return false
	}
	// Reserve the key so a racing Subscribe for the same entity backs off
	// while attach is still running.
	r.tokens[key] = nil
	r.mu.Unlock()

	token := newToken(attach())

	r.mu.Lock()
	if _, reserved := r.tokens[key]; reserved {
		r.tokens[key] = token
		r.mu.Unlock()
		return true
	}
	r.mu.Unlock()

	// UnsubscribeAll swept the reservation away while attach was running;
	// the fresh listener must not outlive it.
	token.Unsubscribe()
	return false
}

// Unsubscribe detaches and forgets the entity's listener. Unknown keys are
// a no-op.
func (r *Registry) Unsubscribe(key Key) {
	r.mu.Lock()
	token := r.tokens[key]
	delete(r.tokens, key)
	r.mu.Unlock()

	if token != nil {
		token.Unsubscribe()
	}
}

// UnsubscribeAll detaches every tracked listener. Tokens are invoked outside
// the registry lock, so unsubscribe functions may safely touch the registry.
func (r *Registry) UnsubscribeAll() {
	r.mu.Lock()
	tokens := r.tokens
	r.tokens = make(map[Key]*Token)
	r.mu.Unlock()

	for _, token := range tokens {
		if token != nil {
			token.Unsubscribe()
		}
	}
}

// Has reports whether the entity currently holds a subscription.
func (r *Registry) Has(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tokens[key]
	return ok
}

// Len returns the number of tracked subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}
