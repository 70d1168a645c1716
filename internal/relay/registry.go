package relay

import "sort"

// session is what the registry knows about one logged-in connection.
type session struct {
	identity string
	token    string
}

// Registry tracks which identities are logged in on which connections. An
// identity may hold several connections at once (several tabs), but a new
// login for an identity is refused while any of them is still live.
//
// Registry is not safe for concurrent use; the Hub serializes all access.
type Registry struct {
	byIdentity map[string]map[string]struct{}
	byConn     map[string]session
}

func NewRegistry() *Registry {
	return &Registry{
		byIdentity: make(map[string]map[string]struct{}),
		byConn:     make(map[string]session),
	}
}

// Login binds identity and token to connID.
func (r *Registry) Login(connID, identity, token string) error {
	if _, ok := r.byConn[connID]; ok {
		return ErrAlreadyLoggedIn
	}
	if len(r.byIdentity[identity]) > 0 {
		return ErrAlreadyLoggedIn
	}

	conns := r.byIdentity[identity]
	if conns == nil {
		conns = make(map[string]struct{})
		r.byIdentity[identity] = conns
	}
	conns[connID] = struct{}{}
	r.byConn[connID] = session{identity: identity, token: token}
	return nil
}

// IsAuthenticated reports whether identity is live on connID.
func (r *Registry) IsAuthenticated(identity, connID string) bool {
	conns := r.byIdentity[identity]
	if len(conns) == 0 {
		return false
	}
	_, ok := conns[connID]
	return ok
}

// Identity returns the identity connID logged in as.
func (r *Registry) Identity(connID string) (string, bool) {
	s, ok := r.byConn[connID]
	return s.identity, ok
}

// Token returns the opaque login token presented by connID.
func (r *Registry) Token(connID string) (string, bool) {
	s, ok := r.byConn[connID]
	return s.token, ok
}

// Connections returns the live connections of identity, sorted.
func (r *Registry) Connections(identity string) []string {
	conns := r.byIdentity[identity]
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Logout forgets connID. The identity entry goes away with its last
// connection. Logging out an unknown connection is a no-op.
func (r *Registry) Logout(connID string) {
	s, ok := r.byConn[connID]
	if !ok {
		return
	}
	delete(r.byConn, connID)

	conns := r.byIdentity[s.identity]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.byIdentity, s.identity)
	}
}

// Len returns the number of logged-in identities.
func (r *Registry) Len() int {
	return len(r.byIdentity)
}

// Sessions returns the number of logged-in connections.
func (r *Registry) Sessions() int {
	return len(r.byConn)
}
