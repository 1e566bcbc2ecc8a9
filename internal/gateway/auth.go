package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Authorizer decides whether an upgrade request carries valid credentials.
// How credentials are verified is up to the implementation; the gateway
// only acts on the result.
type Authorizer interface {
	Authorize(r *http.Request) bool
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(r *http.Request) bool

func (f AuthorizerFunc) Authorize(r *http.Request) bool { return f(r) }

// AllowAll admits every request.
var AllowAll Authorizer = AuthorizerFunc(func(*http.Request) bool { return true })

// TokenAuthorizer accepts a static set of bearer tokens, presented either
// as "Authorization: Bearer <token>" or as the token query parameter.
type TokenAuthorizer struct {
	tokens [][]byte
}

// NewTokenAuthorizer returns AllowAll when tokens is empty.
func NewTokenAuthorizer(tokens []string) Authorizer {
	var set [][]byte
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			set = append(set, []byte(t))
		}
	}
	if len(set) == 0 {
		return AllowAll
	}
	return &TokenAuthorizer{tokens: set}
}

func (a *TokenAuthorizer) Authorize(r *http.Request) bool {
	presented := credential(r)
	if presented == "" {
		return false
	}
	ok := 0
	for _, t := range a.tokens {
		ok |= subtle.ConstantTimeCompare([]byte(presented), t)
	}
	return ok == 1
}

func credential(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, found := strings.Cut(h, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
