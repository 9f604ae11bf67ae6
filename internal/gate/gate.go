// Package gate implements the multi-tenant authorization gate (C4): the
// policy object sitting in front of every command request, joining a
// bearer token to the URL-scoped instance and its owning tenant, per
// SPEC_FULL.md §4.4.
package gate

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/redisgate/redisgate/internal/registry"
	"github.com/redisgate/redisgate/internal/telemetry"
	"github.com/redisgate/redisgate/internal/token"
)

// Kind classifies why a request was rejected.
type Kind int

const (
	Unauthenticated Kind = iota
	Forbidden
	InstanceNotFound
)

func (k Kind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	case InstanceNotFound:
		return "instance_not_found"
	default:
		return "unknown"
	}
}

// Rejection is the structured failure returned when authorization fails.
// OrganizationID is set whenever a caller's organization was already
// resolved at the point of rejection (cross-tenant and missing-scope
// rejections); it is the zero UUID for rejections that precede it
// (missing/invalid credential, unknown instance).
type Rejection struct {
	Kind           Kind
	Reason         string
	OrganizationID uuid.UUID
}

func (r *Rejection) Error() string { return r.Reason }

// Scope classes, per the Glossary's fixed command-class mapping.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
	ScopeAdmin = "admin"
)

// Authorization is the resolved outcome of a successful Authorize call.
type Authorization struct {
	OrganizationID uuid.UUID
	Instance       registry.Instance
	Claims         token.APIKeyClaims
}

// Gate binds the token service and instance registry into the
// authorization policy of SPEC_FULL.md §4.4.
type Gate struct {
	tokens *token.Service
	reg    registry.Registry
}

// New constructs a Gate.
func New(tokens *token.Service, reg registry.Registry) *Gate {
	return &Gate{tokens: tokens, reg: reg}
}

// Authorize implements the six-step algorithm of SPEC_FULL.md §4.4.
// requiredScope is the scope class the requested command belongs to, or
// empty to skip the per-command scope check (step 6 is optional per
// spec.md — RedisGate's router always supplies a non-empty class, per
// SPEC_FULL.md §9's decided Open Question).
func (g *Gate) Authorize(r *http.Request, instanceID uuid.UUID, requiredScope string) (Authorization, *Rejection) {
	raw := extractCredential(r)
	if raw == "" {
		telemetry.AuthRejectionsTotal.WithLabelValues(Unauthenticated.String()).Inc()
		return Authorization{}, &Rejection{Kind: Unauthenticated, Reason: "missing bearer credential"}
	}

	claims, err := g.tokens.Verify(raw)
	if err != nil {
		telemetry.AuthRejectionsTotal.WithLabelValues(Unauthenticated.String()).Inc()
		return Authorization{}, &Rejection{Kind: Unauthenticated, Reason: "invalid or expired token"}
	}

	apiClaims, ok := claims.(token.APIKeyClaims)
	if !ok {
		telemetry.AuthRejectionsTotal.WithLabelValues(Forbidden.String()).Inc()
		return Authorization{}, &Rejection{Kind: Forbidden, Reason: "token is not an api-key credential"}
	}

	inst, err := g.reg.GetInstance(r.Context(), instanceID)
	if err != nil {
		kind := InstanceNotFound
		if !errors.Is(err, registry.ErrNotFound) {
			kind = Forbidden
		}
		telemetry.AuthRejectionsTotal.WithLabelValues(kind.String()).Inc()
		return Authorization{}, &Rejection{Kind: kind, Reason: "instance not found"}
	}

	if inst.OrganizationID != apiClaims.OrganizationID {
		telemetry.AuthRejectionsTotal.WithLabelValues(Forbidden.String()).Inc()
		return Authorization{}, &Rejection{Kind: Forbidden, Reason: "instance does not belong to the token's organization", OrganizationID: apiClaims.OrganizationID}
	}

	if requiredScope != "" && !hasScope(apiClaims.Scopes, requiredScope) {
		telemetry.AuthRejectionsTotal.WithLabelValues(Forbidden.String()).Inc()
		return Authorization{}, &Rejection{Kind: Forbidden, Reason: "token lacks required scope " + requiredScope, OrganizationID: apiClaims.OrganizationID}
	}

	return Authorization{OrganizationID: inst.OrganizationID, Instance: inst, Claims: apiClaims}, nil
}

// extractCredential reads the bearer credential per SPEC_FULL.md §4.4:
// the Authorization header takes precedence over the _token query
// parameter.
func extractCredential(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return tok
		}
		return ""
	}
	return r.URL.Query().Get("_token")
}

func hasScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}
