package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/credgate/go-core/internal/auth"
	"github.com/credgate/go-core/internal/metrics"
	"github.com/credgate/go-core/internal/ratelimit"
)

// contextKey is a private type for request context keys
type contextKey string

const identityContextKey contextKey = "identity"

// decision is the gate's terminal per-request state. A request is pending
// until exactly one transition, admitted or rejected; no retries happen
// inside the gate and a rejection is reported to the caller immediately.
type decision int

const (
	decisionAdmitted decision = iota
	decisionRejected
	decisionUnavailable
)

func (d decision) String() string {
	switch d {
	case decisionAdmitted:
		return "admitted"
	case decisionRejected:
		return "rejected"
	default:
		return "unavailable"
	}
}

// Gate orchestrates admission for every request: resolve the caller
// identity (tolerant of absence), then charge both rate-limit windows and
// admit only if both held.
type Gate struct {
	resolvers []Resolver
	limiter   ratelimit.Limiter
	config    *ratelimit.Config
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewGate creates an admission gate. Resolvers are tried in order; the
// first whose credential is present decides the identity.
func NewGate(resolvers []Resolver, limiter ratelimit.Limiter, config *ratelimit.Config, logger *zap.Logger, m *metrics.Metrics) *Gate {
	if config == nil {
		config = ratelimit.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		resolvers: resolvers,
		limiter:   limiter,
		config:    config,
		logger:    logger,
		metrics:   m,
	}
}

// Handler wraps next with the admission gate
func (g *Gate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		identity, err := g.resolveIdentity(r)
		if err != nil {
			g.rejectAuth(w, r, requestID, err)
			return
		}
		r = r.WithContext(WithIdentity(r.Context(), identity))

		// Excluded paths (health checks) skip straight to admitted.
		if g.config.Excluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		rules := g.config.Select(r.URL.Path, identity.Authenticated())
		tier := tierName(rules)

		headers, rlErr := g.charge(r.Context(), rules, identity.Key())
		if rlErr != nil {
			var limitErr *ratelimit.Error
			if errors.As(rlErr, &limitErr) {
				g.metrics.RecordAdmission(decisionRejected.String(), tier)
				for _, name := range limitErr.ViolatedNames() {
					g.metrics.RecordRateLimitDenial(name)
				}
				g.logger.Info("request rejected by rate limiter",
					zap.String("request_id", requestID),
					zap.String("identity", identity.Key()),
					zap.Strings("violated", limitErr.ViolatedNames()))
				writeJSONError(w, http.StatusTooManyRequests, limitErr.Error(), headers)
				return
			}

			// Store failure: fail closed, never default to allow.
			g.metrics.RecordAdmission(decisionUnavailable.String(), tier)
			g.logger.Error("rate limiter store unavailable",
				zap.String("request_id", requestID),
				zap.Error(rlErr))
			writeJSONError(w, http.StatusServiceUnavailable, "service unavailable", nil)
			return
		}

		g.metrics.RecordAdmission(decisionAdmitted.String(), tier)
		setHeaders(w, headers)
		next.ServeHTTP(w, r)
	})
}

// resolveIdentity tries each resolver in order. Requests without any
// credential resolve to an anonymous IP-keyed identity.
func (g *Gate) resolveIdentity(r *http.Request) (auth.Identity, error) {
	for _, resolver := range g.resolvers {
		identity, present, err := resolver.Resolve(r.Context(), r)
		if !present {
			continue
		}
		if err != nil {
			return auth.Identity{}, err
		}
		return identity, nil
	}
	return auth.Anonymous(ClientIP(r)), nil
}

// charge hits the burst and sustained windows. Both are charged for every
// attempt; admission is the logical AND and nothing is rolled back on a
// partial failure. Quota headers come from the sustained window when
// enabled, and are attached to the 429 as well.
func (g *Gate) charge(ctx context.Context, rules ratelimit.RuleSet, identity string) (map[string]string, error) {
	burstOK, err := g.limiter.Hit(ctx, rules.Burst, identity)
	if err != nil {
		return nil, err
	}
	sustainedOK, err := g.limiter.Hit(ctx, rules.Sustained, identity)
	if err != nil {
		return nil, err
	}

	var headers map[string]string
	if g.config.HeadersEnabled {
		stats, err := g.limiter.WindowStats(ctx, rules.Sustained, identity)
		if err != nil {
			return nil, err
		}
		reset := int(stats.Reset.Seconds())
		if reset < 0 {
			reset = 0
		}
		headers = map[string]string{
			"X-RateLimit-Limit":     strconv.Itoa(stats.Limit),
			"X-RateLimit-Remaining": strconv.Itoa(stats.Remaining),
			"X-RateLimit-Reset":     strconv.Itoa(reset),
		}
	}

	if !burstOK || !sustainedOK {
		limitErr := &ratelimit.Error{Rules: rules}
		if !burstOK {
			limitErr.Violated = append(limitErr.Violated, rules.Burst)
		}
		if !sustainedOK {
			limitErr.Violated = append(limitErr.Violated, rules.Sustained)
		}
		return headers, limitErr
	}
	return headers, nil
}

// rejectAuth maps verification failures to terminal responses: malformed
// and invalid credentials are indistinguishable client errors, store
// failures are server faults that fail closed.
func (g *Gate) rejectAuth(w http.ResponseWriter, r *http.Request, requestID string, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentialFormat), errors.Is(err, auth.ErrInvalidCredential):
		g.logger.Info("credential rejected",
			zap.String("request_id", requestID),
			zap.String("path", r.URL.Path))
		writeJSONError(w, http.StatusForbidden, "invalid credential", nil)
	case errors.Is(err, auth.ErrStoreUnavailable):
		g.logger.Error("credential store unavailable",
			zap.String("request_id", requestID),
			zap.Error(err))
		writeJSONError(w, http.StatusServiceUnavailable, "service unavailable", nil)
	default:
		g.logger.Error("identity resolution failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

// WithIdentity stores the resolved identity in the request context
func WithIdentity(ctx context.Context, identity auth.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFrom extracts the resolved identity from the request context
func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(auth.Identity)
	return identity, ok
}

// tierName derives the tier label from the rule set naming convention
func tierName(rules ratelimit.RuleSet) string {
	name := rules.Burst.Name
	if idx := len(name) - len("-burst"); idx > 0 && name[idx:] == "-burst" {
		return name[:idx]
	}
	return name
}

func setHeaders(w http.ResponseWriter, headers map[string]string) {
	for k, v := range headers {
		w.Header().Set(k, v)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string, headers map[string]string) {
	setHeaders(w, headers)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
