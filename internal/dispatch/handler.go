package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/redisgate/redisgate/internal/gate"
	"github.com/redisgate/redisgate/internal/httpserver"
	"github.com/redisgate/redisgate/internal/pool"
	"github.com/redisgate/redisgate/internal/telemetry"
)

// Handler wires the authorization gate (C4), pool manager (C3), and
// command execution (C5) into HTTP route handlers, per SPEC_FULL.md §6.
type Handler struct {
	Gate           *gate.Gate
	Pools          *pool.Manager
	CommandTimeout time.Duration
	Logger         *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(g *gate.Gate, pools *pool.Manager, commandTimeout time.Duration, logger *slog.Logger) *Handler {
	return &Handler{Gate: g, Pools: pools, CommandTimeout: commandTimeout, Logger: logger}
}

// PathCommand serves GET/POST /redis/{instance_id}/{cmd}/{arg}...
func (h *Handler) PathCommand(w http.ResponseWriter, r *http.Request) {
	instanceID, ok := h.parseInstanceID(w, r)
	if !ok {
		return
	}

	rest := chi.URLParam(r, "*")
	segments := strings.Split(strings.Trim(rest, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		httpserver.RespondErrorKind(w, httpserver.KindBadRequest, "missing command")
		return
	}

	cmd, err := ParsePathCommand(segments[0], segments[1:], r.URL.Query())
	if err != nil {
		h.respondParseError(w, r, instanceID, segments[0], err)
		return
	}

	h.serve(w, r, instanceID, cmd)
}

// KeyRoute serves the method-override convenience route: GET
// /redis/{instance_id}/key/{key}, defaulting to GET, overridden to
// SET/DEL via ?method=, per SPEC_FULL.md §9's decided Open Question.
func (h *Handler) KeyRoute(w http.ResponseWriter, r *http.Request) {
	instanceID, ok := h.parseInstanceID(w, r)
	if !ok {
		return
	}

	key := chi.URLParam(r, "key")
	cmd, err := ResolveKeyRouteOverride(key, r.URL.Query())
	if err != nil {
		h.respondParseError(w, r, instanceID, r.URL.Query().Get("method"), err)
		return
	}

	h.serve(w, r, instanceID, cmd)
}

// BodyCommand serves POST /redis/{instance_id} with a JSON array body.
func (h *Handler) BodyCommand(w http.ResponseWriter, r *http.Request) {
	instanceID, ok := h.parseInstanceID(w, r)
	if !ok {
		return
	}

	var raw []json.RawMessage
	if err := httpserver.Decode(r, &raw); err != nil {
		httpserver.RespondErrorKind(w, httpserver.KindBadRequest, err.Error())
		return
	}

	elements, err := stringifyElements(raw)
	if err != nil {
		httpserver.RespondErrorKind(w, httpserver.KindBadRequest, err.Error())
		return
	}

	cmd, err := ParseBodyCommand(elements)
	if err != nil {
		name := ""
		if len(elements) > 0 {
			name = elements[0]
		}
		h.respondParseError(w, r, instanceID, name, err)
		return
	}

	h.serve(w, r, instanceID, cmd)
}

func (h *Handler) parseInstanceID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "instance_id")
	if !httpserver.ValidateUUID(raw) {
		httpserver.RespondErrorKind(w, httpserver.KindBadRequest, "invalid instance id")
		return uuid.UUID{}, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		httpserver.RespondErrorKind(w, httpserver.KindBadRequest, "invalid instance id")
		return uuid.UUID{}, false
	}
	return id, true
}

func (h *Handler) respondParseError(w http.ResponseWriter, r *http.Request, instanceID uuid.UUID, command string, err error) {
	message := "malformed command"
	if errors.Is(err, ErrUnknownCommand) {
		message = "unknown command"
	}
	h.logError(r, instanceID, command, uuid.UUID{}, httpserver.KindBadRequest, err)
	httpserver.RespondErrorKind(w, httpserver.KindBadRequest, message)
}

// serve implements the full request path of spec.md §2: authorize,
// acquire a pooled connection, execute exactly one command, encode the
// reply, guaranteeing release on every exit path.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request, instanceID uuid.UUID, cmd Command) {
	auth, rej := h.Gate.Authorize(r, instanceID, ScopeClass(cmd.Name))
	if rej != nil {
		h.respondRejection(w, r, instanceID, cmd.Name, rej)
		return
	}

	client, release, err := h.Pools.Acquire(r.Context(), instanceID)
	if err != nil {
		h.respondPoolError(w, r, instanceID, cmd.Name, auth.OrganizationID, err)
		return
	}

	var execErr error
	defer func() { release(execErr) }()

	ctx, cancel := context.WithTimeout(r.Context(), h.CommandTimeout)
	defer cancel()

	start := time.Now()
	reply, execErr := execute(ctx, client, cmd)
	telemetry.CommandDuration.WithLabelValues(cmd.Name).Observe(time.Since(start).Seconds())

	if execErr != nil {
		outcome := "error"
		if errors.Is(execErr, context.DeadlineExceeded) {
			outcome = "timeout"
			telemetry.CommandsTotal.WithLabelValues(cmd.Name, outcome).Inc()
			h.logError(r, instanceID, cmd.Name, auth.OrganizationID, httpserver.KindTimeout, execErr)
			httpserver.RespondErrorKind(w, httpserver.KindTimeout, "command timed out")
			return
		}
		telemetry.CommandsTotal.WithLabelValues(cmd.Name, outcome).Inc()
		h.logError(r, instanceID, cmd.Name, auth.OrganizationID, httpserver.KindRedisCommandError, execErr)
		httpserver.RespondErrorKind(w, httpserver.KindRedisCommandError, execErr.Error())
		return
	}

	telemetry.CommandsTotal.WithLabelValues(cmd.Name, "ok").Inc()
	httpserver.Respond(w, http.StatusOK, map[string]any{"result": reply})
}

// logError records the five structured fields spec.md §7 mandates for
// every error: request_id, tenant_id (organization_id), instance_id,
// command, and error_kind. organizationID is the zero UUID when the
// caller's organization was never resolved (e.g. a missing credential).
func (h *Handler) logError(r *http.Request, instanceID uuid.UUID, command string, organizationID uuid.UUID, kind httpserver.ErrorKind, err error) {
	h.Logger.Error("request failed",
		"request_id", httpserver.RequestIDFromContext(r.Context()),
		"tenant_id", organizationID,
		"instance_id", instanceID,
		"command", command,
		"error_kind", string(kind),
		"error", err,
	)
}

func (h *Handler) respondRejection(w http.ResponseWriter, r *http.Request, instanceID uuid.UUID, command string, rej *gate.Rejection) {
	var kind httpserver.ErrorKind
	switch rej.Kind {
	case gate.Unauthenticated:
		kind = httpserver.KindUnauthenticated
	case gate.InstanceNotFound:
		kind = httpserver.KindInstanceNotFound
	default:
		kind = httpserver.KindForbidden
	}
	h.logError(r, instanceID, command, rej.OrganizationID, kind, errors.New(rej.Reason))
	httpserver.RespondErrorKind(w, kind, rej.Reason)
}

func (h *Handler) respondPoolError(w http.ResponseWriter, r *http.Request, instanceID uuid.UUID, command string, organizationID uuid.UUID, err error) {
	var kind httpserver.ErrorKind
	message := "internal error"
	switch {
	case errors.Is(err, pool.ErrInstanceNotFound):
		kind, message = httpserver.KindInstanceNotFound, "instance not found"
	case errors.Is(err, pool.ErrServiceDiscoveryFailed):
		kind, message = httpserver.KindServiceDiscoveryFailed, "service discovery failed"
	case errors.Is(err, pool.ErrPoolExhausted):
		kind, message = httpserver.KindPoolExhausted, "connection pool exhausted"
	case errors.Is(err, pool.ErrRedisUnavailable):
		kind, message = httpserver.KindRedisUnavailable, "redis unavailable"
	default:
		kind = httpserver.KindInternal
	}
	h.logError(r, instanceID, command, organizationID, kind, err)
	httpserver.RespondErrorKind(w, kind, message)
}

// execute runs exactly one Redis command on client and converts the
// reply, treating redis.Nil as a successful nil reply rather than an
// error, per the nil row of SPEC_FULL.md §4.5's encoding table.
func execute(ctx context.Context, client *redis.Client, cmd Command) (Reply, error) {
	args := make([]any, 0, len(cmd.Args)+1)
	args = append(args, cmd.Name)
	for _, a := range cmd.Args {
		args = append(args, a)
	}

	val, err := client.Do(ctx, args...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Reply{Kind: KindNil}, nil
		}
		return Reply{}, fmt.Errorf("%s: %w", cmd.Name, err)
	}

	return FromRedisValue(val), nil
}

// stringifyElements converts a body-encoded command array's raw JSON
// elements into strings, per SPEC_FULL.md §4.5: numbers are stringified,
// strings pass through unchanged.
func stringifyElements(raw []json.RawMessage) ([]string, error) {
	out := make([]string, len(raw))
	for i, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			out[i] = s
			continue
		}
		var f float64
		if err := json.Unmarshal(r, &f); err == nil {
			out[i] = strconv.FormatFloat(f, 'f', -1, 64)
			continue
		}
		return nil, fmt.Errorf("command element %d must be a string or number", i)
	}
	return out, nil
}
