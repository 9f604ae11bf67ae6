// Package dispatch implements the command dispatcher (C5): translating
// HTTP requests into Redis commands on a pooled connection and encoding
// a uniform JSON reply, per SPEC_FULL.md §4.5.
package dispatch

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/redisgate/redisgate/internal/gate"
	"github.com/redisgate/redisgate/internal/httpserver"
)

// ErrUnknownCommand is returned when a path-encoded command name is not
// on the fixed allow-list.
var ErrUnknownCommand = errors.New("unknown command")

// ErrBadRequest covers malformed arguments (e.g. a non-integer EX value).
var ErrBadRequest = errors.New("bad request")

// allowList is the fixed set of path-encoded command names from
// SPEC_FULL.md §4.5.
var allowList = map[string]bool{
	"PING": true, "GET": true, "SET": true, "DEL": true, "INCR": true,
	"DECR": true, "EXISTS": true, "EXPIRE": true, "TTL": true, "APPEND": true,
	"STRLEN": true, "LPUSH": true, "RPUSH": true, "LPOP": true, "RPOP": true,
	"LLEN": true, "LRANGE": true, "HSET": true, "HGET": true, "HDEL": true,
	"HEXISTS": true, "HGETALL": true, "HKEYS": true, "HVALS": true,
	"SADD": true, "SREM": true, "SISMEMBER": true, "SMEMBERS": true, "SCARD": true,
}

// scopeClasses maps each command name to the Glossary's fixed scope
// class. Commands absent from this table (forwarded body-encoded
// commands outside the allow-list) default to ScopeAdmin, the strictest
// class, since the Glossary reserves "admin" for destructive/global
// commands and the dispatcher has no other basis to classify them.
var scopeClasses = map[string]string{
	"GET": gate.ScopeRead, "EXISTS": gate.ScopeRead, "TTL": gate.ScopeRead,
	"LLEN": gate.ScopeRead, "LRANGE": gate.ScopeRead, "HGET": gate.ScopeRead,
	"HKEYS": gate.ScopeRead, "HVALS": gate.ScopeRead, "HGETALL": gate.ScopeRead,
	"HEXISTS": gate.ScopeRead, "SMEMBERS": gate.ScopeRead, "SCARD": gate.ScopeRead,
	"SISMEMBER": gate.ScopeRead, "STRLEN": gate.ScopeRead, "PING": gate.ScopeRead,

	"SET": gate.ScopeWrite, "DEL": gate.ScopeWrite, "INCR": gate.ScopeWrite,
	"DECR": gate.ScopeWrite, "EXPIRE": gate.ScopeWrite, "APPEND": gate.ScopeWrite,
	"LPUSH": gate.ScopeWrite, "RPUSH": gate.ScopeWrite, "LPOP": gate.ScopeWrite,
	"RPOP": gate.ScopeWrite, "HSET": gate.ScopeWrite, "HDEL": gate.ScopeWrite,
	"SADD": gate.ScopeWrite, "SREM": gate.ScopeWrite,
}

// ScopeClass returns the Glossary scope class for cmd (already uppercased).
func ScopeClass(cmd string) string {
	if c, ok := scopeClasses[cmd]; ok {
		return c
	}
	return gate.ScopeAdmin
}

// Command is a parsed, ready-to-execute Redis command.
type Command struct {
	Name string
	Args []string
}

// ParsePathCommand builds a Command from a path-encoded request:
// cmd is the allow-listed command name (any case), args are the
// remaining path segments, and query carries the optional EX= parameter
// applied to SET per SPEC_FULL.md §4.5.
func ParsePathCommand(cmd string, args []string, query url.Values) (Command, error) {
	name := strings.ToUpper(cmd)
	if !allowList[name] {
		return Command{}, ErrUnknownCommand
	}

	if name == "SET" {
		if ex := query.Get("EX"); ex != "" {
			seconds, err := strconv.Atoi(ex)
			if err != nil || !httpserver.ValidateNonNegativeInt(seconds) {
				return Command{}, ErrBadRequest
			}
			if len(args) < 2 {
				return Command{}, ErrBadRequest
			}
			key, value := args[0], args[1]
			return Command{Name: "SETEX", Args: []string{key, strconv.Itoa(seconds), value}}, nil
		}
	}

	return Command{Name: name, Args: args}, nil
}

// ParseBodyCommand builds a Command from a body-encoded JSON array whose
// first element is the command name and the rest are string/number
// arguments already stringified by the caller. Commands outside the
// allow-list are forwarded verbatim, per SPEC_FULL.md §4.5.
func ParseBodyCommand(elements []string) (Command, error) {
	if len(elements) == 0 {
		return Command{}, ErrBadRequest
	}
	return Command{Name: strings.ToUpper(elements[0]), Args: elements[1:]}, nil
}

// ResolveKeyRouteOverride implements the method-override convenience
// route named in spec.md §4.5: a GET request against a single key with
// ?method=POST&value=… is treated as SET (optionally ?EX=), and
// ?method=DELETE is treated as DEL. Per SPEC_FULL.md §9's decided Open
// Question, the override applies only on this key route; every other
// path-encoded route ignores ?method.
func ResolveKeyRouteOverride(key string, query url.Values) (Command, error) {
	switch strings.ToUpper(query.Get("method")) {
	case "POST":
		value := query.Get("value")
		if ex := query.Get("EX"); ex != "" {
			seconds, err := strconv.Atoi(ex)
			if err != nil || !httpserver.ValidateNonNegativeInt(seconds) {
				return Command{}, ErrBadRequest
			}
			return Command{Name: "SETEX", Args: []string{key, strconv.Itoa(seconds), value}}, nil
		}
		return Command{Name: "SET", Args: []string{key, value}}, nil
	case "DELETE":
		return Command{Name: "DEL", Args: []string{key}}, nil
	default:
		return Command{Name: "GET", Args: []string{key}}, nil
	}
}
