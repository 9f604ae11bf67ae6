package httpserver

import "net/http"

// ErrorKind classifies an error at the HTTP boundary, per the taxonomy in
// SPEC_FULL.md §7. Components propagate sentinel/wrapped errors without
// flattening them; only this table translates a Kind to a status code.
type ErrorKind string

const (
	KindUnauthenticated        ErrorKind = "unauthenticated"
	KindForbidden              ErrorKind = "forbidden"
	KindBadRequest             ErrorKind = "bad_request"
	KindInstanceNotFound       ErrorKind = "instance_not_found"
	KindPoolExhausted          ErrorKind = "pool_exhausted"
	KindTimeout                ErrorKind = "timeout"
	KindRedisUnavailable       ErrorKind = "redis_unavailable"
	KindServiceDiscoveryFailed ErrorKind = "service_discovery_failed"
	KindRedisCommandError      ErrorKind = "redis_command_error"
	KindInternal               ErrorKind = "internal"
)

// StatusForKind maps an ErrorKind to its HTTP status, per spec.md §7.
func StatusForKind(k ErrorKind) int {
	switch k {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindBadRequest:
		return http.StatusBadRequest
	case KindInstanceNotFound:
		return http.StatusNotFound
	case KindPoolExhausted, KindTimeout:
		return http.StatusGatewayTimeout
	case KindRedisUnavailable:
		return http.StatusBadGateway
	case KindServiceDiscoveryFailed:
		return http.StatusServiceUnavailable
	case KindRedisCommandError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// RespondErrorKind writes the standard error envelope for a classified
// error kind.
func RespondErrorKind(w http.ResponseWriter, k ErrorKind, message string) {
	RespondError(w, StatusForKind(k), message)
}
