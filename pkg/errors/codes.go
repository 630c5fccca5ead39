// Package errors provides centralized error code definitions for the sitesim platform.
// All error codes are grouped by domain and mapped to HTTP status codes.
package errors

import "net/http"

// ErrorCode represents a typed error code used throughout the sitesim platform.
// Codes are partitioned by domain to avoid conflicts and simplify maintenance.
type ErrorCode int

// ─────────────────────────────────────────────────────────────────────────────
// General / cross-cutting error codes  (1xxxx)
// ─────────────────────────────────────────────────────────────────────────────
const (
	// CodeOK indicates no error.
	CodeOK ErrorCode = 0

	// CodeUnknown is a catch-all for errors that have not been categorised.
	CodeUnknown ErrorCode = 10000

	// CodeInvalidParam is returned when one or more request parameters fail
	// validation (missing required fields, type mismatch, out-of-range values, etc.).
	CodeInvalidParam ErrorCode = 10001

	// CodeUnauthorized is returned when a request lacks valid authentication credentials.
	CodeUnauthorized ErrorCode = 10002

	// CodeForbidden is returned when authenticated credentials do not grant access
	// to the requested resource or action.
	CodeForbidden ErrorCode = 10003

	// CodeNotFound is returned when the requested resource does not exist.
	CodeNotFound ErrorCode = 10004

	// CodeConflict is returned when a create/update operation violates a uniqueness
	// or state constraint (e.g., duplicate run id, optimistic lock failure).
	CodeConflict ErrorCode = 10005

	// CodeRateLimit is returned when the caller has exceeded the allowed request rate.
	CodeRateLimit ErrorCode = 10006

	// CodeInternal is returned for unexpected server-side errors that are not
	// attributable to the caller.
	CodeInternal ErrorCode = 10007

	// CodeNotImplemented is returned when a requested feature or endpoint is
	// not yet implemented.
	CodeNotImplemented ErrorCode = 10008
)

// ─────────────────────────────────────────────────────────────────────────────
// Configuration error codes (2xxxx) — malformed input discovered before a run starts.
// ─────────────────────────────────────────────────────────────────────────────
const (
	// CodeConfigMalformed is returned when a parameter file or signature
	// expression cannot be parsed at all.
	CodeConfigMalformed ErrorCode = 20001

	// CodeConfigUnknownKeyword is returned when a parameter file directive uses
	// a keyword outside the recognised %par/%sig/%rep/%obs/%stp vocabulary.
	CodeConfigUnknownKeyword ErrorCode = 20002

	// CodeConfigMissingFile is returned when a referenced signature, parameter,
	// or mixture file cannot be opened.
	CodeConfigMissingFile ErrorCode = 20003

	// CodeSignatureInconsistent is returned when the signature fails its load-time
	// consistency checks (asymmetric bond-type declaration, dangling site, etc.).
	CodeSignatureInconsistent ErrorCode = 20004

	// CodeInvalidObservable is returned when an %obs: directive names an unknown
	// kind or references an agent/bond/site type absent from the signature.
	CodeInvalidObservable ErrorCode = 20005
)

// ─────────────────────────────────────────────────────────────────────────────
// Kernel invariant error codes (3xxxx) — programmer bugs, fatal in debug builds.
// ─────────────────────────────────────────────────────────────────────────────
const (
	// CodeInvariantViolation is a catch-all for a detected violation of a core
	// data-model invariant.
	CodeInvariantViolation ErrorCode = 30001

	// CodeCounterUnderflow is returned when a count, free-site, or bond-type
	// counter would go negative.
	CodeCounterUnderflow ErrorCode = 30002

	// CodeHeapRootMismatch is returned when a propensity heap's root value
	// disagrees with the recomputed sum of its leaves.
	CodeHeapRootMismatch ErrorCode = 30003

	// CodeUnknownBondType is returned when a bond type is referenced that the
	// signature never declared.
	CodeUnknownBondType ErrorCode = 30004

	// CodeBondNotFound is returned when dissociation is attempted on a port
	// pair that carries no bond.
	CodeBondNotFound ErrorCode = 30005

	// CodeNoChannelSelectable marks the case, not an error condition, where
	// total activity is zero and the driver must stop cleanly.
	CodeNoChannelSelectable ErrorCode = 30006
)

// ─────────────────────────────────────────────────────────────────────────────
// Infrastructure error codes  (7xxxx)
// ─────────────────────────────────────────────────────────────────────────────
const (
	// CodeDBConnectionError is returned when the application cannot establish or
	// re-use a connection to PostgreSQL or Neo4j.
	CodeDBConnectionError ErrorCode = 70001

	// CodeDBQueryError is returned when a database query fails due to syntax
	// errors, constraint violations (not covered by CodeConflict), or other
	// execution-time failures.
	CodeDBQueryError ErrorCode = 70007

	// CodeDatabaseError is a general error for database-related failures that
	// are not specifically connection issues.
	CodeDatabaseError ErrorCode = 70006

	// CodeCacheError is returned when a Redis operation (GET, SET, DEL, EVAL, etc.)
	// fails due to connection loss, timeout, or an unexpected response.
	CodeCacheError ErrorCode = 70002

	// CodeSearchError is returned when an OpenSearch or Milvus query or indexing
	// operation fails.
	CodeSearchError ErrorCode = 70003

	// CodeMessageQueueError is returned when producing to or consuming from a
	// Kafka topic fails (broker unavailable, serialisation error, offset commit, etc.).
	CodeMessageQueueError ErrorCode = 70004

	// CodeStorageError is returned when a MinIO object storage operation (upload,
	// download, stat, delete) fails.
	CodeStorageError ErrorCode = 70005

	// CodeVectorIndexError is returned when a Milvus vector-index operation
	// (insert, search, create collection) fails.
	CodeVectorIndexError ErrorCode = 70008
)

// ─────────────────────────────────────────────────────────────────────────────
// String — human-readable name of the error code
// ─────────────────────────────────────────────────────────────────────────────

// String returns the human-readable name associated with an ErrorCode.
// It is safe to call on any value, including unknown codes.
func (c ErrorCode) String() string {
	switch c {
	// General
	case CodeOK:
		return "OK"
	case CodeUnknown:
		return "UNKNOWN"
	case CodeInvalidParam:
		return "INVALID_PARAM"
	case CodeUnauthorized:
		return "UNAUTHORIZED"
	case CodeForbidden:
		return "FORBIDDEN"
	case CodeNotFound:
		return "NOT_FOUND"
	case CodeConflict:
		return "CONFLICT"
	case CodeRateLimit:
		return "RATE_LIMIT"
	case CodeInternal:
		return "INTERNAL_ERROR"
	case CodeNotImplemented:
		return "NOT_IMPLEMENTED"

	// Configuration
	case CodeConfigMalformed:
		return "CONFIG_MALFORMED"
	case CodeConfigUnknownKeyword:
		return "CONFIG_UNKNOWN_KEYWORD"
	case CodeConfigMissingFile:
		return "CONFIG_MISSING_FILE"
	case CodeSignatureInconsistent:
		return "SIGNATURE_INCONSISTENT"
	case CodeInvalidObservable:
		return "INVALID_OBSERVABLE"

	// Kernel invariant
	case CodeInvariantViolation:
		return "INVARIANT_VIOLATION"
	case CodeCounterUnderflow:
		return "COUNTER_UNDERFLOW"
	case CodeHeapRootMismatch:
		return "HEAP_ROOT_MISMATCH"
	case CodeUnknownBondType:
		return "UNKNOWN_BOND_TYPE"
	case CodeBondNotFound:
		return "BOND_NOT_FOUND"
	case CodeNoChannelSelectable:
		return "NO_CHANNEL_SELECTABLE"

	// Infrastructure
	case CodeDBConnectionError:
		return "DB_CONNECTION_ERROR"
	case CodeDBQueryError:
		return "DB_QUERY_ERROR"
	case CodeDatabaseError:
		return "DATABASE_ERROR"
	case CodeCacheError:
		return "CACHE_ERROR"
	case CodeSearchError:
		return "SEARCH_ERROR"
	case CodeMessageQueueError:
		return "MESSAGE_QUEUE_ERROR"
	case CodeStorageError:
		return "STORAGE_ERROR"
	case CodeVectorIndexError:
		return "VECTOR_INDEX_ERROR"

	default:
		return "UNKNOWN_CODE"
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// HTTPStatus — mapping from domain error codes to HTTP status codes
// ─────────────────────────────────────────────────────────────────────────────

// HTTPStatus returns the most appropriate HTTP status code for the given ErrorCode.
// The mapping follows RFC 9110 semantics and is used by HTTP handlers in
// internal/interfaces/http/handlers/ to translate domain errors into HTTP responses.
//
// Decision matrix:
//   - 200 OK              → CodeOK
//   - 400 Bad Request     → CodeInvalidParam, CodeConfigMalformed, CodeConfigUnknownKeyword,
//     CodeSignatureInconsistent, CodeInvalidObservable
//   - 401 Unauthorized    → CodeUnauthorized
//   - 403 Forbidden       → CodeForbidden
//   - 404 Not Found       → CodeNotFound, CodeConfigMissingFile
//   - 409 Conflict        → CodeConflict
//   - 422 Unprocessable   → kernel invariant codes surfaced through an API (should not
//     normally happen; a caller-visible 422 is preferable to a crash)
//   - 429 Too Many Req.   → CodeRateLimit
//   - 501 Not Implemented → CodeNotImplemented
//   - 503 Service Unavail → CodeDBConnectionError, CodeMessageQueueError, CodeStorageError
//   - 500 Internal Server → everything else
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case CodeOK:
		return http.StatusOK

	case CodeInvalidParam,
		CodeConfigMalformed,
		CodeConfigUnknownKeyword,
		CodeSignatureInconsistent,
		CodeInvalidObservable:
		return http.StatusBadRequest

	case CodeUnauthorized:
		return http.StatusUnauthorized

	case CodeForbidden:
		return http.StatusForbidden

	case CodeNotFound,
		CodeConfigMissingFile:
		return http.StatusNotFound

	case CodeConflict:
		return http.StatusConflict

	case CodeRateLimit:
		return http.StatusTooManyRequests

	case CodeInvariantViolation,
		CodeCounterUnderflow,
		CodeHeapRootMismatch,
		CodeUnknownBondType,
		CodeBondNotFound:
		return http.StatusUnprocessableEntity

	case CodeDBConnectionError,
		CodeMessageQueueError,
		CodeStorageError:
		return http.StatusServiceUnavailable

	case CodeDBQueryError:
		return http.StatusInternalServerError

	case CodeNotImplemented:
		return http.StatusNotImplemented

	default:
		// CodeUnknown, CodeInternal, CodeDatabaseError, CodeCacheError,
		// CodeSearchError, CodeVectorIndexError, CodeNoChannelSelectable, and
		// all unrecognised codes.
		return http.StatusInternalServerError
	}
}
