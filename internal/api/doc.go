// Package api implements the HTTP transport for the tenant gateway.
//
// This package provides:
//   - The action envelope endpoint (POST /api/v1/gateway) for login, token
//     verification, logout and every data operation
//   - Health and runtime metrics endpoints, plus Prometheus exposition
//   - Middleware stack (request ID, logging, recovery, CORS, body limit,
//     per-client rate limiting)
//   - TLS support for production deployments
//
// # Error Mapping
//
// The envelope handler is the single place where gateway errors become HTTP
// responses. Authentication failures map to 401, authorization to 403,
// validation to 400 with field violations, not found to 404 and storage
// faults to 503. Internal details are logged and never returned.
//
// # Tokens
//
// The session token travels in the envelope's "token" field. An
// "Authorization: Bearer" header is accepted when the field is empty.
package api
