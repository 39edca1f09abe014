// Package api implements the HTTP control surface of the signal chain.
//
// This package provides:
//   - GET endpoints for the chain status, topology summary and journal
//   - PUT endpoints for the current setpoint, reference frequency,
//     lock-in settings, output, advisory scalars and manual node settings
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Error mapping
//
// Domain errors map onto HTTP statuses: rejected values are 400, a zero
// transconductance or a non-adjustable node is 409, a fail-closed guard
// that cannot evaluate is 503 and any other instrument failure is 502.
//
// # Graceful Degradation
//
// The journal is optional. Without it GET /journal answers 503 and every
// other endpoint works.
package api
