// Package api implements the operator HTTP API of the list sync service.
//
// This package provides:
//   - REST endpoints to list, add, inspect, resync and remove config entries
//   - a WebSocket feed broadcasting pass and setup results
//   - runtime, connection and per-instance metrics
//   - middleware (request ID, logging, recovery, body limit, bearer token)
//
// # Lifecycle
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// # Security
//
// When api.auth.jwt_secret is set every route except /api/v1/health
// requires an "Authorization: Bearer <token>" header carrying an HS256 JWT
// signed with that secret. Tokens are minted offline with IssueToken
// ("listsync token <subject>") and must carry the service issuer, a subject
// and an expiry. The WebSocket feed also accepts the token as a "token"
// query parameter. With no secret the API is open and should be bound to a
// trusted interface.
package api
