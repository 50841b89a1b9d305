// Package api is the client side of the account server. [Client] is the
// narrow request/response contract the rest of the module depends on;
// [HTTPClient] implements it over HTTP with JSON bodies, bearer
// authentication and exponential-backoff retries for transient failures.
//
// # Errors
//
// Non-2xx responses are returned as [*Error] and match the sentinels
// [ErrUnauthorized], [ErrInvalidCredential] and [ErrNotFound] through
// errors.Is. Transport failures are returned as [*NetworkError]; callers treat
// them as "try again" rather than as credential failures.
package api
