// Package httpclient is the authenticated HTTP client of the foodscan
// client core.
//
// Every outgoing request carries the current access credential as a bearer
// token. When a response comes back 401 with the explicit refresh marker, the
// client refreshes the credential through the session store and replays the
// request. The replay is transparent to the caller and happens at most once
// per request, with at most one refresh call in flight no matter how many
// requests fail concurrently (single-flight).
package httpclient
