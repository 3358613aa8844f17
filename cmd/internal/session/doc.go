// Package session owns the client's credential state: the access/refresh
// credential pair and the login flag.
//
// The Store is the single process-wide holder of that state. It is mutated
// only through Login, Logout and SetAccessCredential, persists on every
// mutation, and is rehydrated via Load before the HTTP client is allowed to
// read from it. No network calls originate here.
package session
