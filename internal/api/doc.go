// Package api contains the HTTP handlers of the document generation
// service. Handlers validate requests, call the service layer, and map
// domain, store, and scheduler errors onto HTTP status codes.
package api
