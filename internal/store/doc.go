// Package store provides abstractions and interfaces for data persistence.
// Implementations live in internal/platform/postgres.
package store
