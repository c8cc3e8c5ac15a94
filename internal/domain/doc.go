// Package domain contains the core domain entities of the document
// generation service: document tasks with their per-stage result slots,
// batch tasks with their child items, and the status state machines both
// move through.
package domain
