// Package service implements the application's use cases on top of the
// scheduler, the stores, and the platform adapters. It owns the executors
// that turn a stage or batch item into generated, rendered, and uploaded
// document artifacts, and exposes the operations the API layer calls.
package service
