// Package generation defines the interface for producing document content
// with an AI language model. It serves as a boundary between the application
// core and external LLM services, following the hexagonal architecture
// pattern: the scheduler and service layers depend on this package, and the
// platform/gemini package implements it.
package generation
