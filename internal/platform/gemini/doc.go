// Package gemini implements the generation.Generator interface using
// Google's Gemini API. It handles prompt construction, API calls with
// exponential backoff retry, and response validation.
package gemini
