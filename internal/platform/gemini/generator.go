package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"google.golang.org/genai"

	"github.com/docforge/docforge-api/internal/config"
	"github.com/docforge/docforge-api/internal/generation"
)

// Retry tuning for transient API failures.
const (
	maxRetries       = 3
	baseDelaySeconds = 2
)

// ErrEmptyPrompt is returned when a prompt would be built from no content.
var ErrEmptyPrompt = errors.New("prompt content cannot be empty")

// Generator implements the generation.Generator interface using Google's
// Gemini API.
type Generator struct {
	logger *slog.Logger
	client *genai.Client
	model  string
}

// NewGenerator creates a Gemini-backed generator from the LLM configuration.
func NewGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}

	return &Generator{
		logger: logger.With(slog.String("component", "gemini_generator")),
		client: client,
		model:  cfg.ModelName,
	}, nil
}

// Ensure Generator implements generation.Generator
var _ generation.Generator = (*Generator)(nil)

// GenerateBrief produces the research brief for a subject.
func (g *Generator) GenerateBrief(ctx context.Context, subject json.RawMessage) (string, error) {
	if len(subject) == 0 {
		return "", ErrEmptyPrompt
	}

	prompt := fmt.Sprintf(
		"You are a research analyst. Write a thorough research brief on the "+
			"following subject. Cover background, current standing, and notable "+
			"risks. The brief will ground a set of follow-up documents, so be "+
			"factual and well structured.\n\nSubject:\n%s", subject)

	return g.callWithRetry(ctx, prompt)
}

// GenerateSection produces one named section document grounded on the brief.
func (g *Generator) GenerateSection(ctx context.Context, subject json.RawMessage, section string, brief string) (string, error) {
	if len(subject) == 0 || section == "" {
		return "", ErrEmptyPrompt
	}
	if brief == "" {
		return "", fmt.Errorf("%w: section %q needs a research brief", ErrEmptyPrompt, section)
	}

	prompt := fmt.Sprintf(
		"You are a report writer. Using the research brief below, write the "+
			"%q section of a report on the subject. Stay consistent with the "+
			"brief; do not contradict it.\n\nSubject:\n%s\n\nResearch brief:\n%s",
		section, subject, brief)

	return g.callWithRetry(ctx, prompt)
}

// GenerateItem produces one batch item document from shared parameters.
func (g *Generator) GenerateItem(ctx context.Context, params json.RawMessage, itemNo int) (string, error) {
	if len(params) == 0 {
		return "", ErrEmptyPrompt
	}

	prompt := fmt.Sprintf(
		"You are a document author. Produce document %d of a batch generated "+
			"from the parameters below. Each document in the batch should stand "+
			"alone.\n\nParameters:\n%s", itemNo, params)

	return g.callWithRetry(ctx, prompt)
}

// callWithRetry makes a Gemini API call with exponential backoff and jitter.
// Permanent errors (blocked content, malformed responses) are returned
// immediately; transient errors are retried up to maxRetries times.
func (g *Generator) callWithRetry(ctx context.Context, prompt string) (string, error) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt := 0; ; attempt++ {
		g.logger.DebugContext(ctx, "calling Gemini API",
			"attempt", attempt+1,
			"max_attempts", maxRetries+1,
			"prompt_length", len(prompt))

		text, err := g.callOnce(ctx, prompt)
		if err == nil {
			return text, nil
		}

		if errors.Is(err, generation.ErrContentBlocked) || errors.Is(err, generation.ErrInvalidResponse) {
			g.logger.WarnContext(ctx, "permanent generation error, not retrying", "error", err)
			return "", err
		}

		if attempt >= maxRetries {
			return "", fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
				generation.ErrTransientFailure, maxRetries, err)
		}

		// delay = baseDelay * 2^attempt * (0.5 + rand(0, 0.5))
		backoff := float64(baseDelaySeconds) * math.Pow(2, float64(attempt))
		delay := time.Duration(backoff * (0.5 + rng.Float64()*0.5) * float64(time.Second))

		g.logger.InfoContext(ctx, "retrying Gemini API call",
			"attempt", attempt+1,
			"delay", delay,
			"error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", generation.ErrTransientFailure, ctx.Err())
		}
	}
}

// callOnce performs a single API call and validates the response.
func (g *Generator) callOnce(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: safety filters triggered", generation.ErrContentBlocked)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty text in response", generation.ErrInvalidResponse)
	}

	return text, nil
}
