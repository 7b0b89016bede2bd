package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"gwi.com/polyglot-chat/internal/logger"
)

const (
	defaultTranslationModelName = "gemini-2.5-flash"

	translationInstruction = "Translate this message to %s. Only return the translated text."

	retryBackoff = 500 * time.Millisecond
)

type GeminiOptions struct {
	APIKey         string
	Model          string
	Temperature    float32
	Attempts       int
	AttemptTimeout time.Duration
}

type generateFunc func(ctx context.Context, text, targetLanguage string) (*genai.GenerateContentResponse, error)

// GeminiTranslator is the TranslationProvider backed by Gemini. It owns the
// retry policy: the core never retries a send on its own.
type GeminiTranslator struct {
	client         *genai.Client
	generate       generateFunc
	attempts       int
	attemptTimeout time.Duration
	backoff        time.Duration
}

func NewGeminiTranslator(ctx context.Context, opts GeminiOptions) (*GeminiTranslator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	modelName := opts.Model
	if modelName == "" {
		modelName = defaultTranslationModelName
	}
	temperature := opts.Temperature

	generate := func(ctx context.Context, text, targetLanguage string) (*genai.GenerateContentResponse, error) {
		// A model value per call: the system instruction depends on the recipient.
		model := client.GenerativeModel(modelName)
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(fmt.Sprintf(translationInstruction, targetLanguage))},
		}
		model.SetTemperature(temperature)
		return model.GenerateContent(ctx, genai.Text(text))
	}

	t := newGeminiTranslator(generate, opts.Attempts, opts.AttemptTimeout)
	t.client = client
	return t, nil
}

func newGeminiTranslator(generate generateFunc, attempts int, attemptTimeout time.Duration) *GeminiTranslator {
	if attempts < 1 {
		attempts = 1
	}
	return &GeminiTranslator{
		generate:       generate,
		attempts:       attempts,
		attemptTimeout: attemptTimeout,
		backoff:        retryBackoff,
	}
}

func (t *GeminiTranslator) Close() {
	if t.client != nil {
		if err := t.client.Close(); err != nil {
			logger.Errorf("Error closing GenAI client: %v", err)
		} else {
			logger.Info("GenAI client closed.")
		}
	}
}

func (t *GeminiTranslator) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= t.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", &TranslationFailure{Diagnostic: ctx.Err().Error(), Err: errors.Join(ctx.Err(), lastErr)}
			case <-time.After(time.Duration(attempt-1) * t.backoff):
			}
		}

		translated, err := t.translateOnce(ctx, text, targetLanguage)
		if err == nil {
			return translated, nil
		}
		lastErr = err
		logger.Warnf("Gemini translation attempt %d/%d to %q failed: %v", attempt, t.attempts, targetLanguage, err)

		if ctx.Err() != nil {
			break
		}
	}
	return "", &TranslationFailure{Diagnostic: lastErr.Error(), Err: lastErr}
}

func (t *GeminiTranslator) translateOnce(ctx context.Context, text, targetLanguage string) (string, error) {
	if t.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.attemptTimeout)
		defer cancel()
	}

	resp, err := t.generate(ctx, text, targetLanguage)
	if err != nil {
		return "", fmt.Errorf("gemini translation request failed: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("gemini returned no response")
	}

	// No candidates or no text parts is an empty answer, not a failure.
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		logger.Debugf("Gemini response had no candidates for target %q", targetLanguage)
		return "", nil
	}

	var translated strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			translated.WriteString(string(txt))
		} else {
			logger.Debugf("Gemini response part was not text: %T", part)
		}
	}
	return strings.TrimSpace(translated.String()), nil
}
