// Package transcribe turns audio artifacts into text with a model-reported
// confidence signal, optionally pre-processing through ffmpeg and scoring
// pronunciation on the side.
package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"wagate/pkg/config"
	"wagate/pkg/media"
)

// ErrPayloadTooLarge is returned before any network call when the audio
// exceeds the configured byte ceiling.
var ErrPayloadTooLarge = errors.New("audio payload exceeds size limit")

// speechAPI is the slice of the OpenAI client transcription needs. Tests
// substitute a scripted implementation.
type speechAPI interface {
	Transcribe(ctx context.Context, params osdk.AudioTranscriptionNewParams) (*osdk.AudioTranscriptionNewResponseUnion, error)
}

type openaiSpeech struct {
	client osdk.Client
}

func (s openaiSpeech) Transcribe(ctx context.Context, params osdk.AudioTranscriptionNewParams) (*osdk.AudioTranscriptionNewResponseUnion, error) {
	return s.client.Audio.Transcriptions.New(ctx, params)
}

// Result is the outcome of one transcription. AvgLogProb and Confidence
// are nil when the backend returned no token log-probabilities.
type Result struct {
	Text       string   `json:"text"`
	Model      string   `json:"model"`
	Language   string   `json:"language"`
	AvgLogProb *float64 `json:"avg_logprob,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Normalized bool     `json:"normalized"`

	// Tokens feed the pronunciation assessor; they stay off the wire.
	Tokens []TokenSignal `json:"-"`
}

// Client runs the normalize-then-transcribe pipeline.
type Client struct {
	api            speechAPI
	normalizer     *Normalizer
	log            *slog.Logger
	model          string
	language       string
	maxBytes       int64
	shift          float64
	scale          float64
	fatalNormalize bool
	requestTimeout time.Duration
}

// NewClient builds a transcription client from config. The API key comes
// from the configured env var, defaulting to OPENAI_API_KEY.
func NewClient(cfg *config.Config, log *slog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}

	apiKey := resolveAPIKey(cfg.OpenAI)
	if apiKey == "" {
		return nil, errors.New("openai.api_key_env is required or OPENAI_API_KEY must be set")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.OpenAI.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if organization := strings.TrimSpace(cfg.OpenAI.Organization); organization != "" {
		opts = append(opts, option.WithOrganization(organization))
	}
	if project := strings.TrimSpace(cfg.OpenAI.Project); project != "" {
		opts = append(opts, option.WithProject(project))
	}

	requestTimeout := time.Duration(cfg.OpenAI.RequestTimeoutSeconds) * time.Second
	if requestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(requestTimeout))
	}

	return &Client{
		api:            openaiSpeech{client: osdk.NewClient(opts...)},
		normalizer:     NewNormalizer(cfg.Transcription.Normalize),
		log:            log.With("component", "transcribe"),
		model:          cfg.Transcription.Model,
		language:       cfg.Transcription.Language,
		maxBytes:       cfg.Transcription.MaxBytes,
		shift:          cfg.Transcription.ConfidenceShift,
		scale:          cfg.Transcription.ConfidenceScale,
		fatalNormalize: cfg.Transcription.Normalize.FatalOnError,
		requestTimeout: requestTimeout,
	}, nil
}

// Transcribe converts one audio artifact into text. The size ceiling is
// enforced first: an oversize payload fails without spending a request.
func (c *Client) Transcribe(ctx context.Context, artifact *media.Artifact) (*Result, error) {
	if artifact == nil || len(artifact.Data) == 0 {
		return nil, errors.New("artifact with audio data is required")
	}
	if c.maxBytes > 0 && int64(len(artifact.Data)) > c.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes over limit %d", ErrPayloadTooLarge, len(artifact.Data), c.maxBytes)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	data := artifact.Data
	fileName := artifact.FileName
	mimeType := artifact.MimeType
	normalized := false

	if c.normalizer != nil {
		wav, err := c.normalizer.Normalize(ctx, data)
		switch {
		case err == nil:
			data = wav
			fileName = "audio.wav"
			mimeType = "audio/wav"
			normalized = true
		case c.fatalNormalize:
			return nil, err
		default:
			c.log.Warn("normalization failed, transcribing raw payload", "error", err)
		}
	}

	startedAt := time.Now()
	c.log.Debug("transcription started", "model", c.model, "bytes", len(data), "normalized", normalized)

	transcription, err := c.api.Transcribe(ctx, osdk.AudioTranscriptionNewParams{
		File:     osdk.File(bytes.NewReader(data), fileName, mimeType),
		Model:    osdk.AudioModel(c.model),
		Language: osdk.String(c.language),
		// Logprobs are only returned for the plain JSON response format.
		ResponseFormat: osdk.AudioResponseFormatJSON,
		Include:        []osdk.TranscriptionInclude{osdk.TranscriptionIncludeLogprobs},
	})
	if err != nil {
		c.log.Debug("transcription failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return nil, fmt.Errorf("transcription request: %w", err)
	}

	result := &Result{
		Text:       strings.TrimSpace(transcription.Text),
		Model:      c.model,
		Language:   c.language,
		Normalized: normalized,
	}

	if len(transcription.Logprobs) > 0 {
		sum := 0.0
		tokens := make([]TokenSignal, 0, len(transcription.Logprobs))
		for _, token := range transcription.Logprobs {
			sum += token.Logprob
			tokens = append(tokens, TokenSignal{Token: token.Token, Logprob: token.Logprob})
		}
		avg := sum / float64(len(transcription.Logprobs))
		confidence := c.confidence(avg)
		result.AvgLogProb = &avg
		result.Confidence = &confidence
		result.Tokens = tokens
	}

	c.log.Debug("transcription completed",
		"duration_ms", time.Since(startedAt).Milliseconds(),
		"text_length", len(result.Text),
		"tokens", len(transcription.Logprobs),
	)

	return result, nil
}

// confidence maps an average token log-probability onto (0,1) with a
// calibrated logistic curve. avg=0 (certain) lands near 1; strongly
// negative averages decay toward 0.
func (c *Client) confidence(avgLogProb float64) float64 {
	return 1 / (1 + math.Exp(-((avgLogProb + c.shift) * c.scale)))
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.requestTimeout)
}

func resolveAPIKey(cfg config.OpenAIConfig) string {
	envName := strings.TrimSpace(cfg.APIKeyEnv)
	if envName == "" {
		envName = "OPENAI_API_KEY"
	}

	return strings.TrimSpace(os.Getenv(envName))
}
