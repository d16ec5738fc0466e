package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"

	"wagate/pkg/config"
)

// ErrAssessment marks a pronunciation-scoring failure. Assessment is a
// side channel; callers forward the transcript regardless.
var ErrAssessment = errors.New("pronunciation assessment failed")

const worstTokenCount = 12

// assessAPI is the slice of the OpenAI client assessment needs.
type assessAPI interface {
	Respond(ctx context.Context, params responses.ResponseNewParams) (*responses.Response, error)
}

type openaiResponses struct {
	client osdk.Client
}

func (r openaiResponses) Respond(ctx context.Context, params responses.ResponseNewParams) (*responses.Response, error) {
	return r.client.Responses.New(ctx, params)
}

// Assessment is a structured pronunciation evaluation of one transcript.
type Assessment struct {
	Score          float64  `json:"score"`
	Level          string   `json:"level"`
	Summary        string   `json:"summary"`
	Strengths      []string `json:"strengths"`
	Improvements   []string `json:"improvements"`
	Tips           []string `json:"tips"`
	DetectedIssues []string `json:"detected_issues"`
}

// TokenSignal is one token with its log-probability, used to point the
// evaluator at the least certain stretches of the transcript.
type TokenSignal struct {
	Token   string  `json:"token"`
	Logprob float64 `json:"logprob"`
}

// Assessor scores pronunciation from a transcript plus ASR confidence
// signals using a structured-output model call.
type Assessor struct {
	api            assessAPI
	log            *slog.Logger
	model          string
	targetPhrase   string
	requestTimeout time.Duration
}

// NewAssessor builds an assessor from config. Returns nil when assessment
// is disabled; a nil Assessor is safe to skip on.
func NewAssessor(cfg *config.Config, log *slog.Logger) (*Assessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if !cfg.Transcription.Assess {
		return nil, nil
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

	requestTimeout := time.Duration(cfg.OpenAI.RequestTimeoutSeconds) * time.Second
	if requestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(requestTimeout))
	}

	return &Assessor{
		api:            openaiResponses{client: osdk.NewClient(opts...)},
		log:            log.With("component", "transcribe.assess"),
		model:          cfg.Transcription.AssessmentModel,
		targetPhrase:   strings.TrimSpace(cfg.Transcription.TargetPhrase),
		requestTimeout: requestTimeout,
	}, nil
}

// Assess scores the pronunciation behind a transcription result. tokens
// may be nil when the backend returned no log-probabilities.
func (a *Assessor) Assess(ctx context.Context, result *Result, tokens []TokenSignal) (*Assessment, error) {
	if result == nil || strings.TrimSpace(result.Text) == "" {
		return nil, fmt.Errorf("%w: empty transcript", ErrAssessment)
	}

	if a.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.requestTimeout)
		defer cancel()
	}

	input, err := json.Marshal(assessmentInput(result, a.targetPhrase, tokens))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssessment, err)
	}

	startedAt := time.Now()
	a.log.Debug("assessment started", "model", a.model, "transcript_length", len(result.Text))

	response, err := a.api.Respond(ctx, responses.ResponseNewParams{
		Model:        a.model,
		Instructions: osdk.String(assessmentInstructions),
		Input:        responses.ResponseNewParamsInputUnion{OfString: osdk.String(string(input))},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:   "pronunciation_assessment",
					Schema: assessmentSchema(),
					Strict: osdk.Bool(true),
				},
			},
		},
	})
	if err != nil {
		a.log.Debug("assessment failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return nil, fmt.Errorf("%w: %v", ErrAssessment, err)
	}

	text := strings.TrimSpace(response.OutputText())
	if text == "" {
		return nil, fmt.Errorf("%w: model returned no output", ErrAssessment)
	}

	var assessment Assessment
	if err := json.Unmarshal([]byte(text), &assessment); err != nil {
		return nil, fmt.Errorf("%w: malformed model output: %v", ErrAssessment, err)
	}

	a.log.Debug("assessment completed",
		"duration_ms", time.Since(startedAt).Milliseconds(),
		"score", assessment.Score,
		"level", assessment.Level,
	)

	return &assessment, nil
}

const assessmentInstructions = "You are an English pronunciation coach. " +
	"Respond ONLY with JSON matching the schema. " +
	"Evaluate pronunciation from the transcript plus the ASR confidence signals (asr_confidence, avg_logprob, worst_tokens). " +
	"When target_text is present, compare expected against spoken and penalize omissions and substitutions. " +
	"Give short practical drills of 10-20 seconds."

// assessmentInput shapes the evaluator payload: the transcript, the ASR
// confidence signals, and the lowest-probability tokens.
func assessmentInput(result *Result, targetPhrase string, tokens []TokenSignal) map[string]any {
	worst := append([]TokenSignal(nil), tokens...)
	sort.Slice(worst, func(i, j int) bool { return worst[i].Logprob < worst[j].Logprob })
	if len(worst) > worstTokenCount {
		worst = worst[:worstTokenCount]
	}

	input := map[string]any{
		"transcript":     result.Text,
		"language":       result.Language,
		"asr_confidence": result.Confidence,
		"avg_logprob":    result.AvgLogProb,
		"token_count":    len(tokens),
		"worst_tokens":   worst,
	}
	if targetPhrase != "" {
		input["target_text"] = targetPhrase
	}

	return input
}

func assessmentSchema() map[string]any {
	stringArray := map[string]any{"type": "array", "items": map[string]any{"type": "string"}}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required": []string{
			"score", "level", "summary", "strengths", "improvements", "tips", "detected_issues",
		},
		"properties": map[string]any{
			"score": map[string]any{"type": "number", "minimum": 0, "maximum": 100},
			"level": map[string]any{
				"type": "string",
				"enum": []string{"poor", "ok", "good", "excellent"},
			},
			"summary":      map[string]any{"type": "string"},
			"strengths":    stringArray,
			"improvements": stringArray,
			"tips":         stringArray,
			"detected_issues": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "string",
					"enum": []string{
						"hesitation",
						"mumbling",
						"stress_intonation",
						"vowel_clarity",
						"consonant_clarity",
						"pace_too_fast",
						"pace_too_slow",
						"unclear_words",
					},
				},
			},
		},
	}
}
