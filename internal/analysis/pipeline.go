// Package analysis runs the post-call pipeline: download the recording,
// transcribe it, classify the outcome against the closed tag vocabulary
// and persist the result exactly once per call.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/voicelead/calltrack/internal/config"
	"github.com/voicelead/calltrack/internal/model"
	"github.com/voicelead/calltrack/internal/resilience"
	"github.com/voicelead/calltrack/internal/store"
	"github.com/voicelead/calltrack/pkg/openai"
)

// ErrNoRecording means the call exists but carries no recording URL yet.
var ErrNoRecording = eris.New("analysis: call has no recording")

// Store is the slice of the persistence layer the pipeline needs.
type Store interface {
	GetCall(ctx context.Context, callSID string) (*model.Call, error)
	GetAnalysis(ctx context.Context, callSID string) (*model.AIAnalysis, error)
	InsertAnalysis(ctx context.Context, analysis model.AIAnalysis) (*model.AIAnalysis, error)
	UpdateCallTagIfUnset(ctx context.Context, callSID string, tag model.Tag) (bool, error)
}

// Classification is the structured outcome of transcript classification.
type Classification struct {
	Summary   string
	Sentiment model.Sentiment
	Tags      []model.Tag
	Fallback  bool
}

// Pipeline analyzes recorded calls. Concurrent requests for the same call
// SID are collapsed through singleflight; duplicate inserts lose the
// unique constraint race and return the winner's row instead.
type Pipeline struct {
	store      Store
	ai         openai.Client
	httpClient *http.Client
	limiter    *rate.Limiter
	group      singleflight.Group
	breakers   *resilience.ServiceBreakers

	openaiCfg   config.OpenAIConfig
	maxBytes    int64
	downloadTTL time.Duration
}

// NewPipeline creates a Pipeline from configuration.
func NewPipeline(st Store, ai openai.Client, openaiCfg config.OpenAIConfig, cfg config.AnalysisConfig) *Pipeline {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 20
	}
	maxBytes := cfg.MaxAudioBytes
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	timeout := time.Duration(cfg.DownloadTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Pipeline{
		store:       st,
		ai:          ai,
		httpClient:  &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		breakers:    resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig()),
		openaiCfg:   openaiCfg,
		maxBytes:    maxBytes,
		downloadTTL: timeout,
	}
}

// Analyze runs the pipeline for one call and returns the stored analysis.
// Re-running a call that already has an analysis row returns that row
// unchanged.
func (p *Pipeline) Analyze(ctx context.Context, callSID string) (*model.AIAnalysis, error) {
	result, err, _ := p.group.Do(callSID, func() (any, error) {
		return p.analyze(ctx, callSID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*model.AIAnalysis), nil
}

func (p *Pipeline) analyze(ctx context.Context, callSID string) (*model.AIAnalysis, error) {
	if existing, err := p.store.GetAnalysis(ctx, callSID); err == nil {
		zap.L().Info("analysis already exists",
			zap.String("call_sid", callSID),
		)
		return existing, nil
	} else if !eris.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(err, "analysis: check existing %s", callSID)
	}

	call, err := p.store.GetCall(ctx, callSID)
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: load call %s", callSID)
	}
	if call.RecordingURL == nil || *call.RecordingURL == "" {
		return nil, eris.Wrapf(ErrNoRecording, "call %s", callSID)
	}

	audio, err := p.downloadRecording(ctx, *call.RecordingURL)
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: download recording %s", callSID)
	}

	transcript, err := p.transcribe(ctx, audio)
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: transcribe %s", callSID)
	}

	classification := p.classify(ctx, transcript)

	analysis := model.AIAnalysis{
		CallSID:       callSID,
		Transcription: transcript,
		Summary:       classification.Summary,
		Sentiment:     classification.Sentiment,
		Tags:          classification.Tags,
		Fallback:      classification.Fallback,
	}
	stored, err := p.store.InsertAnalysis(ctx, analysis)
	if err != nil {
		// Lost the one-row-per-call race to a concurrent run.
		if eris.Is(err, store.ErrDuplicate) {
			return p.store.GetAnalysis(ctx, callSID)
		}
		return nil, eris.Wrapf(err, "analysis: persist %s", callSID)
	}

	if tag, ok := stored.PrimaryTag(); ok {
		applied, err := p.store.UpdateCallTagIfUnset(ctx, callSID, tag)
		if err != nil {
			return nil, eris.Wrapf(err, "analysis: auto-tag %s", callSID)
		}
		zap.L().Info("call analyzed",
			zap.String("call_sid", callSID),
			zap.String("tag", string(tag)),
			zap.Bool("tag_applied", applied),
			zap.Bool("fallback", stored.Fallback),
		)
	} else {
		zap.L().Info("call analyzed without tag",
			zap.String("call_sid", callSID),
			zap.Bool("fallback", stored.Fallback),
		)
	}

	return stored, nil
}

// downloadRecording fetches the recording with retry on transient
// failures and a hard size cap.
func (p *Pipeline) downloadRecording(ctx context.Context, url string) ([]byte, error) {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("recording", "download")

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, eris.Wrap(err, "build request")
		}

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := eris.New(fmt.Sprintf("recording fetch status %d", resp.StatusCode))
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(err, resp.StatusCode)
			}
			return nil, err
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes+1))
		if err != nil {
			return nil, err
		}
		if int64(len(data)) > p.maxBytes {
			return nil, eris.New(fmt.Sprintf("recording exceeds %d byte limit", p.maxBytes))
		}
		return data, nil
	})
}

func (p *Pipeline) transcribe(ctx context.Context, audio []byte) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "rate limit wait")
	}

	resp, err := resilience.ExecuteVal(ctx, p.breakers.Get("openai"),
		func(ctx context.Context) (*openai.TranscriptionResponse, error) {
			return p.ai.Transcribe(ctx, openai.TranscriptionRequest{
				Model:    p.openaiCfg.WhisperModel,
				Audio:    audio,
				Filename: "call.mp3",
				Language: p.openaiCfg.Language,
			})
		})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

const classifySystemPrompt = `You analyze transcripts of inbound phone calls to a scheduling business.
Respond with a JSON object of exactly this shape:
{"summary": "<one or two sentences>", "sentiment": "Positive|Neutral|Negative", "tags": ["<tag>"]}
Tags must come from this list and no other: %s.
Pick the single tag that best describes the call outcome. The transcript may be in Portuguese.`

// classify asks the language model for a summary, sentiment and tag. A
// model failure or an unusable response degrades to the keyword
// heuristic rather than failing the pipeline.
func (p *Pipeline) classify(ctx context.Context, transcript string) Classification {
	if err := p.limiter.Wait(ctx); err != nil {
		zap.L().Warn("classification rate limit wait failed", zap.Error(err))
		return classifyFallback(transcript)
	}

	vocab := make([]string, len(model.AllTags))
	for i, t := range model.AllTags {
		vocab[i] = string(t)
	}
	temperature := 0.0

	resp, err := resilience.ExecuteVal(ctx, p.breakers.Get("openai"),
		func(ctx context.Context) (*openai.ChatResponse, error) {
			return p.ai.CompleteJSON(ctx, openai.ChatRequest{
				Model:       p.openaiCfg.ChatModel,
				System:      fmt.Sprintf(classifySystemPrompt, strings.Join(vocab, ", ")),
				User:        transcript,
				Temperature: &temperature,
				MaxTokens:   500,
			})
		})
	if err != nil {
		zap.L().Warn("classification model call failed, using fallback", zap.Error(err))
		return classifyFallback(transcript)
	}
	resp.Usage.LogUsage(p.openaiCfg.ChatModel, "classify")

	var parsed struct {
		Summary   string   `json:"summary"`
		Sentiment string   `json:"sentiment"`
		Tags      []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		zap.L().Warn("classification response unparseable, using fallback", zap.Error(err))
		return classifyFallback(transcript)
	}

	// Unknown tags are dropped, not guessed at.
	var tags []model.Tag
	for _, raw := range parsed.Tags {
		tag, err := model.ParseTag(raw)
		if err != nil {
			zap.L().Warn("classifier produced tag outside vocabulary",
				zap.String("tag", raw),
			)
			continue
		}
		tags = append(tags, tag)
	}

	return Classification{
		Summary:   parsed.Summary,
		Sentiment: model.ParseSentiment(parsed.Sentiment),
		Tags:      tags,
		Fallback:  false,
	}
}
