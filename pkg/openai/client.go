// Package openai wraps the OpenAI SDK behind the two operations the
// analysis pipeline needs: audio transcription and JSON-mode chat
// classification.
package openai

import (
	"bytes"
	"context"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client defines the OpenAI API operations used by the pipeline.
type Client interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResponse, error)
	CompleteJSON(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// TranscriptionRequest carries the audio payload for Whisper.
type TranscriptionRequest struct {
	Model    string
	Audio    []byte
	Filename string
	// Language hints the spoken language as an ISO-639-1 code.
	Language string
}

// TranscriptionResponse is the transcript text.
type TranscriptionResponse struct {
	Text string
}

// ChatRequest is our own request type for JSON-mode completions.
type ChatRequest struct {
	Model       string
	System      string
	User        string
	Temperature *float64
	MaxTokens   int64
}

// ChatResponse carries the raw JSON content and token usage.
type ChatResponse struct {
	Content string
	Usage   TokenUsage
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// LogUsage logs token consumption with structured zap fields.
func (u TokenUsage) LogUsage(model, phase string) {
	zap.L().Info("token usage",
		zap.String("model", model),
		zap.String("phase", phase),
		zap.Int64("prompt_tokens", u.PromptTokens),
		zap.Int64("completion_tokens", u.CompletionTokens),
	)
}

// sdkClient implements Client using the official openai-go SDK.
type sdkClient struct {
	client sdk.Client
}

// NewClient creates a new OpenAI client backed by the SDK.
func NewClient(apiKey string) Client {
	return &sdkClient{
		client: sdk.NewClient(
			option.WithAPIKey(apiKey),
		),
	}
}

func (c *sdkClient) Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResponse, error) {
	filename := req.Filename
	if filename == "" {
		filename = "audio.mp3"
	}

	params := sdk.AudioTranscriptionNewParams{
		Model: sdk.AudioModel(req.Model),
		File:  sdk.File(bytes.NewReader(req.Audio), filename, "audio/mpeg"),
	}
	if req.Language != "" {
		params.Language = sdk.String(req.Language)
	}

	transcription, err := c.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "openai: transcribe audio")
	}

	return &TranscriptionResponse{Text: transcription.Text}, nil
}

func (c *sdkClient) CompleteJSON(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	messages := []sdk.ChatCompletionMessageParamUnion{
		{
			OfSystem: &sdk.ChatCompletionSystemMessageParam{
				Role:    constant.System("system"),
				Content: sdk.ChatCompletionSystemMessageParamContentUnion{OfString: sdk.String(req.System)},
			},
		},
		{
			OfUser: &sdk.ChatCompletionUserMessageParam{
				Role:    constant.User("user"),
				Content: sdk.ChatCompletionUserMessageParamContentUnion{OfString: sdk.String(req.User)},
			},
		},
	}

	params := sdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: messages,
		ResponseFormat: sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{
				Type: constant.JSONObject("json_object"),
			},
		},
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(req.MaxTokens)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "openai: create completion")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("openai: completion returned no choices")
	}

	return &ChatResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}
