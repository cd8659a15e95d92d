package analysis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicelead/calltrack/internal/config"
	"github.com/voicelead/calltrack/internal/model"
	"github.com/voicelead/calltrack/internal/store"
	"github.com/voicelead/calltrack/pkg/openai"
)

type fakeAnalysisStore struct {
	call        *model.Call
	existing    *model.AIAnalysis
	inserted    *model.AIAnalysis
	insertErr   error
	insertTried bool
	raced       *model.AIAnalysis
	tagged      []model.Tag
}

func (f *fakeAnalysisStore) GetCall(_ context.Context, _ string) (*model.Call, error) {
	if f.call == nil {
		return nil, store.ErrNotFound
	}
	return f.call, nil
}

func (f *fakeAnalysisStore) GetAnalysis(_ context.Context, _ string) (*model.AIAnalysis, error) {
	switch {
	case f.inserted != nil:
		return f.inserted, nil
	case f.existing != nil:
		return f.existing, nil
	case f.insertTried && f.raced != nil:
		// The concurrent winner's row becomes visible after our insert
		// loses the unique constraint race.
		return f.raced, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeAnalysisStore) InsertAnalysis(_ context.Context, analysis model.AIAnalysis) (*model.AIAnalysis, error) {
	f.insertTried = true
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	analysis.ID = "a-1"
	f.inserted = &analysis
	return &analysis, nil
}

func (f *fakeAnalysisStore) UpdateCallTagIfUnset(_ context.Context, _ string, tag model.Tag) (bool, error) {
	f.tagged = append(f.tagged, tag)
	return true, nil
}

type fakeAI struct {
	transcript      string
	transcribeErr   error
	chatContent     string
	chatErr         error
	transcribeCalls int
	chatCalls       int
	lastChat        openai.ChatRequest
}

func (f *fakeAI) Transcribe(_ context.Context, _ openai.TranscriptionRequest) (*openai.TranscriptionResponse, error) {
	f.transcribeCalls++
	if f.transcribeErr != nil {
		return nil, f.transcribeErr
	}
	return &openai.TranscriptionResponse{Text: f.transcript}, nil
}

func (f *fakeAI) CompleteJSON(_ context.Context, req openai.ChatRequest) (*openai.ChatResponse, error) {
	f.chatCalls++
	f.lastChat = req
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return &openai.ChatResponse{Content: f.chatContent}, nil
}

func recordingServer(t *testing.T, status int, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func recordedCall(url string) *model.Call {
	return &model.Call{
		CallSID:        "CA123",
		Status:         model.CallStatusCompleted,
		RecordingURL:   &url,
		OrganizationID: "org-1",
	}
}

func newTestPipeline(st Store, ai openai.Client) *Pipeline {
	return NewPipeline(st, ai, config.OpenAIConfig{
		WhisperModel: "whisper-1",
		ChatModel:    "gpt-4o-mini",
		Language:     "pt",
	}, config.AnalysisConfig{RequestsPerMinute: 600})
}

func TestAnalyze_ExistingAnalysisReturnedUntouched(t *testing.T) {
	fs := &fakeAnalysisStore{
		existing: &model.AIAnalysis{ID: "a-old", CallSID: "CA123"},
	}
	ai := &fakeAI{}
	p := newTestPipeline(fs, ai)

	got, err := p.Analyze(context.Background(), "CA123")
	require.NoError(t, err)
	assert.Equal(t, "a-old", got.ID)
	assert.Zero(t, ai.transcribeCalls)
	assert.Zero(t, ai.chatCalls)
}

func TestAnalyze_HappyPath(t *testing.T) {
	srv := recordingServer(t, http.StatusOK, []byte("mp3-bytes"))
	fs := &fakeAnalysisStore{call: recordedCall(srv.URL + "/RE1.mp3")}
	ai := &fakeAI{
		transcript:  "bom dia, ficou agendado para sexta",
		chatContent: `{"summary":"Caller booked Friday.","sentiment":"Positive","tags":["Scheduled"]}`,
	}
	p := newTestPipeline(fs, ai)

	got, err := p.Analyze(context.Background(), "CA123")
	require.NoError(t, err)
	assert.Equal(t, "bom dia, ficou agendado para sexta", got.Transcription)
	assert.Equal(t, "Caller booked Friday.", got.Summary)
	assert.Equal(t, model.SentimentPositive, got.Sentiment)
	assert.Equal(t, []model.Tag{model.TagScheduled}, got.Tags)
	assert.False(t, got.Fallback)

	assert.Equal(t, []model.Tag{model.TagScheduled}, fs.tagged)
	assert.Contains(t, ai.lastChat.System, string(model.TagScheduled))
	assert.Equal(t, "bom dia, ficou agendado para sexta", ai.lastChat.User)
}

func TestAnalyze_ClassifierFailureDegradesToFallback(t *testing.T) {
	srv := recordingServer(t, http.StatusOK, []byte("mp3-bytes"))
	fs := &fakeAnalysisStore{call: recordedCall(srv.URL + "/RE1.mp3")}
	ai := &fakeAI{
		transcript: "ficou agendado para sexta, obrigado",
		chatErr:    eris.New("model overloaded"),
	}
	p := newTestPipeline(fs, ai)

	got, err := p.Analyze(context.Background(), "CA123")
	require.NoError(t, err)
	assert.True(t, got.Fallback)
	assert.Equal(t, []model.Tag{model.TagScheduled}, got.Tags)
	assert.Equal(t, model.SentimentPositive, got.Sentiment)
}

func TestAnalyze_UnparseableClassificationDegradesToFallback(t *testing.T) {
	srv := recordingServer(t, http.StatusOK, []byte("mp3-bytes"))
	fs := &fakeAnalysisStore{call: recordedCall(srv.URL + "/RE1.mp3")}
	ai := &fakeAI{
		transcript:  "foi engano, desculpa",
		chatContent: "not json",
	}
	p := newTestPipeline(fs, ai)

	got, err := p.Analyze(context.Background(), "CA123")
	require.NoError(t, err)
	assert.True(t, got.Fallback)
	assert.Equal(t, []model.Tag{model.TagWrongNumber}, got.Tags)
}

func TestAnalyze_InvalidTagsDropped(t *testing.T) {
	srv := recordingServer(t, http.StatusOK, []byte("mp3-bytes"))
	fs := &fakeAnalysisStore{call: recordedCall(srv.URL + "/RE1.mp3")}
	ai := &fakeAI{
		transcript:  "bom dia",
		chatContent: `{"summary":"s","sentiment":"Neutral","tags":["Made-up-tag","Scheduled"]}`,
	}
	p := newTestPipeline(fs, ai)

	got, err := p.Analyze(context.Background(), "CA123")
	require.NoError(t, err)
	assert.Equal(t, []model.Tag{model.TagScheduled}, got.Tags)
	assert.False(t, got.Fallback)
}

func TestAnalyze_NoRecording(t *testing.T) {
	fs := &fakeAnalysisStore{call: &model.Call{CallSID: "CA123", OrganizationID: "org-1"}}
	p := newTestPipeline(fs, &fakeAI{})

	_, err := p.Analyze(context.Background(), "CA123")
	assert.True(t, eris.Is(err, ErrNoRecording))
}

func TestAnalyze_UnknownCall(t *testing.T) {
	fs := &fakeAnalysisStore{}
	p := newTestPipeline(fs, &fakeAI{})

	_, err := p.Analyze(context.Background(), "CA404")
	assert.True(t, eris.Is(err, store.ErrNotFound))
}

func TestAnalyze_InsertRaceReturnsWinnersRow(t *testing.T) {
	srv := recordingServer(t, http.StatusOK, []byte("mp3-bytes"))
	fs := &fakeAnalysisStore{
		call:      recordedCall(srv.URL + "/RE1.mp3"),
		insertErr: store.ErrDuplicate,
		raced:     &model.AIAnalysis{ID: "a-winner", CallSID: "CA123"},
	}
	ai := &fakeAI{
		transcript:  "bom dia",
		chatContent: `{"summary":"s","sentiment":"Neutral","tags":["Scheduled"]}`,
	}
	p := newTestPipeline(fs, ai)

	got, err := p.Analyze(context.Background(), "CA123")
	require.NoError(t, err)
	assert.Equal(t, "a-winner", got.ID)
	assert.Empty(t, fs.tagged)
}

func TestAnalyze_OversizedRecordingRejected(t *testing.T) {
	srv := recordingServer(t, http.StatusOK, make([]byte, 64))
	fs := &fakeAnalysisStore{call: recordedCall(srv.URL + "/RE1.mp3")}
	p := NewPipeline(fs, &fakeAI{}, config.OpenAIConfig{}, config.AnalysisConfig{
		RequestsPerMinute: 600,
		MaxAudioBytes:     16,
	})

	_, err := p.Analyze(context.Background(), "CA123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "byte limit")
}
