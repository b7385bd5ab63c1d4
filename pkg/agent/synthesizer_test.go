package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dowser-io/dowser/pkg/config"
	"github.com/dowser-io/dowser/pkg/llm"
	"github.com/dowser-io/dowser/pkg/store"
)

type fakeProvider struct {
	response string
	err      error
	calls    int
	lastReq  *llm.Request
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake-model" }
func (f *fakeProvider) Close() error  { return nil }

func (f *fakeProvider) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	f.calls++
	f.lastReq = req
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Text: f.response}, nil
}

func TestSynthesizeBuildsGroundedAnswer(t *testing.T) {
	provider := &fakeProvider{response: "Set the level field in the logging section [a]."}
	synth := NewSynthesizer(provider, config.AgentConfig{})

	docs := []store.Document{doc("a"), doc("b")}
	answer, err := synth.Synthesize(context.Background(), "how do I configure logging", docs, judged(0.8))
	require.NoError(t, err)
	require.NotNil(t, answer)

	assert.True(t, strings.HasPrefix(answer.Text, "Set the level field"), "got %q", answer.Text)
	assert.Equal(t, []string{"a", "b"}, answer.Citations)
	assert.InDelta(t, 0.8, answer.Confidence, 1e-9)
	assert.Equal(t, "scripted", answer.Reasoning)
	assert.Equal(t, "how do I configure logging", answer.Query)
	assert.False(t, answer.CreatedAt.IsZero())

	_, err = uuid.Parse(answer.ID)
	assert.NoError(t, err)

	require.NotNil(t, provider.lastReq)
	require.NotNil(t, provider.lastReq.Temperature)
	assert.InDelta(t, 0.7, *provider.lastReq.Temperature, 1e-9)
	assert.Contains(t, provider.lastReq.Prompt, "Document 1 (ID: a):")
	assert.Contains(t, provider.lastReq.Prompt, "Question: how do I configure logging")
}

func TestSynthesizeAppendsSources(t *testing.T) {
	provider := &fakeProvider{response: "answer text"}
	synth := NewSynthesizer(provider, config.AgentConfig{})

	answer, err := synth.Synthesize(context.Background(), "q", []store.Document{doc("a"), doc("a"), doc("b")}, judged(0.8))
	require.NoError(t, err)

	assert.Contains(t, answer.Text, "Sources:")
	assert.Contains(t, answer.Text, "- b")
	// Duplicate titles collapse to one line.
	assert.Equal(t, 1, strings.Count(answer.Text, "- a"))
}

func TestSynthesizeWithoutSources(t *testing.T) {
	provider := &fakeProvider{response: "answer text"}
	synth := NewSynthesizer(provider, config.AgentConfig{IncludeSources: config.BoolPtr(false)})

	answer, err := synth.Synthesize(context.Background(), "q", []store.Document{doc("a")}, judged(0.8))
	require.NoError(t, err)
	assert.NotContains(t, answer.Text, "Sources:")
}

func TestSynthesizeEmptyDocumentsSkipsLLM(t *testing.T) {
	provider := &fakeProvider{response: "should not be used"}
	synth := NewSynthesizer(provider, config.AgentConfig{})

	answer, err := synth.Synthesize(context.Background(), "q", nil, nil)
	require.NoError(t, err)

	assert.Contains(t, answer.Text, "could not find relevant information")
	assert.Equal(t, "no documents retrieved", answer.Reasoning)
	assert.Zero(t, answer.Confidence)
	assert.Empty(t, answer.Citations)
	assert.Zero(t, provider.calls)
}

func TestSynthesizeLLMFailureReturnsExtracts(t *testing.T) {
	provider := &fakeProvider{err: errors.New("connection refused")}
	synth := NewSynthesizer(provider, config.AgentConfig{})

	docs := []store.Document{doc("v1"), doc("v2"), doc("v3"), doc("v4")}
	answer, err := synth.Synthesize(context.Background(), "q", docs, judged(0.6))
	require.NoError(t, err)

	assert.Contains(t, answer.Text, "could not be generated")
	assert.Contains(t, answer.Text, "content v1")
	assert.Contains(t, answer.Text, "content v3")
	assert.NotContains(t, answer.Text, "content v4")
	assert.Contains(t, answer.Reasoning, "answer synthesis failed")
	assert.Equal(t, []string{"v1", "v2", "v3", "v4"}, answer.Citations)
	assert.InDelta(t, 0.6, answer.Confidence, 1e-9)
}

func TestSynthesizeEmptyResponseReturnsExtracts(t *testing.T) {
	provider := &fakeProvider{response: "   "}
	synth := NewSynthesizer(provider, config.AgentConfig{})

	answer, err := synth.Synthesize(context.Background(), "q", []store.Document{doc("a")}, judged(0.6))
	require.NoError(t, err)
	assert.Contains(t, answer.Text, "could not be generated")
}

func TestSynthesizeContextCancellationPropagates(t *testing.T) {
	provider := &fakeProvider{response: "answer"}
	synth := NewSynthesizer(provider, config.AgentConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := synth.Synthesize(ctx, "q", []store.Document{doc("a")}, judged(0.6))
	require.ErrorIs(t, err, context.Canceled)
}

func TestSynthesizeTruncatesLongDocuments(t *testing.T) {
	provider := &fakeProvider{response: "answer"}
	synth := NewSynthesizer(provider, config.AgentConfig{})

	content := strings.Repeat("retrieval quality assessment matters here ", 400)
	long := store.Document{ID: "big", Content: content}
	_, err := synth.Synthesize(context.Background(), "q", []store.Document{long}, judged(0.6))
	require.NoError(t, err)

	require.NotNil(t, provider.lastReq)
	assert.NotContains(t, provider.lastReq.Prompt, content)
	assert.Contains(t, provider.lastReq.Prompt, "...")
}
