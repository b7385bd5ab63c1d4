package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dowser-io/dowser/pkg/assess"
	"github.com/dowser-io/dowser/pkg/config"
	"github.com/dowser-io/dowser/pkg/store"
)

type scriptedSearcher struct {
	responses [][]store.Document
	errs      []error
	queries   []string
	topKs     []int
}

func (s *scriptedSearcher) Search(ctx context.Context, query string, topK int, filter map[string]any) ([]store.Document, error) {
	idx := len(s.queries)
	s.queries = append(s.queries, query)
	s.topKs = append(s.topKs, topK)
	if idx < len(s.errs) && s.errs[idx] != nil {
		return nil, s.errs[idx]
	}
	if idx < len(s.responses) {
		return s.responses[idx], nil
	}
	return nil, nil
}

type scriptedAssessor struct {
	judgments []*assess.Judgment
	calls     int
}

func (s *scriptedAssessor) Assess(ctx context.Context, query string, docs []store.Document) *assess.Judgment {
	idx := s.calls
	s.calls++
	if idx < len(s.judgments) {
		return s.judgments[idx]
	}
	return &assess.Judgment{Confidence: 0.1, Reasoning: "scripted default"}
}

type scriptedRefiner struct {
	rewrites []string
	calls    int
}

func (s *scriptedRefiner) Refine(ctx context.Context, query string, docs []store.Document, issues []string) string {
	idx := s.calls
	s.calls++
	if idx < len(s.rewrites) {
		return s.rewrites[idx]
	}
	return query
}

type recordingSynthesizer struct {
	lastQuery    string
	lastDocs     []store.Document
	lastJudgment *assess.Judgment
	err          error
	calls        int
}

func (s *recordingSynthesizer) Synthesize(ctx context.Context, query string, docs []store.Document, judgment *assess.Judgment) (*Answer, error) {
	s.calls++
	s.lastQuery = query
	s.lastDocs = docs
	s.lastJudgment = judgment
	if s.err != nil {
		return nil, s.err
	}
	answer := &Answer{ID: "test-answer", Query: query, Text: "synthesized"}
	if judgment != nil {
		answer.Confidence = judgment.Confidence
		answer.Reasoning = judgment.Reasoning
	}
	return answer, nil
}

func doc(id string) store.Document {
	return store.Document{ID: id, Content: "content " + id}
}

func judged(confidence float64, issues ...string) *assess.Judgment {
	return &assess.Judgment{Confidence: confidence, Reasoning: "scripted", Issues: issues}
}

func newTestEngine(t *testing.T, searcher Searcher, assessor Assessor, refiner Refiner, synth Synthesizer, agentCfg config.AgentConfig) *Engine {
	t.Helper()
	engine, err := NewEngine(EngineConfig{
		Searcher:    searcher,
		Assessor:    assessor,
		Refiner:     refiner,
		Synthesizer: synth,
		Agent:       agentCfg,
	})
	require.NoError(t, err)
	return engine
}

func TestAnswerStopsWhenConfident(t *testing.T) {
	searcher := &scriptedSearcher{responses: [][]store.Document{{doc("a"), doc("b")}}}
	assessor := &scriptedAssessor{judgments: []*assess.Judgment{judged(0.9)}}
	refiner := &scriptedRefiner{}
	synth := &recordingSynthesizer{}
	engine := newTestEngine(t, searcher, assessor, refiner, synth, config.AgentConfig{})

	answer, err := engine.Answer(context.Background(), "how do I configure logging")
	require.NoError(t, err)
	require.NotNil(t, answer)

	assert.InDelta(t, 0.9, answer.Confidence, 1e-9)
	require.Len(t, answer.Attempts, 1)
	assert.Len(t, searcher.queries, 1)
	assert.Zero(t, refiner.calls)
	assert.Equal(t, "how do I configure logging", synth.lastQuery)
	assert.Equal(t, []store.Document{doc("a"), doc("b")}, synth.lastDocs)
}

func TestAnswerRefinesUntilConfident(t *testing.T) {
	searcher := &scriptedSearcher{responses: [][]store.Document{
		{doc("weak")},
		{doc("strong-1"), doc("strong-2")},
	}}
	assessor := &scriptedAssessor{judgments: []*assess.Judgment{
		judged(0.4, "query too vague"),
		judged(0.8),
	}}
	refiner := &scriptedRefiner{rewrites: []string{"configure slog log level"}}
	synth := &recordingSynthesizer{}
	engine := newTestEngine(t, searcher, assessor, refiner, synth, config.AgentConfig{})

	answer, err := engine.Answer(context.Background(), "logging")
	require.NoError(t, err)

	require.Len(t, answer.Attempts, 2)
	assert.Equal(t, []string{"logging", "configure slog log level"}, searcher.queries)
	assert.Equal(t, 1, refiner.calls)

	// Synthesis uses the original query, not the rewrite.
	assert.Equal(t, "logging", synth.lastQuery)
	assert.Equal(t, []store.Document{doc("strong-1"), doc("strong-2")}, synth.lastDocs)
	assert.InDelta(t, 0.8, answer.Confidence, 1e-9)
}

func TestAnswerNeverRefinesAfterLastAttempt(t *testing.T) {
	searcher := &scriptedSearcher{responses: [][]store.Document{
		{doc("a")}, {doc("b")}, {doc("c")},
	}}
	assessor := &scriptedAssessor{judgments: []*assess.Judgment{
		judged(0.3), judged(0.2), judged(0.1),
	}}
	refiner := &scriptedRefiner{rewrites: []string{"second", "third"}}
	synth := &recordingSynthesizer{}
	engine := newTestEngine(t, searcher, assessor, refiner, synth, config.AgentConfig{MaxAttempts: 3})

	answer, err := engine.Answer(context.Background(), "first")
	require.NoError(t, err)

	assert.Len(t, searcher.queries, 3)
	assert.Equal(t, 2, refiner.calls)
	require.Len(t, answer.Attempts, 3)

	// Best attempt is the first one (0.3).
	assert.Equal(t, []store.Document{doc("a")}, synth.lastDocs)
	assert.InDelta(t, 0.3, answer.Confidence, 1e-9)
}

func TestAnswerSynthesizesFromBestAttempt(t *testing.T) {
	searcher := &scriptedSearcher{responses: [][]store.Document{
		{doc("first")}, {doc("second")}, {doc("third")},
	}}
	assessor := &scriptedAssessor{judgments: []*assess.Judgment{
		judged(0.2), judged(0.5), judged(0.4),
	}}
	synth := &recordingSynthesizer{}
	engine := newTestEngine(t, searcher, assessor, &scriptedRefiner{}, synth, config.AgentConfig{MaxAttempts: 3})

	answer, err := engine.Answer(context.Background(), "query")
	require.NoError(t, err)

	// Attempt 2 scored highest; its documents win even though attempt 3 ran last.
	assert.Equal(t, []store.Document{doc("second")}, synth.lastDocs)
	assert.InDelta(t, 0.5, answer.Confidence, 1e-9)
	assert.Len(t, answer.Attempts, 3)
}

func TestAnswerBestRequiresStrictImprovement(t *testing.T) {
	searcher := &scriptedSearcher{responses: [][]store.Document{
		{doc("first")}, {doc("second")},
	}}
	assessor := &scriptedAssessor{judgments: []*assess.Judgment{
		judged(0.5), judged(0.5),
	}}
	synth := &recordingSynthesizer{}
	engine := newTestEngine(t, searcher, assessor, &scriptedRefiner{}, synth, config.AgentConfig{MaxAttempts: 2})

	_, err := engine.Answer(context.Background(), "query")
	require.NoError(t, err)

	// Equal confidence does not displace the earlier best.
	assert.Equal(t, []store.Document{doc("first")}, synth.lastDocs)
}

func TestAnswerSingleAttemptSkipsRefinement(t *testing.T) {
	searcher := &scriptedSearcher{responses: [][]store.Document{{doc("a")}}}
	assessor := &scriptedAssessor{judgments: []*assess.Judgment{judged(0.2)}}
	refiner := &scriptedRefiner{}
	synth := &recordingSynthesizer{}
	engine := newTestEngine(t, searcher, assessor, refiner, synth, config.AgentConfig{MaxAttempts: 1})

	answer, err := engine.Answer(context.Background(), "query")
	require.NoError(t, err)

	assert.Len(t, searcher.queries, 1)
	assert.Zero(t, refiner.calls)
	assert.Len(t, answer.Attempts, 1)
	assert.InDelta(t, 0.2, answer.Confidence, 1e-9)
}

func TestAnswerStopsAtExactThreshold(t *testing.T) {
	searcher := &scriptedSearcher{responses: [][]store.Document{{doc("a")}}}
	assessor := &scriptedAssessor{judgments: []*assess.Judgment{judged(0.7)}}
	refiner := &scriptedRefiner{}
	engine := newTestEngine(t, searcher, assessor, refiner, &recordingSynthesizer{}, config.AgentConfig{})

	answer, err := engine.Answer(context.Background(), "query")
	require.NoError(t, err)
	assert.Len(t, answer.Attempts, 1)
	assert.Zero(t, refiner.calls)
}

func TestAnswerEmptyQuery(t *testing.T) {
	engine := newTestEngine(t, &scriptedSearcher{}, &scriptedAssessor{}, &scriptedRefiner{}, &recordingSynthesizer{}, config.AgentConfig{})

	_, err := engine.Answer(context.Background(), "   ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query is empty")
}

func TestAnswerFirstRetrievalErrorPropagates(t *testing.T) {
	retrievalErr := store.NewRetrievalError("hybrid", "search", "query", errors.New("store down"))
	searcher := &scriptedSearcher{errs: []error{retrievalErr}}
	synth := &recordingSynthesizer{}
	engine := newTestEngine(t, searcher, &scriptedAssessor{}, &scriptedRefiner{}, synth, config.AgentConfig{})

	_, err := engine.Answer(context.Background(), "query")
	require.Error(t, err)

	var re *store.RetrievalError
	require.ErrorAs(t, err, &re)
	assert.Zero(t, synth.calls)
}

func TestAnswerLaterRetrievalErrorAnswersFromBest(t *testing.T) {
	retrievalErr := store.NewRetrievalError("hybrid", "search", "query", errors.New("store down"))
	searcher := &scriptedSearcher{
		responses: [][]store.Document{{doc("a")}},
		errs:      []error{nil, retrievalErr},
	}
	assessor := &scriptedAssessor{judgments: []*assess.Judgment{judged(0.4)}}
	synth := &recordingSynthesizer{}
	engine := newTestEngine(t, searcher, assessor, &scriptedRefiner{}, synth, config.AgentConfig{MaxAttempts: 2})

	answer, err := engine.Answer(context.Background(), "query")
	require.NoError(t, err)

	assert.Len(t, answer.Attempts, 1)
	assert.Equal(t, []store.Document{doc("a")}, synth.lastDocs)
	assert.InDelta(t, 0.4, answer.Confidence, 1e-9)
}

func TestAnswerContextCanceled(t *testing.T) {
	engine := newTestEngine(t, &scriptedSearcher{}, &scriptedAssessor{}, &scriptedRefiner{}, &recordingSynthesizer{}, config.AgentConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Answer(ctx, "query")
	require.ErrorIs(t, err, context.Canceled)
}

func TestAnswerEmptyRetrievalStillTerminates(t *testing.T) {
	searcher := &scriptedSearcher{}
	assessor := &scriptedAssessor{judgments: []*assess.Judgment{
		judged(0, "no documents found"),
		judged(0, "no documents found"),
		judged(0, "no documents found"),
	}}
	refiner := &scriptedRefiner{}
	synth := &recordingSynthesizer{}
	engine := newTestEngine(t, searcher, assessor, refiner, synth, config.AgentConfig{})

	answer, err := engine.Answer(context.Background(), "query")
	require.NoError(t, err)

	assert.Len(t, searcher.queries, 3)
	assert.Equal(t, 2, refiner.calls)
	assert.Empty(t, synth.lastDocs)
	assert.Zero(t, answer.Confidence)
}

func TestAnswerPassesConfiguredTopK(t *testing.T) {
	searcher := &scriptedSearcher{responses: [][]store.Document{{doc("a")}}}
	assessor := &scriptedAssessor{judgments: []*assess.Judgment{judged(0.9)}}
	engine := newTestEngine(t, searcher, assessor, &scriptedRefiner{}, &recordingSynthesizer{}, config.AgentConfig{TopK: 7})

	_, err := engine.Answer(context.Background(), "query")
	require.NoError(t, err)
	require.Len(t, searcher.topKs, 1)
	assert.Equal(t, 7, searcher.topKs[0])
}

func TestNewEngineValidation(t *testing.T) {
	valid := EngineConfig{
		Searcher:    &scriptedSearcher{},
		Assessor:    &scriptedAssessor{},
		Refiner:     &scriptedRefiner{},
		Synthesizer: &recordingSynthesizer{},
	}

	missing := valid
	missing.Searcher = nil
	_, err := NewEngine(missing)
	require.Error(t, err)

	missing = valid
	missing.Assessor = nil
	_, err = NewEngine(missing)
	require.Error(t, err)

	missing = valid
	missing.Refiner = nil
	_, err = NewEngine(missing)
	require.Error(t, err)

	missing = valid
	missing.Synthesizer = nil
	_, err = NewEngine(missing)
	require.Error(t, err)

	bad := valid
	bad.Agent = config.AgentConfig{MaxAttempts: -1}
	_, err = NewEngine(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid agent config")

	bad = valid
	bad.Agent = config.AgentConfig{ConfidenceThreshold: 1.5}
	_, err = NewEngine(bad)
	require.Error(t, err)
}

func TestAnswerBestAttempt(t *testing.T) {
	answer := &Answer{Attempts: []Attempt{
		{Query: "first", Judgment: judged(0.4)},
		{Query: "second", Judgment: judged(0.8)},
		{Query: "third", Judgment: judged(0.8)},
	}}

	best := answer.BestAttempt()
	require.NotNil(t, best)
	assert.Equal(t, "second", best.Query)

	empty := &Answer{}
	assert.Nil(t, empty.BestAttempt())

	// Attempts without judgments fall back to the first attempt.
	unjudged := &Answer{Attempts: []Attempt{{Query: "only"}}}
	best = unjudged.BestAttempt()
	require.NotNil(t, best)
	assert.Equal(t, "only", best.Query)
}

func TestAnswerWithOptionsOverrides(t *testing.T) {
	searcher := &scriptedSearcher{responses: [][]store.Document{
		{doc("a")}, {doc("b")},
	}}
	assessor := &scriptedAssessor{judgments: []*assess.Judgment{
		judged(0.5), judged(0.5),
	}}
	refiner := &scriptedRefiner{}
	synth := &recordingSynthesizer{}
	engine := newTestEngine(t, searcher, assessor, refiner, synth, config.AgentConfig{MaxAttempts: 3})

	// A per-call threshold below the assessed confidence stops the
	// loop on the first attempt despite the configured 0.7.
	answer, err := engine.AnswerWithOptions(context.Background(), "query", Options{ConfidenceThreshold: 0.5})
	require.NoError(t, err)
	assert.Len(t, answer.Attempts, 1)
	assert.Zero(t, refiner.calls)

	// A per-call attempt cap overrides the configured one.
	searcher2 := &scriptedSearcher{responses: [][]store.Document{{doc("a")}}}
	assessor2 := &scriptedAssessor{judgments: []*assess.Judgment{judged(0.1)}}
	refiner2 := &scriptedRefiner{}
	engine2 := newTestEngine(t, searcher2, assessor2, refiner2, &recordingSynthesizer{}, config.AgentConfig{MaxAttempts: 3})

	answer, err = engine2.AnswerWithOptions(context.Background(), "query", Options{MaxAttempts: 1})
	require.NoError(t, err)
	assert.Len(t, answer.Attempts, 1)
	assert.Zero(t, refiner2.calls)
}

func TestAnswerWithOptionsRejectsBadOverrides(t *testing.T) {
	engine := newTestEngine(t, &scriptedSearcher{}, &scriptedAssessor{}, &scriptedRefiner{}, &recordingSynthesizer{}, config.AgentConfig{})

	_, err := engine.AnswerWithOptions(context.Background(), "query", Options{MaxAttempts: -2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid answer options")

	_, err = engine.AnswerWithOptions(context.Background(), "query", Options{ConfidenceThreshold: 1.5})
	require.Error(t, err)
}
