package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Abraxas-365/finai/pkg/ai/llm"
	"github.com/Abraxas-365/finai/pkg/ai/llm/llmtest"
	"github.com/Abraxas-365/finai/pkg/ai/llm/memoryx"
	"github.com/Abraxas-365/finai/pkg/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	engine  *Engine
	market  *fakeMarket
	filings *fakeFilings
	model   *llmtest.Fake
	metrics *observability.Metrics
}

func newEngineFixture(t *testing.T, classifier Classifier, answer string) *engineFixture {
	t.Helper()
	f := &engineFixture{
		market:  &fakeMarket{},
		filings: &fakeFilings{},
		model:   llmtest.NewFake(answer),
		metrics: observability.NewMetrics("test"),
	}
	resolver := NewResolver(f.market, f.filings, ResolverConfig{}, f.metrics)
	f.engine = NewEngine(classifier, resolver, llm.NewClient(f.model), EngineConfig{Metrics: f.metrics})
	return f
}

type staticClassifier struct {
	result Classification
	err    error
}

func (s staticClassifier) Classify(context.Context, string, string) (Classification, error) {
	return s.result, s.err
}

func TestRunCurrentPriceScenario(t *testing.T) {
	classifier := NewLLMClassifier(llm.NewClient(classifierModel(t)), false)
	f := newEngineFixture(t, classifier, "Amazon (AMZN) last traded at $187.42.")
	mem := memoryx.New(5)

	res, err := f.engine.Run(context.Background(), "What's the current price of Amazon stock?", mem)
	require.NoError(t, err)

	assert.Equal(t, Classification{RequiresStockPrice: true, Tickers: []string{"AMZN"}}, res.Classification)
	_, _, quotes := f.market.calls()
	assert.Equal(t, []string{"AMZN"}, quotes)
	assert.True(t, res.Prompt.Has("STOCK PRICE INFORMATION:"))
	assert.Contains(t, res.Answer, "$187.42")
	assert.Equal(t, 1, mem.Len())

	sent := f.model.Calls()[0].Messages
	assert.Contains(t, sent[0].Content, "STOCK PRICE INFORMATION:\nSymbol: AMZN")

	var stages []Stage
	for _, s := range res.Stages {
		stages = append(stages, s.Stage)
	}
	assert.Equal(t, []Stage{StageReceived, StageClassifying, StageResolvingContext, StagePrompting, StageGenerating, StageRecorded}, stages)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Turns.WithLabelValues("ok")))
}

func TestRunSkipsUnrequestedResolvers(t *testing.T) {
	f := newEngineFixture(t, staticClassifier{result: Classification{RequiresStockPrice: true, Tickers: []string{"TSLA"}}}, "ok")

	res, err := f.engine.Run(context.Background(), "TSLA?", memoryx.New(3))
	require.NoError(t, err)

	account, positions, _ := f.market.calls()
	assert.Zero(t, account)
	assert.Zero(t, positions)
	assert.Empty(t, f.filings.called())
	assert.Empty(t, res.Context.AccountInfo)
	assert.False(t, res.Prompt.Has("ACCOUNT INFORMATION:"))
}

func TestRunFilingRateLimitStillAnswers(t *testing.T) {
	f := newEngineFixture(t, staticClassifier{result: Classification{Requires10K: true, Tickers: []string{"AAPL"}}}, "The filing is unavailable right now.")
	f.filings.errs = map[string]error{"AAPL": rateLimited()}
	mem := memoryx.New(3)

	res, err := f.engine.Run(context.Background(), "What are Apple's risk factors?", mem)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.Context.SECContext, "Error retrieving context from 10-K filing: "))
	assert.Contains(t, f.model.Calls()[0].Messages[0].Content, "SEC 10-K CONTEXT:\nError retrieving context from 10-K filing: Filing API rate limit exceeded")
	assert.Equal(t, "The filing is unavailable right now.", res.Answer)
	assert.Equal(t, 1, mem.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ResolverFailures.WithLabelValues("sec_context")))
}

func TestRunClassificationFailureFallsBack(t *testing.T) {
	classifier := NewLLMClassifier(llm.NewClient(llmtest.NewFake("not json")), false)
	f := newEngineFixture(t, classifier, "Could you tell me which company you mean?")
	mem := memoryx.New(3)

	res, err := f.engine.Run(context.Background(), "How is it doing?", mem)
	require.NoError(t, err)

	assert.Equal(t, DefaultClassification(), res.Classification)
	assert.Empty(t, res.Prompt.Context)
	account, positions, quotes := f.market.calls()
	assert.Zero(t, account+positions+len(quotes))
	assert.Equal(t, 1, mem.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ClassificationFallbacks.WithLabelValues("parse")))
}

func TestRunModelFailureIsFatal(t *testing.T) {
	f := newEngineFixture(t, staticClassifier{result: DefaultClassification()}, "")
	f.model.Err = errors.New("503 upstream")
	mem := memoryx.New(3)
	mem.Add("earlier", "answer")

	_, err := f.engine.Answer(context.Background(), "hello", mem)
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrRegistry.New(llm.ErrModelUnavailable))
	assert.Equal(t, 1, mem.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Turns.WithLabelValues("model_unavailable")))
}

func TestRunRecordsHistoryForNextTurn(t *testing.T) {
	f := newEngineFixture(t, staticClassifier{result: DefaultClassification()}, "first answer")
	mem := memoryx.New(3)

	_, err := f.engine.Answer(context.Background(), "first question", mem)
	require.NoError(t, err)
	_, err = f.engine.Answer(context.Background(), "second question", mem)
	require.NoError(t, err)

	second := f.model.Calls()[1].Messages[0].Content
	assert.Contains(t, second, "CONVERSATION HISTORY:\nUser Query 1: first question\nAssistant Response 1: first answer")
	assert.Equal(t, 2, mem.Len())
}

func TestRunRejectsEmptyQuery(t *testing.T) {
	f := newEngineFixture(t, staticClassifier{}, "x")

	_, err := f.engine.Run(context.Background(), "   ", memoryx.New(3))
	assert.ErrorIs(t, err, ErrRegistry.New(ErrEmptyQuery))
	assert.Empty(t, f.model.Calls())
}

// cancellingGenerator abandons the turn while the answer is generated
type cancellingGenerator struct {
	cancel context.CancelFunc
}

func (g cancellingGenerator) Generate(context.Context, []llm.Message, ...llm.Option) (string, error) {
	g.cancel()
	return "too late", nil
}

func (g cancellingGenerator) GenerateStream(ctx context.Context, msgs []llm.Message, _ func(string) error, opts ...llm.Option) (string, error) {
	return g.Generate(ctx, msgs, opts...)
}

func TestRunAbandonedTurnIsNotRecorded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	resolver := NewResolver(&fakeMarket{}, &fakeFilings{}, ResolverConfig{}, nil)
	engine := NewEngine(staticClassifier{result: DefaultClassification()}, resolver, cancellingGenerator{cancel: cancel}, EngineConfig{})
	mem := memoryx.New(3)

	_, err := engine.Answer(ctx, "hello", mem)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, mem.Len())
}

func TestStreamDeliversChunksAndRecords(t *testing.T) {
	f := newEngineFixture(t, staticClassifier{result: DefaultClassification()}, "Markets closed higher today.")
	mem := memoryx.New(3)

	var chunks []string
	res, err := f.engine.Stream(context.Background(), "How did markets do?", mem, func(s string) error {
		chunks = append(chunks, s)
		return nil
	})
	require.NoError(t, err)

	assert.Greater(t, len(chunks), 1)
	assert.Equal(t, "Markets closed higher today.", strings.Join(chunks, ""))
	assert.Equal(t, res.Answer, mem.Turns()[0].Response)
}

func TestStreamConsumerFailureIsNotRecorded(t *testing.T) {
	f := newEngineFixture(t, staticClassifier{result: DefaultClassification()}, "Markets closed higher today.")
	mem := memoryx.New(3)
	gone := errors.New("client went away")

	_, err := f.engine.Stream(context.Background(), "How did markets do?", mem, func(string) error { return gone })
	assert.ErrorIs(t, err, gone)
	assert.Zero(t, mem.Len())
}
