package assistant

import (
	"context"
	"strings"
	"time"

	"github.com/Abraxas-365/finai/pkg/ai/llm/memoryx"
	"github.com/Abraxas-365/finai/pkg/errx"
	"github.com/Abraxas-365/finai/pkg/logx"
	"github.com/Abraxas-365/finai/pkg/observability"
)

// EngineConfig tunes the answer engine
type EngineConfig struct {
	// TurnTimeout bounds a whole turn, zero means no limit
	TurnTimeout time.Duration
	Metrics     *observability.Metrics
}

// Engine runs a turn: classify, resolve context, build the prompt, generate
// and record the turn in memory
type Engine struct {
	classifier Classifier
	resolver   *Resolver
	generator  Generator
	cfg        EngineConfig
}

func NewEngine(classifier Classifier, resolver *Resolver, generator Generator, cfg EngineConfig) *Engine {
	return &Engine{
		classifier: classifier,
		resolver:   resolver,
		generator:  generator,
		cfg:        cfg,
	}
}

// Answer returns the answer to query and records the turn in mem
func (e *Engine) Answer(ctx context.Context, query string, mem *memoryx.Memory) (string, error) {
	res, err := e.Run(ctx, query, mem)
	if err != nil {
		return "", err
	}
	return res.Answer, nil
}

// Run is Answer with the intermediate products of the turn
func (e *Engine) Run(ctx context.Context, query string, mem *memoryx.Memory) (*Result, error) {
	return e.run(ctx, query, mem, nil)
}

// Stream is Run with the answer delivered to onChunk as it is generated. The
// turn is recorded once the stream is complete.
func (e *Engine) Stream(ctx context.Context, query string, mem *memoryx.Memory, onChunk func(string) error) (*Result, error) {
	if onChunk == nil {
		onChunk = func(string) error { return nil }
	}
	return e.run(ctx, query, mem, onChunk)
}

func (e *Engine) run(ctx context.Context, query string, mem *memoryx.Memory, onChunk func(string) error) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrRegistry.New(ErrEmptyQuery)
	}

	if e.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.TurnTimeout)
		defer cancel()
	}

	clock := newStageClock(e.cfg.Metrics)
	res := &Result{}

	history := memoryx.EmptyHistory
	if mem != nil {
		history = mem.Render()
	}

	clock.enter(StageClassifying)
	res.Classification = e.classify(ctx, query, history)
	if err := ctx.Err(); err != nil {
		return nil, e.abandoned(err)
	}

	clock.enter(StageResolvingContext)
	res.Context = e.resolver.Resolve(ctx, query, history, res.Classification)
	if err := ctx.Err(); err != nil {
		return nil, e.abandoned(err)
	}

	clock.enter(StagePrompting)
	res.Prompt = BuildPrompt(query, history, res.Context)
	logx.Debugf("Prompt assembled:\n%s", res.Prompt.Text())

	clock.enter(StageGenerating)
	var (
		answer string
		err    error
	)
	if onChunk == nil {
		answer, err = e.generator.Generate(ctx, res.Prompt.Messages())
	} else {
		answer, err = e.generator.GenerateStream(ctx, res.Prompt.Messages(), onChunk)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, e.abandoned(ctxErr)
	}
	if err != nil {
		logx.WithFields(logx.Fields{"stage": string(StageGenerating)}).Errorf("Generation failed: %v", err)
		e.cfg.Metrics.ObserveTurn("model_unavailable")
		return nil, err
	}
	res.Answer = strings.TrimSpace(answer)

	if mem != nil {
		mem.Add(query, res.Answer)
	}
	clock.enter(StageRecorded)
	res.Stages = clock.done()
	e.cfg.Metrics.ObserveTurn("ok")

	logx.WithFields(logx.Fields{
		"tickers":    res.Classification.Tickers,
		"sections":   len(res.Prompt.Context),
		"answer_len": len(res.Answer),
	}).Info("Turn answered")
	return res, nil
}

// classify never fails: any classifier error falls back to the default
// classification
func (e *Engine) classify(ctx context.Context, query, history string) Classification {
	c, err := e.classifier.Classify(ctx, query, history)
	if err == nil {
		return c
	}
	if ctx.Err() != nil {
		return DefaultClassification()
	}

	reason := "model"
	if errx.CodeOf(err) == string(ErrClassificationParse) {
		reason = "parse"
	}
	logx.WithFields(logx.Fields{"stage": string(StageClassifying), "reason": reason}).
		Warnf("Classification failed, no context will be fetched: %v", err)
	e.cfg.Metrics.ObserveClassificationFallback(reason)
	return DefaultClassification()
}

func (e *Engine) abandoned(err error) error {
	logx.Warnf("Turn abandoned before completion: %v", err)
	e.cfg.Metrics.ObserveTurn("abandoned")
	return err
}

// stageClock times the stages of one turn
type stageClock struct {
	metrics *observability.Metrics
	stages  []StageTiming
	current Stage
	since   time.Time
}

func newStageClock(m *observability.Metrics) *stageClock {
	return &stageClock{metrics: m, current: StageReceived, since: time.Now()}
}

func (c *stageClock) enter(next Stage) {
	now := time.Now()
	d := now.Sub(c.since)
	c.stages = append(c.stages, StageTiming{Stage: c.current, Duration: d})
	c.metrics.ObserveStage(string(c.current), d)
	logx.WithFields(logx.Fields{"stage": string(next)}).Debug("Turn stage")
	c.current, c.since = next, now
}

func (c *stageClock) done() []StageTiming {
	return append(c.stages, StageTiming{Stage: c.current})
}
