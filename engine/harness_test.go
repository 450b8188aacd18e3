package engine

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mediaPipeline/agents"
	"mediaPipeline/converter"
	"mediaPipeline/kafka"
	"mediaPipeline/notify"
	"mediaPipeline/pipeline"
	"mediaPipeline/provider"
	"mediaPipeline/repository"
)

type countingText struct {
	inner provider.TextGenerator
	calls atomic.Int32
}

func (c *countingText) Generate(ctx context.Context, system, prompt string) (string, error) {
	c.calls.Add(1)
	return c.inner.Generate(ctx, system, prompt)
}

type harness struct {
	t        *testing.T
	repo     *repository.MemoryRepo
	disp     *MemoryDispatcher
	rec      *notify.Recorder
	text     *countingText
	media    *provider.DummyMedia
	agents   *agents.Set
	exec     *Executor
	runner   *Runner
	controls *Controls
	bridge   *Bridge
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	h := &harness{
		t:     t,
		repo:  repository.NewMemoryRepo(),
		disp:  &MemoryDispatcher{},
		rec:   &notify.Recorder{},
		text:  &countingText{inner: &provider.DummyText{}},
		media: &provider.DummyMedia{},
	}
	h.agents = agents.NewSet(agents.Deps{
		Text:      h.text,
		Media:     h.media,
		Assets:    h.repo,
		Converter: converter.NewConverter(logger),
		MediaDir:  t.TempDir(),
	})
	h.exec = NewExecutor(h.repo, h.agents, h.rec, nil, logger, 0)
	h.runner = NewRunner(h.repo, h.exec, h.rec, nil, logger)
	h.controls = NewControls(h.repo, h.disp, h.rec, nil, logger)
	h.bridge = NewBridge(h.repo, h.disp, h.rec, nil, logger)
	return h
}

func (h *harness) create(t pipeline.Type, mode pipeline.Mode, cfg map[string]any) *pipeline.Pipeline {
	h.t.Helper()
	if cfg == nil {
		cfg = map[string]any{"theme": "rain", "duration": 60}
	}
	p, err := h.controls.Create(context.Background(), CreateParams{
		ProjectID: "project-" + string(t) + "-" + string(mode),
		UserID:    "user-1",
		Type:      t,
		Mode:      mode,
		Config:    cfg,
	})
	require.NoError(h.t, err)
	return p
}

func (h *harness) get(id string) *pipeline.Pipeline {
	h.t.Helper()
	p, err := h.repo.GetPipeline(context.Background(), id)
	require.NoError(h.t, err)
	return p
}

// work processes queued jobs the way the worker does, without retries.
func (h *harness) work() []error {
	h.t.Helper()
	var errs []error
	for {
		jobs := h.disp.Drain()
		if len(jobs) == 0 {
			return errs
		}
		for _, job := range jobs {
			var err error
			ctx := context.Background()
			switch job.Kind {
			case kafka.JobRunPipeline:
				err = h.runner.Run(ctx, job.PipelineID)
			case kafka.JobRunStep:
				_, err = h.exec.RunStep(ctx, job.PipelineID, job.StepID, job.Extra)
			case kafka.JobTaskCompleted:
				err = h.bridge.FollowUp(ctx, job.Token)
			}
			if err != nil {
				errs = append(errs, err)
			}
		}
	}
}
