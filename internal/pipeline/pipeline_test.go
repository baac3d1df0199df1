package pipeline

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/crystaldolphin/outpipe/internal/config"
	"github.com/crystaldolphin/outpipe/internal/schema"
)

// recordingStep appends its name to a shared trace.
type recordingStep struct {
	name      string
	trace     *[]string
	result    Result
	panics    bool
	initErr   error
	termErr   error
	lifecycle *[]string
}

func (s *recordingStep) Name() string { return s.name }

func (s *recordingStep) Handle(_ context.Context, pc *Context) Result {
	*s.trace = append(*s.trace, s.name)
	if s.panics {
		panic("boom")
	}
	return s.result
}

func (s *recordingStep) Initialize(context.Context) error {
	if s.lifecycle != nil {
		*s.lifecycle = append(*s.lifecycle, "init:"+s.name)
	}
	return s.initErr
}

func (s *recordingStep) Terminate(context.Context) error {
	if s.lifecycle != nil {
		*s.lifecycle = append(*s.lifecycle, "term:"+s.name)
	}
	return s.termErr
}

func newTestRegistry(t *testing.T, steps ...*recordingStep) *Registry {
	t.Helper()
	b := NewRegistryBuilder()
	for _, s := range steps {
		b.WithStep(s)
	}
	reg, err := b.Build()
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func steps(trace *[]string, names ...string) []*recordingStep {
	out := make([]*recordingStep, len(names))
	for i, n := range names {
		out[i] = &recordingStep{name: n, trace: trace}
	}
	return out
}

func newRun() *Context {
	return &Context{RunID: "r1", ConversationID: "g1", Message: schema.NewTextMessage("hi")}
}

func TestBuild_LockOrderUsesCanonicalOrder(t *testing.T) {
	var trace []string
	reg := newTestRegistry(t, steps(&trace, "block", "at", "split")...)

	p, err := Build(config.PipelineConfig{LockOrder: true, Steps: []string{"split", "block"}}, reg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := p.Steps(); !slices.Equal(got, []string{"block", "split"}) {
		t.Errorf("expected [block split], got %v", got)
	}
}

func TestBuild_ConfiguredOrder(t *testing.T) {
	var trace []string
	reg := newTestRegistry(t, steps(&trace, "block", "at", "split")...)

	p, err := Build(config.PipelineConfig{Steps: []string{"split(分段)", "at", "block"}}, reg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !p.Run(context.Background(), newRun()) {
		t.Fatal("expected delivery")
	}
	if !slices.Equal(trace, []string{"split", "at", "block"}) {
		t.Errorf("expected configured order, got %v", trace)
	}
}

func TestBuild_UnknownStep(t *testing.T) {
	var trace []string
	reg := newTestRegistry(t, steps(&trace, "block")...)

	for _, lock := range []bool{true, false} {
		_, err := Build(config.PipelineConfig{LockOrder: lock, Steps: []string{"block", "nope"}}, reg)
		if !errors.Is(err, ErrUnknownStep) {
			t.Errorf("lock_order=%v: expected ErrUnknownStep, got %v", lock, err)
		}
	}
}

func TestBuild_DuplicateStep(t *testing.T) {
	var trace []string
	reg := newTestRegistry(t, steps(&trace, "block")...)

	_, err := Build(config.PipelineConfig{Steps: []string{"block", "block(again)"}}, reg)
	if !errors.Is(err, ErrDuplicateStep) {
		t.Errorf("expected ErrDuplicateStep, got %v", err)
	}

	_, err = NewRegistryBuilder().
		WithStep(&recordingStep{name: "x", trace: &trace}).
		WithStep(&recordingStep{name: "x", trace: &trace}).
		Build()
	if !errors.Is(err, ErrDuplicateStep) {
		t.Errorf("expected registry ErrDuplicateStep, got %v", err)
	}
}

func TestRun_LLMOnlyStepsSkipped(t *testing.T) {
	var trace []string
	reg := newTestRegistry(t, steps(&trace, "block", "at", "split")...)
	p, err := Build(config.PipelineConfig{
		LockOrder: true,
		Steps:     []string{"block", "at", "split"},
		LLMSteps:  []string{"at"},
	}, reg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	p.Run(context.Background(), newRun())
	if !slices.Equal(trace, []string{"block", "split"}) {
		t.Errorf("non-llm run: expected [block split], got %v", trace)
	}

	trace = trace[:0]
	pc := newRun()
	pc.IsLLM = true
	p.Run(context.Background(), pc)
	if !slices.Equal(trace, []string{"block", "at", "split"}) {
		t.Errorf("llm run: expected all steps, got %v", trace)
	}
}

func TestRun_AbortStopsRun(t *testing.T) {
	var trace []string
	ss := steps(&trace, "block", "at", "split")
	ss[1].result = Abort("stop here")
	reg := newTestRegistry(t, ss...)
	p, err := Build(config.PipelineConfig{LockOrder: true, Steps: []string{"block", "at", "split"}}, reg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if p.Run(context.Background(), newRun()) {
		t.Fatal("expected run to report abort")
	}
	if !slices.Equal(trace, []string{"block", "at"}) {
		t.Errorf("expected split to be skipped, got %v", trace)
	}
}

func TestRun_PanicIsRecovered(t *testing.T) {
	var trace []string
	ss := steps(&trace, "block", "at")
	ss[0].panics = true
	reg := newTestRegistry(t, ss...)
	p, err := Build(config.PipelineConfig{Steps: []string{"block", "at"}}, reg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if !p.Run(context.Background(), newRun()) {
		t.Fatal("expected panic to be treated as continue")
	}
	if !slices.Equal(trace, []string{"block", "at"}) {
		t.Errorf("expected both steps to run, got %v", trace)
	}
}

func TestRun_NilMessageBecomesEmpty(t *testing.T) {
	var trace []string
	reg := newTestRegistry(t, steps(&trace, "block")...)
	p, _ := Build(config.PipelineConfig{Steps: []string{"block"}}, reg)

	pc := &Context{}
	p.Run(context.Background(), pc)
	if pc.Message == nil || !pc.Message.IsEmpty() {
		t.Errorf("expected an empty message, got %#v", pc.Message)
	}
}

func TestLifecycleHooks(t *testing.T) {
	var trace, life []string
	ss := steps(&trace, "block", "at", "split")
	for _, s := range ss {
		s.lifecycle = &life
	}
	ss[0].termErr = errors.New("t0")
	ss[2].termErr = errors.New("t2")
	reg := newTestRegistry(t, ss...)
	p, _ := Build(config.PipelineConfig{LockOrder: true, Steps: []string{"block", "at", "split"}}, reg)

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	err := p.Terminate(context.Background())
	if err == nil || !errors.Is(err, ss[0].termErr) || !errors.Is(err, ss[2].termErr) {
		t.Errorf("expected both terminate errors joined, got %v", err)
	}
	want := []string{"init:block", "init:at", "init:split", "term:block", "term:at", "term:split"}
	if !slices.Equal(life, want) {
		t.Errorf("expected %v, got %v", want, life)
	}
}

func TestInitialize_FirstErrorIsFatal(t *testing.T) {
	var trace, life []string
	ss := steps(&trace, "block", "at")
	for _, s := range ss {
		s.lifecycle = &life
	}
	ss[0].initErr = errors.New("no cache dir")
	reg := newTestRegistry(t, ss...)
	p, _ := Build(config.PipelineConfig{Steps: []string{"block", "at"}}, reg)

	if err := p.Initialize(context.Background()); !errors.Is(err, ss[0].initErr) {
		t.Fatalf("expected init error, got %v", err)
	}
	if slices.Contains(life, "init:at") {
		t.Errorf("expected later steps not to initialize, got %v", life)
	}
}
