package report

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type recordingPresenter struct {
	mu     sync.Mutex
	events []string
	last   UsageReport
}

func (p *recordingPresenter) record(s string) {
	p.mu.Lock()
	p.events = append(p.events, s)
	p.mu.Unlock()
}

func (p *recordingPresenter) RenderUsageReport(r UsageReport) {
	p.mu.Lock()
	p.last = r
	p.mu.Unlock()
	p.record("report:" + r.ChildID)
}

func (p *recordingPresenter) RenderNoChildSelected() { p.record("no-child") }
func (p *recordingPresenter) RenderLoading(id string) { p.record("loading:" + id) }
func (p *recordingPresenter) RenderError(msg string)  { p.record("error:" + msg) }

func (p *recordingPresenter) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

// gatedBuilder blocks each child's build until released.
type gatedBuilder struct {
	mu     sync.Mutex
	gates  map[string]chan struct{}
	errs   map[string]error
	panics map[string]bool
}

func newGatedBuilder() *gatedBuilder {
	return &gatedBuilder{
		gates:  make(map[string]chan struct{}),
		errs:   make(map[string]error),
		panics: make(map[string]bool),
	}
}

func (b *gatedBuilder) gate(childID string) chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.gates[childID]
	if !ok {
		g = make(chan struct{})
		b.gates[childID] = g
	}
	return g
}

func (b *gatedBuilder) Build(ctx context.Context, childID string) (UsageReport, error) {
	<-b.gate(childID)

	b.mu.Lock()
	err, shouldPanic := b.errs[childID], b.panics[childID]
	b.mu.Unlock()

	if shouldPanic {
		panic("boom")
	}
	if err != nil {
		return UsageReport{}, err
	}
	// Ignore ctx cancellation so stale completions actually reach deliver
	return UsageReport{ChildID: childID}, nil
}

func TestController_EmptyChild(t *testing.T) {
	p := &recordingPresenter{}
	c := NewController(newGatedBuilder(), p, time.Second, zerolog.Nop())

	c.Trigger("")
	c.Wait()

	if got := p.Events(); len(got) != 1 || got[0] != "no-child" {
		t.Errorf("events = %v, want [no-child]", got)
	}
}

func TestController_RendersReport(t *testing.T) {
	p := &recordingPresenter{}
	b := newGatedBuilder()
	c := NewController(b, p, time.Second, zerolog.Nop())

	c.Trigger("child-1")
	close(b.gate("child-1"))
	c.Wait()

	want := []string{"loading:child-1", "report:child-1"}
	got := p.Events()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestController_StaleGenerationDiscarded(t *testing.T) {
	p := &recordingPresenter{}
	b := newGatedBuilder()
	c := NewController(b, p, time.Second, zerolog.Nop())

	c.Trigger("child-1")
	c.Trigger("child-2")

	// Newer generation finishes first, the older one afterwards
	close(b.gate("child-2"))
	waitFor(t, p, "report:child-2")
	close(b.gate("child-1"))
	c.Wait()

	for _, e := range p.Events() {
		if e == "report:child-1" {
			t.Fatalf("stale report reached presenter: %v", p.Events())
		}
	}
	if c.Current() != "child-2" {
		t.Errorf("Current() = %q, want child-2", c.Current())
	}
}

func TestController_StaleGenerationDiscardedWhenFinishingFirst(t *testing.T) {
	p := &recordingPresenter{}
	b := newGatedBuilder()
	c := NewController(b, p, time.Second, zerolog.Nop())

	c.Trigger("child-1")
	c.Trigger("child-2")

	close(b.gate("child-1"))
	close(b.gate("child-2"))
	c.Wait()

	events := p.Events()
	if last := events[len(events)-1]; last != "report:child-2" {
		t.Errorf("last event = %q, want report:child-2 (events %v)", last, events)
	}
	for _, e := range events {
		if e == "report:child-1" {
			t.Fatalf("stale report reached presenter: %v", events)
		}
	}
}

func TestController_ErrorAndPanicRenderError(t *testing.T) {
	tests := []struct {
		name  string
		setup func(b *gatedBuilder)
	}{
		{name: "build error", setup: func(b *gatedBuilder) { b.errs["child-1"] = errors.New("boom") }},
		{name: "build panic", setup: func(b *gatedBuilder) { b.panics["child-1"] = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &recordingPresenter{}
			b := newGatedBuilder()
			tt.setup(b)
			c := NewController(b, p, time.Second, zerolog.Nop())

			c.Trigger("child-1")
			close(b.gate("child-1"))
			c.Wait()

			events := p.Events()
			if last := events[len(events)-1]; last != "error:"+ErrorMessage {
				t.Errorf("last event = %q, want error:%s", last, ErrorMessage)
			}
		})
	}
}

func TestController_Refresh(t *testing.T) {
	p := &recordingPresenter{}
	b := newGatedBuilder()
	close(b.gate("child-1"))
	c := NewController(b, p, time.Second, zerolog.Nop())

	first := c.Trigger("child-1")
	c.Wait()
	second := c.Refresh()
	c.Wait()

	if second <= first {
		t.Errorf("Refresh generation %d not after %d", second, first)
	}
	reports := 0
	for _, e := range p.Events() {
		if e == "report:child-1" {
			reports++
		}
	}
	if reports != 2 {
		t.Errorf("got %d reports, want 2", reports)
	}
}

func TestController_RefreshIfOnlyRefreshesCurrentChild(t *testing.T) {
	p := &recordingPresenter{}
	b := newGatedBuilder()
	close(b.gate("child-a"))
	close(b.gate("child-b"))
	c := NewController(b, p, time.Second, zerolog.Nop())

	c.Trigger("child-a")
	latest := c.Trigger("child-b")
	c.Wait()

	gen, ok := c.RefreshIf("child-a")
	if ok || gen != latest {
		t.Errorf("RefreshIf(child-a) = (%d, %v), want (%d, false)", gen, ok, latest)
	}
	if got := c.Current(); got != "child-b" {
		t.Fatalf("Current() = %q, want child-b", got)
	}

	gen, ok = c.RefreshIf("child-b")
	c.Wait()
	if !ok || gen <= latest {
		t.Errorf("RefreshIf(child-b) = (%d, %v), want a new generation", gen, ok)
	}

	events := p.Events()
	if last := events[len(events)-1]; last != "report:child-b" {
		t.Errorf("last event = %q, want report:child-b", last)
	}
}

func TestController_RefreshKeepsLatestSelection(t *testing.T) {
	p := &recordingPresenter{}
	b := newGatedBuilder()
	close(b.gate("child-a"))
	close(b.gate("child-b"))
	c := NewController(b, p, time.Second, zerolog.Nop())

	c.Trigger("child-a")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Refresh()
		}()
		go func() {
			defer wg.Done()
			c.RefreshIf("child-a")
		}()
	}
	c.Trigger("child-b")
	wg.Wait()
	c.Wait()

	if got := c.Current(); got != "child-b" {
		t.Errorf("Current() = %q, want child-b", got)
	}
	events := p.Events()
	if last := events[len(events)-1]; last != "report:child-b" {
		t.Errorf("last event = %q, want report:child-b", last)
	}
}

type blockingBuilder struct{}

func (blockingBuilder) Build(ctx context.Context, childID string) (UsageReport, error) {
	<-ctx.Done()
	return UsageReport{}, ctx.Err()
}

func TestController_GenerationTimeout(t *testing.T) {
	p := &recordingPresenter{}
	c := NewController(blockingBuilder{}, p, 20*time.Millisecond, zerolog.Nop())

	c.Trigger("child-1")
	c.Wait()

	events := p.Events()
	if last := events[len(events)-1]; last != "error:"+ErrorMessage {
		t.Errorf("last event = %q, want error:%s", last, ErrorMessage)
	}
}

func TestController_Close(t *testing.T) {
	p := &recordingPresenter{}
	c := NewController(blockingBuilder{}, p, 0, zerolog.Nop())

	c.Trigger("child-1")

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	for _, e := range p.Events() {
		if e != "loading:child-1" {
			t.Errorf("unexpected event after Close: %q", e)
		}
	}
}

func waitFor(t *testing.T, p *recordingPresenter, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, e := range p.Events() {
			if e == want {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q, events %v", want, p.Events())
}
