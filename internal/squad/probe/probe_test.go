package probe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/squad-bridge/internal/common/logger"
	"github.com/kandev/squad-bridge/internal/events"
	"github.com/kandev/squad-bridge/internal/events/bus"
	"github.com/kandev/squad-bridge/internal/squad/runner"
	"github.com/kandev/squad-bridge/internal/squad/squadtest"
)

func allTools(string) (string, error) { return "/usr/bin/tool", nil }

type failRunner struct{ t *testing.T }

func (f failRunner) Run(context.Context, runner.Spec) (*runner.Result, error) {
	f.t.Fatal("runner must not be invoked")
	return nil, nil
}

func newProber(fake *squadtest.Fake, opts ...Option) *Prober {
	opts = append([]Option{WithLookPath(allTools)}, opts...)
	return New(squadtest.Locator(fake.Path), runner.NewExecRunner(logger.Nop()), logger.Nop(), opts...)
}

func TestCheckInstalled(t *testing.T) {
	fake := squadtest.New(t, map[string]squadtest.Response{
		"--version": {Stdout: "claude-squad version 1.0.8\n"},
	})

	report := newProber(fake).Check(context.Background())
	assert.True(t, report.Installed)
	assert.Equal(t, fake.Path, report.CommandPath)
	assert.Equal(t, "claude-squad version 1.0.8", report.Version)
	assert.True(t, report.Tmux)
	assert.True(t, report.Git)
	assert.True(t, report.GH)
	assert.Empty(t, report.Errors)
	assert.False(t, report.Cached)
}

func TestCheckProbesVersionOnce(t *testing.T) {
	fake := squadtest.New(t, map[string]squadtest.Response{
		"--version": {Stdout: "1.0.8"},
	})
	p := newProber(fake)

	first := p.Check(context.Background())
	second := p.Check(context.Background())

	assert.Equal(t, 1, fake.CountCalls(t, "--version"))
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Version, second.Version)

	p.Invalidate()
	third := p.Check(context.Background())
	assert.False(t, third.Cached)
	assert.Equal(t, 2, fake.CountCalls(t, "--version"))
}

func TestCheckAbandonedCallerDoesNotPoisonCache(t *testing.T) {
	fake := squadtest.New(t, map[string]squadtest.Response{
		"--version": {Stdout: "1.0.8", Script: "    sleep 0.3"},
	})
	p := newProber(fake)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	first := p.Check(ctx)
	assert.False(t, first.Installed)
	assert.False(t, first.Cached)
	require.Len(t, first.Errors, 1)
	assert.Contains(t, first.Errors[0], context.DeadlineExceeded.Error())

	second := p.Check(context.Background())
	assert.True(t, second.Installed)
	assert.Equal(t, "1.0.8", second.Version)
	assert.Empty(t, second.Errors)
	assert.Equal(t, 1, fake.CountCalls(t, "--version"))

	third := p.Check(context.Background())
	assert.True(t, third.Cached)
	assert.True(t, third.Installed)
}

func TestCheckConcurrentCallersShareProbe(t *testing.T) {
	fake := squadtest.New(t, map[string]squadtest.Response{
		"--version": {Stdout: "1.0.8", Script: "    sleep 0.2"},
	})
	p := newProber(fake)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, p.Check(context.Background()).Installed)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, fake.CountCalls(t, "--version"))
}

func TestCheckWithoutCommand(t *testing.T) {
	p := New(squadtest.Locator(""), failRunner{t}, logger.Nop(), WithLookPath(allTools))

	report := p.Check(context.Background())
	assert.False(t, report.Installed)
	assert.Empty(t, report.CommandPath)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "not found")
}

func TestCheckVersionFailure(t *testing.T) {
	fake := squadtest.New(t, map[string]squadtest.Response{
		"--version": {Stderr: "tmux server missing", Exit: 2},
	})

	report := newProber(fake).Check(context.Background())
	assert.False(t, report.Installed)
	require.NotEmpty(t, report.Errors)
	assert.Contains(t, report.Errors[0], "tmux server missing")
}

func TestCheckMissingAuxiliaryTools(t *testing.T) {
	fake := squadtest.New(t, map[string]squadtest.Response{
		"--version": {Stdout: "1.0.8"},
	})
	onlyGit := func(name string) (string, error) {
		if name == "git" {
			return "/usr/bin/git", nil
		}
		return "", errors.New("not found")
	}

	report := newProber(fake, WithLookPath(onlyGit)).Check(context.Background())
	assert.True(t, report.Installed)
	assert.False(t, report.Tmux)
	assert.True(t, report.Git)
	assert.False(t, report.GH)
	assert.Equal(t, []string{"tmux not found on PATH", "gh not found on PATH"}, report.Errors)
}

func TestCheckPublishesEvent(t *testing.T) {
	fake := squadtest.New(t, map[string]squadtest.Response{
		"--version": {Stdout: "1.0.8"},
	})
	b := bus.NewMemoryEventBus(logger.Nop())
	defer b.Close()
	got := make(chan *bus.Event, 2)
	_, err := b.Subscribe(events.InstallationChecked, func(_ context.Context, e *bus.Event) error {
		got <- e
		return nil
	})
	require.NoError(t, err)

	p := newProber(fake, WithPublisher(events.NewPublisher(b, "probe", logger.Nop())))
	p.Check(context.Background())
	p.Check(context.Background())

	select {
	case e := <-got:
		assert.Equal(t, true, e.Data["installed"])
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	select {
	case <-got:
		t.Fatal("cached check must not publish")
	case <-time.After(50 * time.Millisecond):
	}
}
