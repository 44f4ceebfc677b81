package main

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeApp struct {
	startErr error
	stopErr  error
	stopped  bool
}

func (f *fakeApp) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeApp) Stop(context.Context) error {
	f.stopped = true
	return f.stopErr
}

func (f *fakeApp) ShutdownWait() time.Duration { return time.Second }

func builderFor(app *fakeApp, cleaned *bool) builder {
	return func() (runner, func(), error) {
		return app, func() { *cleaned = true }, nil
	}
}

func TestRun(t *testing.T) {
	t.Run("bootstrap_error", func(t *testing.T) {
		build := func() (runner, func(), error) { return nil, nil, errors.New("no db") }
		assert.Equal(t, 1, Run(build, make(chan os.Signal), zerolog.Nop()))
	})

	t.Run("signal_graceful_stop", func(t *testing.T) {
		app := &fakeApp{}
		cleaned := false
		sig := make(chan os.Signal, 1)
		sig <- syscall.SIGTERM

		assert.Equal(t, 0, Run(builderFor(app, &cleaned), sig, zerolog.Nop()))
		assert.True(t, app.stopped)
		assert.True(t, cleaned)
	})

	t.Run("crash", func(t *testing.T) {
		app := &fakeApp{startErr: errors.New("listen: address in use")}
		cleaned := false
		assert.Equal(t, 1, Run(builderFor(app, &cleaned), make(chan os.Signal), zerolog.Nop()))
		assert.False(t, app.stopped)
		assert.True(t, cleaned)
	})

	t.Run("stop_error", func(t *testing.T) {
		app := &fakeApp{stopErr: errors.New("timeout")}
		cleaned := false
		sig := make(chan os.Signal, 1)
		sig <- os.Interrupt
		assert.Equal(t, 1, Run(builderFor(app, &cleaned), sig, zerolog.Nop()))
	})
}
