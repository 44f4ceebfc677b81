package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Flags(t *testing.T) {
	var got options
	root := newRootCmd(func(_ context.Context, o options) error {
		got = o
		return nil
	})
	root.SetArgs([]string{"--article", "a9", "--user", "u3", "--pace", "10ms", "--visits", "0"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	assert.Equal(t, "a9", got.articleID)
	assert.Equal(t, "u3", got.userID)
	assert.Equal(t, 10*time.Millisecond, got.pace)
	assert.Equal(t, 1, got.visits)
}

func TestRootCmd_Rejects(t *testing.T) {
	root := newRootCmd(func(context.Context, options) error { return nil })
	root.SetArgs([]string{"--visits", "many"})
	assert.Error(t, root.ExecuteContext(context.Background()))

	root = newRootCmd(func(context.Context, options) error { return nil })
	root.SetArgs([]string{"extra"})
	assert.Error(t, root.ExecuteContext(context.Background()))
}

func TestLoadSteps(t *testing.T) {
	steps, err := loadSteps(options{pace: time.Millisecond})
	require.NoError(t, err)
	assert.NotEmpty(t, steps)

	path := filepath.Join(t.TempDir(), "visit.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"kind":"click","target_id":"x"}]`), 0o600))
	steps, err = loadSteps(options{scriptPath: path})
	require.NoError(t, err)
	assert.Len(t, steps, 1)

	_, err = loadSteps(options{scriptPath: filepath.Join(t.TempDir(), "missing.json")})
	assert.Error(t, err)
}
