package config

import (
	"sync"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagTracker_Basic(t *testing.T) {
	ft := NewFlagTracker()
	assert.False(t, ft.WasSet("format"))

	ft.Set("format")
	assert.True(t, ft.WasSet("format"))
	assert.Equal(t, 1, ft.Count())
}

func TestFlagTracker_NilIsEmpty(t *testing.T) {
	var ft *FlagTracker
	assert.False(t, ft.WasSet("format"))
	assert.Equal(t, "file", ft.MergeString("file", "flag", "format"))
}

func TestFlagTracker_FromFlagSet(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("format", "text", "")
	fs.Int("workers", 0, "")
	fs.Bool("debug", false, "")
	require.NoError(t, fs.Parse([]string{"--format", "json", "--debug"}))

	ft := NewFlagTrackerFromFlagSet(fs)
	assert.True(t, ft.WasSet("format"))
	assert.True(t, ft.WasSet("debug"))
	assert.False(t, ft.WasSet("workers"), "defaults do not count as set")
	assert.Equal(t, 2, ft.Count())
}

func TestFlagTracker_Merge(t *testing.T) {
	ft := NewFlagTracker()
	ft.Set("format")
	ft.Set("workers")
	ft.Set("debug")
	ft.Set("analysis")

	assert.Equal(t, "json", ft.MergeString("text", "json", "format"))
	assert.Equal(t, "text", ft.MergeString("text", "json", "output"))
	assert.Equal(t, 8, ft.MergeInt(0, 8, "workers"))
	assert.Equal(t, 3, ft.MergeInt(3, 8, "timeout"))
	assert.True(t, ft.MergeBool(false, true, "debug"))
	assert.False(t, ft.MergeBool(false, true, "progress"))
	assert.Equal(t, []string{"live"}, ft.MergeStringSlice([]string{"all"}, []string{"live"}, "analysis"))
	assert.Equal(t, []string{"all"}, ft.MergeStringSlice([]string{"all"}, nil, "analysis"))
}

func TestFlagTracker_Concurrent(t *testing.T) {
	ft := NewFlagTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ft.Set("format")
		}()
		go func() {
			defer wg.Done()
			_ = ft.WasSet("format")
		}()
	}
	wg.Wait()
	assert.True(t, ft.WasSet("format"))
}
