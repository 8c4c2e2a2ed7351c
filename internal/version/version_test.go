package version_test

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ludo-technologies/irflow/internal/version"
)

func TestShort(t *testing.T) {
	assert.NotEmpty(t, version.Short())
}

func TestInfo(t *testing.T) {
	info := version.Info()

	assert.True(t, strings.HasPrefix(info, "irflow "))
	assert.Contains(t, info, runtime.Version())
	assert.Contains(t, info, runtime.GOOS+"/"+runtime.GOARCH)
	for _, field := range []string{"Commit:", "Built:", "Go:", "OS/Arch:"} {
		assert.Contains(t, info, field)
	}
}

func TestGet_LdflagsWin(t *testing.T) {
	saved := version.Version
	t.Cleanup(func() { version.Version = saved })

	version.Version = "v1.2.3"
	bi := version.Get()
	assert.Equal(t, "v1.2.3", bi.Version)
	assert.Equal(t, "v1.2.3", version.Short())
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, bi.Platform)
}
