package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const deadStoreProgram = `
name: dead_store
script:
  blocks:
    - label: entry
      instrs:
        - {op: copy, dst: x, src: 1}
        - {op: copy, dst: x, src: 2}
        - {op: return, value: x}
`

const breakProgram = `
name: top_break
script:
  blocks: [{instrs: [{op: break, value: 7}]}]
`

const threadReturnProgram = `
name: thread_return
script:
  blocks:
    - instrs:
        - {op: thread, dst: t, closure: body}
        - {op: call, dst: r, method: join, args: [t]}
        - {op: return, value: r}
  closures:
    - name: body
      blocks:
        - instrs:
            - {op: nonlocal_return, value: 1}
`

const spinProgram = `
name: spin
script:
  blocks:
    - label: loop
      instrs:
        - {op: jump, target: loop}
`

const helloProgram = `
name: hello
script:
  blocks:
    - instrs:
        - {op: call, method: puts, args: [":hello"]}
        - {op: add, dst: "%r", a: 40, b: 2}
        - {op: return, value: "%r"}
`

// writeFiles creates files under a temp dir and returns the dir
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}
