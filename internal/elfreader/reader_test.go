package elfreader

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// findExecutable returns the first candidate path that exists, or skips
// the test — these are real system binaries/libraries, not fixtures we
// control, so their exact presence/layout varies by distro.
func findExecutable(t *testing.T, candidates ...string) string {
	t.Helper()
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	t.Skipf("none of %v found on this system", candidates)
	return ""
}

func TestRead_Executable(t *testing.T) {
	path := findExecutable(t, "/bin/ls", "/usr/bin/ls")

	var warnings []string
	obj, err := Read(path, func(format string, args ...any) {
		warnings = append(warnings, format)
	})
	require.NoError(t, err)

	assert.False(t, obj.IsShlib, "a dynamically-linked executable is not a shlib")
	assert.Nil(t, obj.SoName, "executables don't carry a SONAME")
	assert.NotEmpty(t, obj.DepNames, "ls links against at least libc")
	assert.NotEmpty(t, obj.Imports, "ls imports symbols from libc")
}

func TestRead_SharedLibrary(t *testing.T) {
	path := findExecutable(t,
		"/lib/x86_64-linux-gnu/libc.so.6",
		"/usr/lib/x86_64-linux-gnu/libc.so.6",
		"/lib64/libc.so.6",
	)

	obj, err := Read(path, func(string, ...any) {})
	require.NoError(t, err)

	assert.True(t, obj.IsShlib)
	require.NotNil(t, obj.SoName)
	assert.Contains(t, *obj.SoName, "libc")
	assert.NotEmpty(t, obj.Exports, "libc exports a large symbol set")
}

func TestRead_NonexistentPath(t *testing.T) {
	_, err := Read("/no/such/file", func(string, ...any) {})
	assert.Error(t, err)
}

func TestRead_NotAnELFFile(t *testing.T) {
	tmp := t.TempDir() + "/not-elf.txt"
	require.NoError(t, os.WriteFile(tmp, []byte("hello world"), 0o644))

	_, err := Read(tmp, func(string, ...any) {})
	assert.Error(t, err)
}

func TestIsShlib_ExecutableHasInterp(t *testing.T) {
	path := findExecutable(t, "/bin/ls", "/usr/bin/ls")
	obj, err := Read(path, func(string, ...any) {})
	require.NoError(t, err)
	assert.False(t, obj.IsShlib)
}

func TestReadSymbols_DedupesByNameWithinDirection(t *testing.T) {
	path := findExecutable(t,
		"/lib/x86_64-linux-gnu/libc.so.6",
		"/usr/lib/x86_64-linux-gnu/libc.so.6",
		"/lib64/libc.so.6",
	)
	obj, err := Read(path, func(string, ...any) {})
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, s := range obj.Exports {
		assert.False(t, seen[s.Name], "export %q should appear at most once", s.Name)
		seen[s.Name] = true
	}
}

func TestRead_ObjectNameIsBasename(t *testing.T) {
	path := findExecutable(t, "/bin/ls", "/usr/bin/ls")
	obj, err := Read(path, func(string, ...any) {})
	require.NoError(t, err)
	assert.Equal(t, "ls", obj.Name)
}
