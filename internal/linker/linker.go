// Package linker classifies object filenames belonging to the C runtime
// and dynamic linker itself, which the Resolver treats specially (their
// interposition is expected and benign rather than reported).
package linker

import (
	"regexp"
	"strings"
)

var (
	dynamicLinkerRE = regexp.MustCompile(`^ld-.*\.so$`)
	libcSublibRE    = regexp.MustCompile(`^lib(c|m|rt|pthread)-`)
)

// IsDynamicLinker reports whether name is the dynamic linker itself: a
// name starting with "ld-" and ending in ".so" (ld-2.31.so,
// ld-linux-x86-64.so). Names with a suffix after ".so", such as
// ld-linux-x86-64.so.2, do not match.
func IsDynamicLinker(name string) bool {
	return dynamicLinkerRE.MatchString(name)
}

// IsLibc reports whether name is the main C library object.
func IsLibc(name string) bool {
	return strings.HasPrefix(name, "libc-")
}

// IsLibcSublib reports whether name belongs to the C library itself or
// one of its closely-coupled sibling libraries (libc, libm, librt,
// libpthread, each followed by "-"), which historically re-export or
// alias libc symbols.
func IsLibcSublib(name string) bool {
	return libcSublibRE.MatchString(name)
}
