package linker

import "testing"

func TestIsDynamicLinker(t *testing.T) {
	cases := map[string]bool{
		"ld-linux-x86-64.so":   true,
		"ld-linux-x86-64.so.2": false,
		"ld-2.31.so":           true,
		"libc-2.31.so":         false,
		"ld.so":                false,
	}
	for name, want := range cases {
		if got := IsDynamicLinker(name); got != want {
			t.Errorf("IsDynamicLinker(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestIsLibc(t *testing.T) {
	cases := map[string]bool{
		"libc-2.31.so":  true,
		"libc.so.6":     false,
		"libcrypt-1.so": false,
	}
	for name, want := range cases {
		if got := IsLibc(name); got != want {
			t.Errorf("IsLibc(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestIsLibcSublib(t *testing.T) {
	cases := map[string]bool{
		"libc-2.31.so":       true,
		"libm-2.31.so":       true,
		"librt-2.31.so":      true,
		"libpthread-2.31.so": true,
		"libfoo-2.31.so":     false,
	}
	for name, want := range cases {
		if got := IsLibcSublib(name); got != want {
			t.Errorf("IsLibcSublib(%q) = %v, want %v", name, got, want)
		}
	}
}
