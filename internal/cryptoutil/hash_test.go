package cryptoutil

import "testing"

func TestSHA256Hex(t *testing.T) {
	got := SHA256Hex([]byte(""))
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got != want {
		t.Errorf("SHA256Hex(\"\") = %s, want %s", got, want)
	}
	if SHA256Hex([]byte("a")) == SHA256Hex([]byte("b")) {
		t.Error("distinct inputs hashed identically")
	}
}

func TestXXH64Hex(t *testing.T) {
	got := XXH64Hex([]byte("hello"))
	if len(got) != 16 {
		t.Errorf("XXH64Hex = %q, want 16 hex chars", got)
	}
	if !IsHex(got) {
		t.Errorf("XXH64Hex produced non-hex %q", got)
	}
	if XXH64Hex(nil) != XXH64Hex([]byte{}) {
		t.Error("nil and empty slice hashed differently")
	}
}

func TestIsHex(t *testing.T) {
	for _, s := range []string{"0", "deadbeef", "DEADBEEF", "0123456789abcdefABCDEF"} {
		if !IsHex(s) {
			t.Errorf("IsHex(%q) = false", s)
		}
	}
	for _, s := range []string{"", "xyz", "dead beef", "0x1f", "g1"} {
		if IsHex(s) {
			t.Errorf("IsHex(%q) = true", s)
		}
	}
}

func TestHashEqual(t *testing.T) {
	if !HashEqual("abc123", "abc123") {
		t.Error("equal hashes compared unequal")
	}
	if HashEqual("abc123", "abc124") || HashEqual("abc", "abc1") {
		t.Error("unequal hashes compared equal")
	}
}
