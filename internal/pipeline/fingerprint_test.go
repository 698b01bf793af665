package pipeline

import "testing"

func TestFingerprintDistinguishesInputs(t *testing.T) {
	base := Fingerprint([]byte("MSH|..."), "v1", "org-a")

	if Fingerprint([]byte("MSH|..."), "v1", "org-a") != base {
		t.Error("same inputs should yield the same fingerprint")
	}
	if Fingerprint([]byte("MSH|,,,"), "v1", "org-a") == base {
		t.Error("payload change should yield a new fingerprint")
	}
	if Fingerprint([]byte("MSH|..."), "v2", "org-a") == base {
		t.Error("rule version change should yield a new fingerprint")
	}
	if Fingerprint([]byte("MSH|..."), "v1", "org-b") == base {
		t.Error("organization change should yield a new fingerprint")
	}
}

func TestFingerprintFieldBoundaries(t *testing.T) {
	// Concatenation without separators would make these collide.
	a := Fingerprint([]byte("ab"), "c", "d")
	b := Fingerprint([]byte("a"), "bc", "d")
	if a == b {
		t.Error("field boundaries should be part of the hash")
	}
}
