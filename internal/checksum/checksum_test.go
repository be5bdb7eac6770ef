package checksum

import "testing"

func TestSum(t *testing.T) {
	const emptySHA = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Sum(nil); got != emptySHA {
		t.Errorf("Sum(nil) = %q", got)
	}
	if Sum([]byte("a")) == Sum([]byte("b")) {
		t.Error("distinct input produced equal sums")
	}
}

func TestETag(t *testing.T) {
	data := []byte("Subject: 2025-02-07: X\n\nbody\n")
	if got := ETag(data); got != `"`+Sum(data)+`"` {
		t.Errorf("ETag = %q", got)
	}
}
