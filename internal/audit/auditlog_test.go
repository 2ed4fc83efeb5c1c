package audit

import "testing"

func TestChainVerifies(t *testing.T) {
	l := New()
	l.Append("record.add id=%s", "a1")
	l.Append("record.delete id=%s", "a1")
	if err := l.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestChainDetectsTamper(t *testing.T) {
	l := New()
	l.Append("one")
	l.Append("two")
	l.entries[0].What = "1"
	if err := l.Verify(); err == nil {
		t.Fatal("expected broken chain")
	}
}
