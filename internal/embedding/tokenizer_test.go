package embedding

import (
	"testing"
)

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, types := tok.Tokenize("Hello world", 10)
	if len(ids) != 10 || len(attn) != 10 || len(types) != 10 {
		t.Fatalf("lengths = %d/%d/%d, want 10", len(ids), len(attn), len(types))
	}
	if ids[0] != tokenCLS {
		t.Errorf("expected CLS %d, got %d", tokenCLS, ids[0])
	}
	if ids[3] != tokenSEP {
		t.Errorf("expected SEP at 3, got %d", ids[3])
	}
	for i := 0; i < 4; i++ {
		if attn[i] != 1 {
			t.Errorf("attention[%d] should be 1", i)
		}
	}
	if attn[4] != 0 {
		t.Error("padding should be masked")
	}

	lower, _, _ := tok.Tokenize("hello WORLD", 10)
	if lower[1] != ids[1] || lower[2] != ids[2] {
		t.Error("tokenization should be case-insensitive")
	}
}

func TestSimpleTokenizer_Truncates(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, _ := tok.Tokenize("a b c d e f g h i j k l", 6)
	if len(ids) != 6 {
		t.Fatalf("len(ids)=%d", len(ids))
	}
	if ids[5] != tokenSEP {
		t.Errorf("last token = %d, want SEP", ids[5])
	}
	for i, a := range attn {
		if a != 1 {
			t.Errorf("attention[%d] = %d, want 1", i, a)
		}
	}
}

func TestHashString(t *testing.T) {
	if HashString("abc") != HashString("abc") {
		t.Error("hash should be deterministic")
	}
	if HashString("abc") == HashString("abd") {
		t.Error("different strings should hash differently")
	}
	if HashString("anything at all") < 0 {
		t.Error("hash should be non-negative")
	}
}
