package analyze

import "testing"

func TestDefaultTokenizerLowercasesAndSplits(t *testing.T) {
	tokens := DefaultTokenizer("Zen and the Art, of Motorcycle!", "title")
	want := []string{"zen", "and", "the", "art", "of", "motorcycle"}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d: %+v", len(tokens), len(want), tokens)
	}
	for i, tok := range tokens {
		if tok.Term != want[i] {
			t.Fatalf("token %d = %q, want %q", i, tok.Term, want[i])
		}
		if tok.Position != i {
			t.Fatalf("token %d position = %d, want %d", i, tok.Position, i)
		}
	}
}

func TestDefaultProcessorDropsStopWordsAndShortTokens(t *testing.T) {
	for _, tok := range []string{"a", "of", "is", "x"} {
		if got := DefaultProcessor(tok, ""); got != nil {
			t.Errorf("DefaultProcessor(%q) = %v, want nil", tok, got)
		}
	}
}

func TestDefaultProcessorStems(t *testing.T) {
	cases := map[string]string{
		"motorcycle": "motorcycle",
		"running":    "runn",
		"ponies":     "pony",
		"happiness":  "happy",
	}
	for in, want := range cases {
		got := DefaultProcessor(in, "")
		if len(got) != 1 || got[0] != want {
			t.Errorf("DefaultProcessor(%q) = %v, want [%q]", in, got, want)
		}
	}
}
