package commands

import "testing"

func TestDetectStripsRecognizedPrefix(t *testing.T) {
	p := NewParser()
	stripped, ok := p.Detect("/reset now")
	if !ok || stripped != "reset now" {
		t.Fatalf("expected detection with stripped text, got %q ok=%v", stripped, ok)
	}
}

func TestDetectIgnoresBarePrefix(t *testing.T) {
	p := NewParser()
	if _, ok := p.Detect("/"); ok {
		t.Fatalf("expected a bare prefix to not be detected as a command")
	}
	if _, ok := p.Detect("hello world"); ok {
		t.Fatalf("expected plain text to not be detected as a command")
	}
}

func TestDetectRejectsSpaceBetweenPrefixAndName(t *testing.T) {
	p := NewParser("!")
	if _, ok := p.Detect("!cmd a b"); !ok {
		t.Fatalf("expected the prefix directly followed by a name to route")
	}
	if _, ok := p.Detect("! cmd a b"); ok {
		t.Fatalf("expected a space between prefix and name to fail routing")
	}
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("session switch abc-123")
	if len(tokens) != 3 || tokens[0] != "session" || tokens[2] != "abc-123" {
		t.Fatalf("unexpected tokens: %v", tokens)
	}
}
