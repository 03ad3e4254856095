package words

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEmbedded(t *testing.T) {
	five, err := Load(Config{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if five.Length() != DefaultLength {
		t.Errorf("Length() = %d, want %d", five.Length(), DefaultLength)
	}
	if !five.IsAnswer("crane") || !five.IsAllowed("CRUST") {
		t.Error("expected CRANE as answer and CRUST as allowed guess")
	}
	if five.IsAnswer("CRUST") {
		t.Error("allowed-only word reported as answer")
	}
	if five.IsAllowed("PICKLE") {
		t.Error("six-letter word allowed on a five-letter list")
	}
	for _, w := range five.Answers() {
		if len(w) != 5 {
			t.Errorf("answer %q has length %d", w, len(w))
		}
	}

	six, err := Load(Config{Length: 6})
	if err != nil {
		t.Fatalf("Load(6): %v", err)
	}
	if !six.IsAnswer("PICKLE") {
		t.Error("PICKLE missing from six-letter answers")
	}
	a, g := six.Stats()
	if a == 0 || g < a {
		t.Errorf("Stats() = (%d, %d)", a, g)
	}
	if w := six.RandomAnswer(); !six.IsAnswer(w) {
		t.Errorf("RandomAnswer() = %q, not an answer", w)
	}
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	answers := filepath.Join(dir, "answers.txt")
	allowed := filepath.Join(dir, "allowed.txt")
	if err := os.WriteFile(answers, []byte("# list\nhello\nworld\nhello\nab1cd\ntoolong\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(allowed, []byte("fancy\n\nquite\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	l, err := Load(Config{AnswersFile: answers, AllowedFile: allowed})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if a, g := l.Stats(); a != 2 || g != 4 {
		t.Errorf("Stats() = (%d, %d), want (2, 4)", a, g)
	}

	only, err := Load(Config{AllowedFile: allowed})
	if err != nil {
		t.Fatalf("Load(allowed only): %v", err)
	}
	if !only.IsAnswer("FANCY") {
		t.Error("allowed-only config should use allowed list as answers")
	}

	if _, err := Load(Config{Length: 9, AllowedFile: allowed}); err == nil {
		t.Error("Load with no matching lengths succeeded")
	}
	if _, err := Load(Config{AllowedFile: filepath.Join(dir, "missing.txt")}); err == nil {
		t.Error("Load with missing file succeeded")
	}
}
