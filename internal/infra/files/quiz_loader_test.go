package files

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"live-quiz-service/internal/domain"
)

const jsonQuiz = `{
	"subject": "Geography",
	"questions": [
		{
			"question": "Capital of France?",
			"answers": ["Lyon", "Paris", "Nice"],
			"image": "images/france.png",
			"answer-image": "images/paris.png",
			"solution": 1,
			"cooldown": 5,
			"time": 15
		}
	]
}`

const yamlQuiz = `subject: Music
questions:
  - question: Which is a string instrument?
    answers: [Drum, Violin]
    audio: sounds/violin.mp3
    solution: 1
    cooldown: 3
    time: 20
  - question: How many keys on a piano?
    answers: ["66", "88", "92", "100"]
    solution: 1
    cooldown: 3
    time: 20
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestQuizLoaderReadsJSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "geography.json", jsonQuiz)
	writeFile(t, dir, "music.yaml", yamlQuiz)
	writeFile(t, dir, "broken.json", `{"subject": "x", "questions": []}`)
	writeFile(t, dir, "notes.txt", "ignored")
	loader := NewQuizLoader(dir)
	ctx := context.Background()

	geo, err := loader.LoadQuiz(ctx, "geography")
	if err != nil {
		t.Fatalf("load json quiz: %v", err)
	}
	if geo.ID != "geography" || geo.Questions[0].AnswerImage != "images/paris.png" || geo.Questions[0].Solution != 1 {
		t.Fatalf("unexpected quiz %+v", geo)
	}

	music, err := loader.LoadQuiz(ctx, "music")
	if err != nil {
		t.Fatalf("load yaml quiz: %v", err)
	}
	if len(music.Questions) != 2 || music.Questions[0].Audio != "sounds/violin.mp3" {
		t.Fatalf("unexpected quiz %+v", music)
	}

	list, err := loader.ListQuizzes(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "geography" || list[1].Questions != 2 {
		t.Fatalf("unexpected listing %+v", list)
	}
}

func TestQuizLoaderRejectsUnknownAndInvalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.json", `{"subject": "x", "questions": []}`)
	loader := NewQuizLoader(dir)
	ctx := context.Background()

	for _, id := range []string{"missing", "../etc/passwd", ""} {
		if _, err := loader.LoadQuiz(ctx, id); err != domain.ErrQuizNotFound {
			t.Fatalf("expected not found for %q, got %v", id, err)
		}
	}
	if _, err := loader.LoadQuiz(ctx, "broken"); err == nil {
		t.Fatalf("expected validation error for an empty quiz")
	}
	if _, err := NewQuizLoader(filepath.Join(dir, "nope")).ListQuizzes(ctx); err == nil {
		t.Fatalf("expected error for a missing directory")
	}
}
