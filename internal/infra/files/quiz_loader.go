package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"live-quiz-service/internal/domain"
)

// QuizLoader reads quizzes from a directory of .json, .yaml and .yml files.
// The quiz id is the file name without its extension.
type QuizLoader struct {
	dir string
}

func NewQuizLoader(dir string) *QuizLoader {
	return &QuizLoader{dir: dir}
}

// quizFile is the on-disk layout. Media keys use kebab-case in both formats.
type quizFile struct {
	Subject   string         `json:"subject" yaml:"subject"`
	Questions []questionFile `json:"questions" yaml:"questions"`
}

type questionFile struct {
	Question    string   `json:"question" yaml:"question"`
	Answers     []string `json:"answers" yaml:"answers"`
	Image       string   `json:"image" yaml:"image"`
	Video       string   `json:"video" yaml:"video"`
	Audio       string   `json:"audio" yaml:"audio"`
	AnswerImage string   `json:"answer-image" yaml:"answer-image"`
	Solution    int      `json:"solution" yaml:"solution"`
	Cooldown    int      `json:"cooldown" yaml:"cooldown"`
	Time        int      `json:"time" yaml:"time"`
}

var extensions = []string{".json", ".yaml", ".yml"}

func (l *QuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	if quizID == "" || strings.ContainsAny(quizID, `/\`) || strings.HasPrefix(quizID, ".") {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	for _, ext := range extensions {
		path := filepath.Join(l.dir, quizID+ext)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return readQuiz(path, quizID)
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

// ListQuizzes returns every quiz in the directory that parses and validates.
// Broken files are logged and skipped.
func (l *QuizLoader) ListQuizzes(_ context.Context) ([]domain.QuizSummary, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read quiz dir: %w", err)
	}
	out := []domain.QuizSummary{}
	seen := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if !supported(ext) {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ext)
		if seen[id] {
			continue
		}
		quiz, err := readQuiz(filepath.Join(l.dir, entry.Name()), id)
		if err != nil {
			log.Warn().Err(err).Str("file", entry.Name()).Msg("skipping quiz file")
			continue
		}
		seen[id] = true
		out = append(out, quiz.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func readQuiz(path, id string) (domain.Quiz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("read quiz %s: %w", id, err)
	}
	var file quizFile
	if filepath.Ext(path) == ".json" {
		err = json.Unmarshal(data, &file)
	} else {
		err = yaml.Unmarshal(data, &file)
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("parse quiz %s: %w", id, err)
	}
	quiz := file.toDomain(id)
	if err := quiz.Validate(); err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

func (f quizFile) toDomain(id string) domain.Quiz {
	quiz := domain.Quiz{ID: id, Subject: f.Subject, Questions: make([]domain.Question, len(f.Questions))}
	for i, q := range f.Questions {
		quiz.Questions[i] = domain.Question{
			Text:        q.Question,
			Answers:     q.Answers,
			Image:       q.Image,
			Video:       q.Video,
			Audio:       q.Audio,
			AnswerImage: q.AnswerImage,
			Solution:    q.Solution,
			Cooldown:    q.Cooldown,
			Time:        q.Time,
		}
	}
	return quiz
}

func supported(ext string) bool {
	for _, e := range extensions {
		if e == ext {
			return true
		}
	}
	return false
}
