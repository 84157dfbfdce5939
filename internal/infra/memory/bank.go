package memory

import (
	"context"
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"mcq-chat-service/internal/domain"
)

// BankLoader fetches the question bank from a backing store (file, Postgres).
type BankLoader interface {
	LoadBank(ctx context.Context) (domain.QuestionBank, error)
}

// BankRepository loads the bank once and serves it for the process lifetime.
// Concurrent first callers share a single load.
type BankRepository struct {
	loader BankLoader
	sf     singleflight.Group

	mu     sync.RWMutex
	bank   domain.QuestionBank
	loaded bool
}

func NewBankRepository(loader BankLoader) *BankRepository {
	return &BankRepository{loader: loader}
}

func (r *BankRepository) GetBank(ctx context.Context) (domain.QuestionBank, error) {
	r.mu.RLock()
	if r.loaded {
		defer r.mu.RUnlock()
		return r.bank, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do("bank", func() (interface{}, error) {
		r.mu.RLock()
		if r.loaded {
			defer r.mu.RUnlock()
			return r.bank, nil
		}
		r.mu.RUnlock()

		bank, err := r.loader.LoadBank(ctx)
		if err != nil {
			return domain.QuestionBank{}, err
		}
		r.mu.Lock()
		r.bank, r.loaded = bank, true
		r.mu.Unlock()
		return bank, nil
	})
	if err != nil {
		return domain.QuestionBank{}, err
	}
	return result.(domain.QuestionBank), nil
}

// StaticBankLoader is a simple loader backed by a slice (useful for tests/demos).
type StaticBankLoader struct {
	questions []domain.Question
}

func NewStaticBankLoader(questions []domain.Question) *StaticBankLoader {
	return &StaticBankLoader{questions: questions}
}

func (l *StaticBankLoader) LoadBank(_ context.Context) (domain.QuestionBank, error) {
	return domain.NewQuestionBank(l.questions)
}

// FileBankLoader reads a YAML list of questions.
type FileBankLoader struct {
	path string
}

func NewFileBankLoader(path string) *FileBankLoader {
	return &FileBankLoader{path: path}
}

type bankFile struct {
	Questions []domain.Question `yaml:"questions"`
}

func (l *FileBankLoader) LoadBank(_ context.Context) (domain.QuestionBank, error) {
	questions, err := ReadBankFile(l.path)
	if err != nil {
		return domain.QuestionBank{}, err
	}
	bank, err := domain.NewQuestionBank(questions)
	if err != nil {
		return domain.QuestionBank{}, errors.Wrapf(err, "bank file %s", l.path)
	}
	return bank, nil
}

// ReadBankFile parses the questions of a YAML bank file without validating them.
func ReadBankFile(path string) ([]domain.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read bank file")
	}
	var file bankFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(err, "parse bank file %s", path)
	}
	return file.Questions, nil
}

// DefaultQuestions is the built-in bank used when no source is configured.
func DefaultQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:     "q1",
			Prompt: "What problem is identified in the brief?",
			Options: []string{
				"AI tools lack a structured, persistent learning flow.",
				"AI models cannot read PDFs.",
				"Online courses are too long.",
				"PDF uploads are insecure.",
			},
			CorrectOptionIndex: 0,
			Hint:               "Focus on the need for structure over raw capabilities.",
			Explanation:        "The brief cites a missing structured, persistent pedagogy as the core issue.",
		},
		{
			ID:                 "q2",
			Prompt:             "What is the capital of France?",
			Options:            []string{"London", "Paris", "Berlin", "Madrid"},
			CorrectOptionIndex: 1,
			Hint:               "It's known as the City of Light",
			Explanation:        "Paris is the capital and largest city of France.",
		},
		{
			ID:                 "q3",
			Prompt:             "What is 2 + 2?",
			Options:            []string{"3", "5", "4"},
			CorrectOptionIndex: 2,
			Hint:               "Count on your fingers.",
			Explanation:        "Two pairs make four.",
		},
	}
}
