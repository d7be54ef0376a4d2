package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"quiz-room-service/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"gopkg.in/yaml.v3"
)

// SeedQuestion is one entry of a seed file. Content and answers are free-form YAML
// and are stored as JSONB; maps must use string keys (quote numeric keys).
type SeedQuestion struct {
	ChapterID     int    `yaml:"chapter_id"`
	TopicTag      string `yaml:"topic_tag"`
	Level         string `yaml:"level"`
	Type          string `yaml:"type" validate:"required,oneof=MCQ Assertion_Reason Diagram_Based Match_Column Multi_Statement"`
	Content       any    `yaml:"content" validate:"required"`
	CorrectAnswer any    `yaml:"correct_answer" validate:"required"`
	Explanation   string `yaml:"explanation"`
}

type seedFile struct {
	Questions []SeedQuestion `yaml:"questions" validate:"dive"`
}

type questionRecord struct {
	bun.BaseModel `bun:"table:questions"`

	ID            string `bun:"id,pk,type:uuid,nullzero,default:gen_random_uuid()"`
	ChapterID     int    `bun:"chapter_id,nullzero"`
	TopicTag      string `bun:"topic_tag,nullzero"`
	Level         string `bun:"level,nullzero,default:'Foundation'"`
	Type          string `bun:"type,notnull"`
	Content       string `bun:"content,type:jsonb,notnull"`
	CorrectAnswer string `bun:"correct_answer,type:jsonb,notnull"`
	Explanation   string `bun:"explanation,nullzero"`
}

// LoadSeedFile reads and validates a YAML seed file.
func LoadSeedFile(path string) ([]SeedQuestion, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(raw)
}

// ParseSeed decodes and validates seed YAML.
func ParseSeed(raw []byte) ([]SeedQuestion, error) {
	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	if err := validator.New().Struct(file); err != nil {
		return nil, fmt.Errorf("invalid seed file: %w", err)
	}
	return file.Questions, nil
}

// Seeder bulk-inserts questions through bun.
type Seeder struct {
	db *bun.DB
}

func NewSeeder(db *bun.DB) *Seeder {
	return &Seeder{db: db}
}

// Seed inserts all questions in one statement and returns how many were written.
func (s *Seeder) Seed(ctx context.Context, questions []SeedQuestion) (int, error) {
	if len(questions) == 0 {
		return 0, nil
	}
	records, err := toRecords(questions)
	if err != nil {
		return 0, err
	}
	if _, err := s.db.NewInsert().Model(&records).Exec(ctx); err != nil {
		return 0, fmt.Errorf("insert questions: %w", err)
	}
	return len(records), nil
}

func toRecords(questions []SeedQuestion) ([]questionRecord, error) {
	records := make([]questionRecord, 0, len(questions))
	for i, q := range questions {
		content, err := json.Marshal(q.Content)
		if err != nil {
			return nil, fmt.Errorf("question %d content: %w", i, err)
		}
		answer, err := json.Marshal(q.CorrectAnswer)
		if err != nil {
			return nil, fmt.Errorf("question %d answer: %w", i, err)
		}
		records = append(records, questionRecord{
			ChapterID:     q.ChapterID,
			TopicTag:      q.TopicTag,
			Level:         q.Level,
			Type:          q.Type,
			Content:       string(content),
			CorrectAnswer: string(answer),
			Explanation:   q.Explanation,
		})
	}
	return records, nil
}

// ToQuestions converts seed entries into in-memory questions with fresh ids, for
// running without a database.
func ToQuestions(questions []SeedQuestion) ([]domain.Question, error) {
	records, err := toRecords(questions)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Question, 0, len(records))
	for _, rec := range records {
		out = append(out, domain.Question{
			ID:            uuid.NewString(),
			Type:          rec.Type,
			Level:         rec.Level,
			TopicTag:      rec.TopicTag,
			Content:       []byte(rec.Content),
			CorrectAnswer: domain.Answer(rec.CorrectAnswer),
			Explanation:   rec.Explanation,
		})
	}
	return out, nil
}
