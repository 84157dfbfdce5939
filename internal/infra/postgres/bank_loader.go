package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"

	"mcq-chat-service/internal/domain"
)

// BankLoader reads the question bank from the questions table, in position order.
type BankLoader struct {
	pool *pgxpool.Pool
}

func NewBankLoader(pool *pgxpool.Pool) *BankLoader {
	return &BankLoader{pool: pool}
}

func (l *BankLoader) LoadBank(ctx context.Context) (domain.QuestionBank, error) {
	rows, err := l.pool.Query(ctx, `SELECT id, data FROM questions ORDER BY position`)
	if err != nil {
		return domain.QuestionBank{}, errors.Wrap(err, "load questions")
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return domain.QuestionBank{}, errors.Wrap(err, "scan question")
		}
		var q domain.Question
		if err := json.Unmarshal(raw, &q); err != nil {
			return domain.QuestionBank{}, errors.Wrapf(err, "unmarshal question %s", id)
		}
		q.ID = id
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.QuestionBank{}, errors.Wrap(err, "read questions")
	}
	return domain.NewQuestionBank(questions)
}
