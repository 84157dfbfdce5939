package postgres

import (
	"context"

	"github.com/uptrace/bun"

	"mcq-chat-service/internal/domain"
)

type questionRow struct {
	bun.BaseModel `bun:"table:questions"`

	Position int             `bun:"position,pk"`
	ID       string          `bun:"id,notnull,unique"`
	Data     domain.Question `bun:"data,type:jsonb,notnull"`
}

// SeedBank replaces the stored bank with questions, keeping their order.
func SeedBank(ctx context.Context, db *bun.DB, questions []domain.Question) error {
	if _, err := domain.NewQuestionBank(questions); err != nil {
		return err
	}
	rows := make([]questionRow, len(questions))
	for i, q := range questions {
		rows[i] = questionRow{Position: i, ID: q.ID, Data: q}
	}
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*questionRow)(nil)).Where("TRUE").Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&rows).Exec(ctx)
		return err
	})
}
