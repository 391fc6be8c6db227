package repos

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"municipal-complaint-service/api/internal/models"
)

type CorrectionsRepo struct {
	pool *pgxpool.Pool
}

func NewCorrectionsRepo(pool *pgxpool.Pool) *CorrectionsRepo {
	return &CorrectionsRepo{pool: pool}
}

func insertCorrection(ctx context.Context, db DBTX, c models.AICorrection) error {
	_, err := db.Exec(ctx, `
		INSERT INTO ai_corrections (correction_id, complaint_id, issue_text, wrong_department_id, correct_department_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, c.CorrectionID, c.ComplaintID, c.IssueText, c.WrongDepartmentID, c.CorrectDepartmentID, c.CreatedAt)
	return err
}

// ListRecent returns the newest corrections, newest first. The classifier
// feeds these back into its prompt as counter-examples.
func (r *CorrectionsRepo) ListRecent(ctx context.Context, limit int) ([]models.AICorrection, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT correction_id, complaint_id, issue_text, wrong_department_id, correct_department_id, created_at
		FROM ai_corrections
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AICorrection
	for rows.Next() {
		var c models.AICorrection
		if err := rows.Scan(&c.CorrectionID, &c.ComplaintID, &c.IssueText, &c.WrongDepartmentID, &c.CorrectDepartmentID, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
