package repos

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"municipal-complaint-service/api/internal/models"
)

type OfficersRepo struct {
	pool *pgxpool.Pool
}

func NewOfficersRepo(pool *pgxpool.Pool) *OfficersRepo {
	return &OfficersRepo{pool: pool}
}

const officerColumns = `officer_id, line_user_id, display_name, name, position, phone, department_id, is_active, registered_at`

func scanOfficer(row rowScanner) (models.Officer, error) {
	var o models.Officer
	err := row.Scan(&o.OfficerID, &o.LineUserID, &o.DisplayName, &o.Name, &o.Position, &o.Phone, &o.DepartmentID, &o.IsActive, &o.RegisteredAt)
	return o, err
}

func (r *OfficersRepo) GetByID(ctx context.Context, officerID uuid.UUID) (models.Officer, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+officerColumns+`
		FROM officers
		WHERE officer_id = $1
	`, officerID)
	return scanOfficer(row)
}

func (r *OfficersRepo) GetByLineUserID(ctx context.Context, lineUserID string) (models.Officer, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+officerColumns+`
		FROM officers
		WHERE line_user_id = $1 AND is_active
	`, lineUserID)
	return scanOfficer(row)
}

type RegisterOfficerParams struct {
	LineUserID   string
	DisplayName  string
	Name         string
	Position     string
	Phone        string
	DepartmentID uuid.UUID
}

// Register upserts an officer by LINE identity. Re-registering updates
// profile fields and reactivates the record.
func (r *OfficersRepo) Register(ctx context.Context, p RegisterOfficerParams) (models.Officer, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO officers (officer_id, line_user_id, display_name, name, position, phone, department_id, is_active, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, true, now())
		ON CONFLICT (line_user_id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    name = EXCLUDED.name,
		    position = EXCLUDED.position,
		    phone = EXCLUDED.phone,
		    department_id = EXCLUDED.department_id,
		    is_active = true
		RETURNING `+officerColumns+`
	`, uuid.New(), p.LineUserID, p.DisplayName, p.Name, p.Position, p.Phone, p.DepartmentID)
	return scanOfficer(row)
}

func (r *OfficersRepo) Deactivate(ctx context.Context, officerID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE officers SET is_active = false WHERE officer_id = $1
	`, officerID)
	return err
}

func (r *OfficersRepo) ListByDepartment(ctx context.Context, departmentID uuid.UUID) ([]models.Officer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+officerColumns+`
		FROM officers
		WHERE department_id = $1 AND is_active
		ORDER BY registered_at ASC
	`, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Officer
	for rows.Next() {
		o, err := scanOfficer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
