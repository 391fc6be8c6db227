package repos

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"municipal-complaint-service/api/internal/models"
)

type UsersRepo struct {
	pool *pgxpool.Pool
}

func NewUsersRepo(pool *pgxpool.Pool) *UsersRepo {
	return &UsersRepo{pool: pool}
}

const userColumns = `user_id, line_user_id, facebook_psid, web_id, display_name, phone, picture_url, platform, created_at`

func scanUser(row rowScanner) (models.User, error) {
	var u models.User
	err := row.Scan(&u.UserID, &u.LineUserID, &u.FacebookPSID, &u.WebID, &u.DisplayName, &u.Phone, &u.PictureURL, &u.Platform, &u.CreatedAt)
	return u, err
}

// identityColumn maps a platform to the unique column its sender id lives
// in. Web submissions carry a generated id so each form post gets its own
// reporter row.
func identityColumn(platform string) (string, error) {
	switch platform {
	case models.PlatformLine:
		return "line_user_id", nil
	case models.PlatformFacebook:
		return "facebook_psid", nil
	case models.PlatformWeb:
		return "web_id", nil
	default:
		return "", fmt.Errorf("unsupported platform %q", platform)
	}
}

// FindOrCreate resolves the citizen record for a platform sender, creating
// it on first contact. Each platform identity maps to its own row.
func (r *UsersRepo) FindOrCreate(ctx context.Context, platform string, senderID string, displayName string) (models.User, error) {
	col, err := identityColumn(platform)
	if err != nil {
		return models.User{}, err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (user_id, `+col+`, display_name, platform, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (`+col+`) DO UPDATE
		SET display_name = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name ELSE users.display_name END
		RETURNING `+userColumns+`
	`, uuid.New(), senderID, displayName, platform)
	return scanUser(row)
}

func (r *UsersRepo) GetByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE user_id = $1
	`, userID)
	return scanUser(row)
}

func (r *UsersRepo) UpdatePhone(ctx context.Context, userID uuid.UUID, phone string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET phone = $2 WHERE user_id = $1
	`, userID, phone)
	return err
}
