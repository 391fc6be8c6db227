package repos

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"municipal-complaint-service/api/internal/models"
	"municipal-complaint-service/shared/workflow"
)

type ComplaintsRepo struct {
	pool *pgxpool.Pool
}

var (
	ErrInvalidTransition   = errors.New("invalid complaint transition")
	ErrRefIDExhausted      = errors.New("could not allocate a unique ref id")
	ErrMissingRequired     = errors.New("complaint is missing required fields")
	ErrInvalidResultStatus = errors.New("close requires a result status")
)

func NewComplaintsRepo(pool *pgxpool.Pool) *ComplaintsRepo {
	return &ComplaintsRepo{pool: pool}
}

const complaintColumns = `
	complaint_id, ref_id, user_id, platform,
	issue, category, summary, location, latitude, longitude, photo_url,
	contact_name, contact_phone,
	department_id, ai_department_id, ai_confidence, status,
	assigned_officer_id, accepted_by, accept_note, scheduled_date,
	result_status, result_note, result_photo_url,
	created_at, accepted_at, dispatched_at, closed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComplaint(row rowScanner) (models.Complaint, error) {
	var c models.Complaint
	err := row.Scan(
		&c.ComplaintID, &c.RefID, &c.UserID, &c.Platform,
		&c.Issue, &c.Category, &c.Summary, &c.Location, &c.Latitude, &c.Longitude, &c.PhotoURL,
		&c.ContactName, &c.ContactPhone,
		&c.DepartmentID, &c.AIDepartmentID, &c.AIConfidence, &c.Status,
		&c.AssignedOfficerID, &c.AcceptedBy, &c.AcceptNote, &c.ScheduledDate,
		&c.ResultStatus, &c.ResultNote, &c.ResultPhotoURL,
		&c.CreatedAt, &c.AcceptedAt, &c.DispatchedAt, &c.ClosedAt,
	)
	return c, err
}

type CreateComplaintParams struct {
	UserID       uuid.UUID
	Platform     string
	Issue        string
	Category     string
	Summary      string
	Location     string
	Latitude     *float64
	Longitude    *float64
	PhotoURL     string
	ContactName  string
	ContactPhone string

	DepartmentID uuid.UUID
	AIConfidence float64

	ActorType string
	ActorID   string
	Note      string
}

// Create inserts the complaint in status pending and appends the created
// status log row in the same transaction. The ref id is drawn at random and
// retried against the unique index until an unused one is found.
func (r *ComplaintsRepo) Create(ctx context.Context, p CreateComplaintParams) (models.Complaint, error) {
	if p.Issue == "" || p.UserID == uuid.Nil || p.DepartmentID == uuid.Nil {
		return models.Complaint{}, ErrMissingRequired
	}
	if p.ActorType == "" {
		p.ActorType = workflow.ActorSystem
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Complaint{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	now := time.Now().UTC()
	complaintID := uuid.New()

	var inserted bool
	var refID string
	for attempt := 0; attempt < 5 && !inserted; attempt++ {
		refID = NewRefID(now)
		var got uuid.UUID
		err = tx.QueryRow(ctx, `
			INSERT INTO complaints (
				complaint_id, ref_id, user_id, platform,
				issue, category, summary, location, latitude, longitude, photo_url,
				contact_name, contact_phone,
				department_id, ai_department_id, ai_confidence, status, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
			ON CONFLICT (ref_id) DO NOTHING
			RETURNING complaint_id
		`, complaintID, refID, p.UserID, p.Platform,
			p.Issue, p.Category, p.Summary, p.Location, p.Latitude, p.Longitude, p.PhotoURL,
			p.ContactName, p.ContactPhone,
			p.DepartmentID, p.DepartmentID, p.AIConfidence, workflow.StatusPending, now).
			Scan(&got)
		if err == nil {
			inserted = true
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return models.Complaint{}, err
		}
	}
	if !inserted {
		err = ErrRefIDExhausted
		return models.Complaint{}, err
	}

	err = appendStatusLog(ctx, tx, models.StatusLog{
		ComplaintID: complaintID,
		FromStatus:  nil,
		ToStatus:    workflow.StatusPending,
		Action:      workflow.ActionCreated,
		ActorType:   p.ActorType,
		ActorID:     p.ActorID,
		Note:        p.Note,
		CreatedAt:   now,
	})
	if err != nil {
		return models.Complaint{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Complaint{}, err
	}

	return r.GetByID(ctx, complaintID)
}

func (r *ComplaintsRepo) GetByID(ctx context.Context, complaintID uuid.UUID) (models.Complaint, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+complaintColumns+`
		FROM complaints
		WHERE complaint_id = $1
	`, complaintID)
	return scanComplaint(row)
}

func (r *ComplaintsRepo) GetByRefID(ctx context.Context, refID string) (models.Complaint, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+complaintColumns+`
		FROM complaints
		WHERE ref_id = $1
	`, strings.ToUpper(strings.TrimSpace(refID)))
	return scanComplaint(row)
}

func (r *ComplaintsRepo) ListByDepartment(ctx context.Context, departmentID uuid.UUID, status string, limit int, offset int) ([]models.Complaint, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+complaintColumns+`
		FROM complaints
		WHERE department_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, departmentID, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectComplaints(rows)
}

func (r *ComplaintsRepo) ListByOfficer(ctx context.Context, officerID uuid.UUID, limit int, offset int) ([]models.Complaint, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+complaintColumns+`
		FROM complaints
		WHERE assigned_officer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, officerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectComplaints(rows)
}

func (r *ComplaintsRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Complaint, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+complaintColumns+`
		FROM complaints
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectComplaints(rows)
}

func collectComplaints(rows pgx.Rows) ([]models.Complaint, error) {
	var out []models.Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type AcceptParams struct {
	AcceptedBy    string
	Note          string
	ScheduledDate string
	ActorType     string
	ActorID       string
}

// Accept moves pending -> accepted under a row lock.
func (r *ComplaintsRepo) Accept(ctx context.Context, complaintID uuid.UUID, p AcceptParams) (models.Complaint, error) {
	return r.transition(ctx, complaintID, workflow.StatusAccepted, func(tx pgx.Tx, c *models.Complaint, now time.Time) (models.StatusLog, error) {
		_, err := tx.Exec(ctx, `
			UPDATE complaints
			SET status = $2, accepted_by = $3, accept_note = $4, scheduled_date = $5, accepted_at = $6
			WHERE complaint_id = $1
		`, complaintID, workflow.StatusAccepted, p.AcceptedBy, p.Note, p.ScheduledDate, now)
		if err != nil {
			return models.StatusLog{}, err
		}
		c.AcceptedBy = p.AcceptedBy
		c.AcceptNote = p.Note
		c.ScheduledDate = p.ScheduledDate
		c.AcceptedAt = &now
		return models.StatusLog{
			Action:    workflow.ActionAccepted,
			ActorType: orActor(p.ActorType, workflow.ActorOfficer),
			ActorID:   p.ActorID,
			Note:      p.Note,
		}, nil
	})
}

type DispatchParams struct {
	OfficerID uuid.UUID
	ActorType string
	ActorID   string
	Note      string
}

// Dispatch moves accepted -> dispatched and records the assigned officer.
func (r *ComplaintsRepo) Dispatch(ctx context.Context, complaintID uuid.UUID, p DispatchParams) (models.Complaint, error) {
	if p.OfficerID == uuid.Nil {
		return models.Complaint{}, fmt.Errorf("dispatch: %w", ErrMissingRequired)
	}
	return r.transition(ctx, complaintID, workflow.StatusDispatched, func(tx pgx.Tx, c *models.Complaint, now time.Time) (models.StatusLog, error) {
		_, err := tx.Exec(ctx, `
			UPDATE complaints
			SET status = $2, assigned_officer_id = $3, dispatched_at = $4
			WHERE complaint_id = $1
		`, complaintID, workflow.StatusDispatched, p.OfficerID, now)
		if err != nil {
			return models.StatusLog{}, err
		}
		officerID := p.OfficerID
		c.AssignedOfficerID = &officerID
		c.DispatchedAt = &now
		return models.StatusLog{
			Action:    workflow.ActionDispatched,
			ActorType: orActor(p.ActorType, workflow.ActorOfficer),
			ActorID:   p.ActorID,
			Note:      p.Note,
		}, nil
	})
}

type CloseParams struct {
	ResultStatus   string
	ResultNote     string
	ResultPhotoURL string
	ActorType      string
	ActorID        string
}

// Close moves dispatched to one of the result statuses.
func (r *ComplaintsRepo) Close(ctx context.Context, complaintID uuid.UUID, p CloseParams) (models.Complaint, error) {
	if !workflow.IsResultStatus(p.ResultStatus) {
		return models.Complaint{}, ErrInvalidResultStatus
	}
	return r.transition(ctx, complaintID, p.ResultStatus, func(tx pgx.Tx, c *models.Complaint, now time.Time) (models.StatusLog, error) {
		_, err := tx.Exec(ctx, `
			UPDATE complaints
			SET status = $2, result_status = $2, result_note = $3, result_photo_url = $4, closed_at = $5
			WHERE complaint_id = $1
		`, complaintID, p.ResultStatus, p.ResultNote, p.ResultPhotoURL, now)
		if err != nil {
			return models.StatusLog{}, err
		}
		c.ResultStatus = p.ResultStatus
		c.ResultNote = p.ResultNote
		c.ResultPhotoURL = p.ResultPhotoURL
		c.ClosedAt = &now
		return models.StatusLog{
			Action:    workflow.ActionClosed,
			ActorType: orActor(p.ActorType, workflow.ActorOfficer),
			ActorID:   p.ActorID,
			Note:      p.ResultNote,
		}, nil
	})
}

type TransferParams struct {
	ToDepartmentID uuid.UUID
	ActorType      string
	ActorID        string
	Note           string
}

// Transfer re-routes a non-terminal complaint to another department and
// resets it to pending. When the AI-assigned department is being overridden
// for the first time, an ai_corrections row is written in the same
// transaction so the classifier can learn from it.
func (r *ComplaintsRepo) Transfer(ctx context.Context, complaintID uuid.UUID, p TransferParams) (models.Complaint, bool, error) {
	if p.ToDepartmentID == uuid.Nil {
		return models.Complaint{}, false, fmt.Errorf("transfer: %w", ErrMissingRequired)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Complaint{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `
		SELECT `+complaintColumns+`
		FROM complaints
		WHERE complaint_id = $1
		FOR UPDATE
	`, complaintID)
	c, err := scanComplaint(row)
	if err != nil {
		return models.Complaint{}, false, err
	}
	if !workflow.CanTransfer(c.Status) {
		err = ErrInvalidTransition
		return models.Complaint{}, false, err
	}
	if c.DepartmentID == p.ToDepartmentID {
		err = fmt.Errorf("transfer: complaint already belongs to department %s", p.ToDepartmentID)
		return models.Complaint{}, false, err
	}

	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
		UPDATE complaints
		SET status = $2, department_id = $3, assigned_officer_id = NULL,
		    accepted_by = '', accept_note = '', scheduled_date = '',
		    accepted_at = NULL, dispatched_at = NULL
		WHERE complaint_id = $1
	`, complaintID, workflow.StatusPending, p.ToDepartmentID)
	if err != nil {
		return models.Complaint{}, false, err
	}

	corrected := false
	if c.AIDepartmentID != uuid.Nil && c.AIDepartmentID != p.ToDepartmentID {
		wrong := c.AIDepartmentID
		err = insertCorrection(ctx, tx, models.AICorrection{
			CorrectionID:        uuid.New(),
			ComplaintID:         complaintID,
			IssueText:           c.Issue,
			WrongDepartmentID:   &wrong,
			CorrectDepartmentID: p.ToDepartmentID,
			CreatedAt:           now,
		})
		if err != nil {
			return models.Complaint{}, false, err
		}
		corrected = true
	}

	from := c.Status
	err = appendStatusLog(ctx, tx, models.StatusLog{
		ComplaintID: complaintID,
		FromStatus:  &from,
		ToStatus:    workflow.StatusPending,
		Action:      workflow.ActionTransferred,
		ActorType:   orActor(p.ActorType, workflow.ActorOfficer),
		ActorID:     p.ActorID,
		Note:        p.Note,
		CreatedAt:   now,
	})
	if err != nil {
		return models.Complaint{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Complaint{}, false, err
	}

	c.Status = workflow.StatusPending
	c.DepartmentID = p.ToDepartmentID
	c.AssignedOfficerID = nil
	c.AcceptedBy = ""
	c.AcceptNote = ""
	c.ScheduledDate = ""
	c.AcceptedAt = nil
	c.DispatchedAt = nil
	return c, corrected, nil
}

// transition locks the row, checks the transition table, applies the
// caller's update, and appends exactly one status log row. All of it commits
// or none of it does.
func (r *ComplaintsRepo) transition(ctx context.Context, complaintID uuid.UUID, toStatus string, apply func(pgx.Tx, *models.Complaint, time.Time) (models.StatusLog, error)) (models.Complaint, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Complaint{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `
		SELECT `+complaintColumns+`
		FROM complaints
		WHERE complaint_id = $1
		FOR UPDATE
	`, complaintID)
	c, err := scanComplaint(row)
	if err != nil {
		return models.Complaint{}, err
	}
	if !workflow.CanTransition(c.Status, toStatus) {
		err = ErrInvalidTransition
		return models.Complaint{}, err
	}

	now := time.Now().UTC()
	logEntry, err := apply(tx, &c, now)
	if err != nil {
		return models.Complaint{}, err
	}

	from := c.Status
	c.Status = toStatus
	logEntry.ComplaintID = complaintID
	logEntry.FromStatus = &from
	logEntry.ToStatus = toStatus
	logEntry.CreatedAt = now
	if err = appendStatusLog(ctx, tx, logEntry); err != nil {
		return models.Complaint{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Complaint{}, err
	}
	return c, nil
}

func appendStatusLog(ctx context.Context, db DBTX, entry models.StatusLog) error {
	if entry.LogID == uuid.Nil {
		entry.LogID = uuid.New()
	}
	if len(entry.Metadata) == 0 {
		entry.Metadata = []byte("{}")
	}
	_, err := db.Exec(ctx, `
		INSERT INTO status_logs (log_id, complaint_id, from_status, to_status, action, actor_type, actor_id, note, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, entry.LogID, entry.ComplaintID, entry.FromStatus, entry.ToStatus, entry.Action, entry.ActorType, entry.ActorID, entry.Note, entry.Metadata, entry.CreatedAt)
	return err
}

func (r *ComplaintsRepo) ListStatusLogs(ctx context.Context, complaintID uuid.UUID) ([]models.StatusLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT log_id, complaint_id, from_status, to_status, action, actor_type, actor_id, note, metadata, created_at
		FROM status_logs
		WHERE complaint_id = $1
		ORDER BY created_at ASC
	`, complaintID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.StatusLog
	for rows.Next() {
		var l models.StatusLog
		if err := rows.Scan(&l.LogID, &l.ComplaintID, &l.FromStatus, &l.ToStatus, &l.Action, &l.ActorType, &l.ActorID, &l.Note, &l.Metadata, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func orActor(actor string, fallback string) string {
	if actor == "" {
		return fallback
	}
	return actor
}

// AppendSurveyLog records a citizen survey submission against a closed
// complaint without changing its status.
func (r *ComplaintsRepo) AppendSurveyLog(ctx context.Context, complaintID uuid.UUID, actorID string, metadata []byte) error {
	c, err := r.GetByID(ctx, complaintID)
	if err != nil {
		return err
	}
	status := c.Status
	return appendStatusLog(ctx, r.pool, models.StatusLog{
		ComplaintID: complaintID,
		FromStatus:  &status,
		ToStatus:    status,
		Action:      workflow.ActionSurveySubmitted,
		ActorType:   workflow.ActorCitizen,
		ActorID:     actorID,
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
	})
}
