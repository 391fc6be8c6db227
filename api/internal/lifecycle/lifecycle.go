package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"municipal-complaint-service/api/internal/classify"
	"municipal-complaint-service/api/internal/intake"
	"municipal-complaint-service/api/internal/models"
	"municipal-complaint-service/api/internal/repos"
	"municipal-complaint-service/shared/events"
	"municipal-complaint-service/shared/logx"
	"municipal-complaint-service/shared/metricsx"
	"municipal-complaint-service/shared/workflow"
)

// ComplaintStore is the persistence slice the service drives. The pgx repo
// implements it; tests swap in fakes.
type ComplaintStore interface {
	Create(ctx context.Context, p repos.CreateComplaintParams) (models.Complaint, error)
	Accept(ctx context.Context, complaintID uuid.UUID, p repos.AcceptParams) (models.Complaint, error)
	Dispatch(ctx context.Context, complaintID uuid.UUID, p repos.DispatchParams) (models.Complaint, error)
	Transfer(ctx context.Context, complaintID uuid.UUID, p repos.TransferParams) (models.Complaint, bool, error)
	Close(ctx context.Context, complaintID uuid.UUID, p repos.CloseParams) (models.Complaint, error)
	GetByID(ctx context.Context, complaintID uuid.UUID) (models.Complaint, error)
	GetByRefID(ctx context.Context, refID string) (models.Complaint, error)
	AppendSurveyLog(ctx context.Context, complaintID uuid.UUID, actorID string, metadata []byte) error
}

type DepartmentStore interface {
	GetByID(ctx context.Context, departmentID uuid.UUID) (models.Department, error)
	GetByCode(ctx context.Context, code string) (models.Department, error)
}

type UserStore interface {
	GetByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	UpdatePhone(ctx context.Context, userID uuid.UUID, phone string) error
}

type OfficerStore interface {
	GetByID(ctx context.Context, officerID uuid.UUID) (models.Officer, error)
}

type Classifier interface {
	Classify(ctx context.Context, issue string) (classify.Result, error)
}

// Notifier fans transitions out to chat. Implementations never return
// errors; delivery is best effort.
type Notifier interface {
	ComplaintCreated(ctx context.Context, c models.Complaint, dept models.Department, user models.User)
	ComplaintTransferred(ctx context.Context, c models.Complaint, toDept models.Department, note string)
	ComplaintAccepted(ctx context.Context, c models.Complaint, user models.User)
	ComplaintDispatched(ctx context.Context, c models.Complaint, user models.User, officer models.Officer)
	ComplaintClosed(ctx context.Context, c models.Complaint, user models.User)
}

// Publisher mirrors lifecycle changes onto the event bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error
}

// Service owns every status change a complaint goes through. Persistence is
// authoritative; notifications and bus events ride behind it and never make
// a transition fail.
type Service struct {
	complaints  ComplaintStore
	departments DepartmentStore
	users       UserStore
	officers    OfficerStore
	classifier  Classifier
	notifier    Notifier
	publisher   Publisher
	log         logx.Logger
}

func NewService(complaints ComplaintStore, departments DepartmentStore, users UserStore, officers OfficerStore, classifier Classifier, notifier Notifier, publisher Publisher, log logx.Logger) *Service {
	return &Service{
		complaints:  complaints,
		departments: departments,
		users:       users,
		officers:    officers,
		classifier:  classifier,
		notifier:    notifier,
		publisher:   publisher,
		log:         log,
	}
}

// CreateFromIntake files a complaint confirmed in chat. The issue is routed
// by the classifier; a classifier outage still files the complaint through
// its fallback routing.
func (s *Service) CreateFromIntake(ctx context.Context, p intake.FinalizeParams) (models.Complaint, models.Department, error) {
	res, err := s.classifier.Classify(ctx, p.Issue)
	if err != nil {
		return models.Complaint{}, models.Department{}, fmt.Errorf("lifecycle: classify: %w", err)
	}

	note := fmt.Sprintf("AI classified -> %s (%.2f)", res.DepartmentCode, res.Confidence)
	c, err := s.complaints.Create(ctx, repos.CreateComplaintParams{
		UserID:       p.UserID,
		Platform:     p.Platform,
		Issue:        p.Issue,
		Category:     res.Category,
		Summary:      res.Summary,
		Location:     p.Location,
		Latitude:     p.Latitude,
		Longitude:    p.Longitude,
		PhotoURL:     p.PhotoURL,
		ContactName:  p.ContactName,
		ContactPhone: p.ContactPhone,
		DepartmentID: res.DepartmentID,
		AIConfidence: res.Confidence,
		ActorType:    workflow.ActorSystem,
		Note:         note,
	})
	if err != nil {
		return models.Complaint{}, models.Department{}, err
	}
	metricsx.IncComplaintCreated(res.DepartmentCode)

	if p.ContactPhone != "" {
		if err := s.users.UpdatePhone(ctx, p.UserID, p.ContactPhone); err != nil {
			s.log.Warn(ctx, "user_phone_update_failed", "contact phone not saved", logx.Err(err))
		}
	}

	dept, err := s.departments.GetByID(ctx, res.DepartmentID)
	if err != nil {
		return models.Complaint{}, models.Department{}, fmt.Errorf("lifecycle: resolve department: %w", err)
	}

	s.afterTransition(ctx, c, workflow.ActionCreated, func(user models.User) {
		s.notifier.ComplaintCreated(ctx, c, dept, user)
	})
	return c, dept, nil
}

// DirectCreateParams files a complaint submitted outside chat, e.g. the web
// form. An explicit department code skips classification.
type DirectCreateParams struct {
	UserID         uuid.UUID
	Platform       string
	Issue          string
	Location       string
	Latitude       *float64
	Longitude      *float64
	PhotoURL       string
	ContactName    string
	ContactPhone   string
	DepartmentCode string
}

func (s *Service) CreateDirect(ctx context.Context, p DirectCreateParams) (models.Complaint, models.Department, error) {
	if p.DepartmentCode == "" {
		return s.CreateFromIntake(ctx, intake.FinalizeParams{
			UserID:       p.UserID,
			Platform:     p.Platform,
			Issue:        p.Issue,
			Location:     p.Location,
			Latitude:     p.Latitude,
			Longitude:    p.Longitude,
			PhotoURL:     p.PhotoURL,
			ContactName:  p.ContactName,
			ContactPhone: p.ContactPhone,
		})
	}

	dept, err := s.departments.GetByCode(ctx, p.DepartmentCode)
	if err != nil {
		return models.Complaint{}, models.Department{}, fmt.Errorf("lifecycle: department %q: %w", p.DepartmentCode, err)
	}
	c, err := s.complaints.Create(ctx, repos.CreateComplaintParams{
		UserID:       p.UserID,
		Platform:     p.Platform,
		Issue:        p.Issue,
		Summary:      p.Issue,
		Location:     p.Location,
		Latitude:     p.Latitude,
		Longitude:    p.Longitude,
		PhotoURL:     p.PhotoURL,
		ContactName:  p.ContactName,
		ContactPhone: p.ContactPhone,
		DepartmentID: dept.DepartmentID,
		ActorType:    workflow.ActorCitizen,
		Note:         "แจ้งผ่านเว็บโดยเลือกหน่วยงานเอง",
	})
	if err != nil {
		return models.Complaint{}, models.Department{}, err
	}
	metricsx.IncComplaintCreated(dept.Code)
	s.afterTransition(ctx, c, workflow.ActionCreated, func(user models.User) {
		s.notifier.ComplaintCreated(ctx, c, dept, user)
	})
	return c, dept, nil
}

// Accept marks a pending complaint as taken by an officer.
func (s *Service) Accept(ctx context.Context, complaintID uuid.UUID, officer models.Officer, note string, scheduledDate string) (models.Complaint, error) {
	c, err := s.complaints.Accept(ctx, complaintID, repos.AcceptParams{
		AcceptedBy:    officer.Name,
		Note:          note,
		ScheduledDate: scheduledDate,
		ActorType:     workflow.ActorOfficer,
		ActorID:       officer.OfficerID.String(),
	})
	if err != nil {
		return models.Complaint{}, err
	}
	metricsx.IncComplaintTransition(workflow.ActionAccepted)
	s.afterTransition(ctx, c, workflow.ActionAccepted, func(user models.User) {
		s.notifier.ComplaintAccepted(ctx, c, user)
	})
	return c, nil
}

// Dispatch assigns the field officer and tells the citizen who is coming.
func (s *Service) Dispatch(ctx context.Context, complaintID uuid.UUID, officerID uuid.UUID, actorID string) (models.Complaint, error) {
	officer, err := s.officers.GetByID(ctx, officerID)
	if err != nil {
		return models.Complaint{}, fmt.Errorf("lifecycle: officer %s: %w", officerID, err)
	}
	c, err := s.complaints.Dispatch(ctx, complaintID, repos.DispatchParams{
		OfficerID: officer.OfficerID,
		ActorType: workflow.ActorOfficer,
		ActorID:   actorID,
	})
	if err != nil {
		return models.Complaint{}, err
	}
	metricsx.IncComplaintTransition(workflow.ActionDispatched)
	s.afterTransition(ctx, c, workflow.ActionDispatched, func(user models.User) {
		s.notifier.ComplaintDispatched(ctx, c, user, officer)
	})
	return c, nil
}

// Transfer re-routes a misfiled complaint. The receiving department is
// notified; the citizen is not.
func (s *Service) Transfer(ctx context.Context, complaintID uuid.UUID, toDepartmentCode string, actorID string, note string) (models.Complaint, error) {
	dept, err := s.departments.GetByCode(ctx, toDepartmentCode)
	if err != nil {
		return models.Complaint{}, fmt.Errorf("lifecycle: department %q: %w", toDepartmentCode, err)
	}
	c, corrected, err := s.complaints.Transfer(ctx, complaintID, repos.TransferParams{
		ToDepartmentID: dept.DepartmentID,
		ActorType:      workflow.ActorOfficer,
		ActorID:        actorID,
		Note:           note,
	})
	if err != nil {
		return models.Complaint{}, err
	}
	metricsx.IncComplaintTransition(workflow.ActionTransferred)
	if corrected {
		s.log.Info(ctx, "ai_correction_recorded", "classifier correction captured for retraining",
			slog.String("ref_id", c.RefID), slog.String("department", dept.Code))
	}
	s.notifier.ComplaintTransferred(ctx, c, dept, note)
	s.publishEvent(ctx, c, workflow.ActionTransferred)
	return c, nil
}

// Close records the outcome of the field work.
func (s *Service) Close(ctx context.Context, complaintID uuid.UUID, resultStatus string, resultNote string, resultPhotoURL string, actorID string) (models.Complaint, error) {
	c, err := s.complaints.Close(ctx, complaintID, repos.CloseParams{
		ResultStatus:   resultStatus,
		ResultNote:     resultNote,
		ResultPhotoURL: resultPhotoURL,
		ActorType:      workflow.ActorOfficer,
		ActorID:        actorID,
	})
	if err != nil {
		return models.Complaint{}, err
	}
	metricsx.IncComplaintTransition(workflow.ActionClosed)
	s.afterTransition(ctx, c, workflow.ActionClosed, func(user models.User) {
		s.notifier.ComplaintClosed(ctx, c, user)
	})
	return c, nil
}

// SubmitSurvey appends the citizen's rating to the audit trail and mirrors
// it onto the bus for reporting.
func (s *Service) SubmitSurvey(ctx context.Context, refID string, rating int, comment string) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("lifecycle: rating %d out of range", rating)
	}
	c, err := s.complaints.GetByRefID(ctx, refID)
	if err != nil {
		return err
	}
	if !workflow.IsTerminal(c.Status) {
		return fmt.Errorf("lifecycle: complaint %s is not closed", c.RefID)
	}
	meta, _ := json.Marshal(map[string]any{"rating": rating, "comment": comment})
	if err := s.complaints.AppendSurveyLog(ctx, c.ComplaintID, c.UserID.String(), meta); err != nil {
		return err
	}
	if s.publisher != nil {
		envelope := events.Envelope{
			EventID:       uuid.New(),
			OccurredAt:    time.Now().UTC(),
			AggregateType: events.AggregateComplaint,
			AggregateID:   c.ComplaintID.String(),
			EventType:     workflow.ActionSurveySubmitted,
			Payload:       meta,
		}
		value, _ := json.Marshal(envelope)
		if err := s.publisher.Publish(ctx, events.TopicSurveyResults, []byte(c.ComplaintID.String()), value, nil); err != nil {
			s.log.Warn(ctx, "event_publish_failed", "survey result not mirrored to bus",
				slog.String("ref_id", c.RefID), logx.Err(err))
		}
	}
	return nil
}

func (s *Service) Track(ctx context.Context, refID string) (models.Complaint, error) {
	return s.complaints.GetByRefID(ctx, refID)
}

func (s *Service) Get(ctx context.Context, complaintID uuid.UUID) (models.Complaint, error) {
	return s.complaints.GetByID(ctx, complaintID)
}

// afterTransition runs the best-effort side effects: citizen or group
// notifications and the bus event. Failures here are logged and dropped.
func (s *Service) afterTransition(ctx context.Context, c models.Complaint, action string, send func(models.User)) {
	user, err := s.users.GetByID(ctx, c.UserID)
	if err != nil {
		s.log.Warn(ctx, "notify_user_lookup_failed", "notification skipped",
			slog.String("ref_id", c.RefID), logx.Err(err))
	} else {
		send(user)
	}
	s.publishEvent(ctx, c, action)
}

func (s *Service) publishEvent(ctx context.Context, c models.Complaint, action string) {
	if s.publisher == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"ref_id":        c.RefID,
		"status":        c.Status,
		"department_id": c.DepartmentID.String(),
	})
	envelope := events.Envelope{
		EventID:       uuid.New(),
		OccurredAt:    time.Now().UTC(),
		AggregateType: events.AggregateComplaint,
		AggregateID:   c.ComplaintID.String(),
		EventType:     action,
		Payload:       payload,
	}
	value, _ := json.Marshal(envelope)
	if err := s.publisher.Publish(ctx, events.TopicComplaintEvents, []byte(c.ComplaintID.String()), value, map[string]string{
		"aggregate_type": events.AggregateComplaint,
		"event_type":     action,
	}); err != nil {
		s.log.Warn(ctx, "event_publish_failed", "lifecycle event not mirrored to bus",
			slog.String("ref_id", c.RefID), slog.String("action", action), logx.Err(err))
	}
}
