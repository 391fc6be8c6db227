package lifecycle

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"municipal-complaint-service/api/internal/classify"
	"municipal-complaint-service/api/internal/intake"
	"municipal-complaint-service/api/internal/models"
	"municipal-complaint-service/api/internal/repos"
	"municipal-complaint-service/shared/logx"
	"municipal-complaint-service/shared/workflow"
)

type fakeStore struct {
	created    []repos.CreateComplaintParams
	complaint  models.Complaint
	acceptErr  error
	transfers  []repos.TransferParams
	corrected  bool
	surveyLogs int
}

func (f *fakeStore) Create(ctx context.Context, p repos.CreateComplaintParams) (models.Complaint, error) {
	f.created = append(f.created, p)
	c := f.complaint
	c.DepartmentID = p.DepartmentID
	c.Status = workflow.StatusPending
	return c, nil
}

func (f *fakeStore) Accept(ctx context.Context, id uuid.UUID, p repos.AcceptParams) (models.Complaint, error) {
	if f.acceptErr != nil {
		return models.Complaint{}, f.acceptErr
	}
	c := f.complaint
	c.Status = workflow.StatusAccepted
	c.AcceptedBy = p.AcceptedBy
	return c, nil
}

func (f *fakeStore) Dispatch(ctx context.Context, id uuid.UUID, p repos.DispatchParams) (models.Complaint, error) {
	c := f.complaint
	c.Status = workflow.StatusDispatched
	return c, nil
}

func (f *fakeStore) Transfer(ctx context.Context, id uuid.UUID, p repos.TransferParams) (models.Complaint, bool, error) {
	f.transfers = append(f.transfers, p)
	c := f.complaint
	c.Status = workflow.StatusPending
	c.DepartmentID = p.ToDepartmentID
	return c, f.corrected, nil
}

func (f *fakeStore) Close(ctx context.Context, id uuid.UUID, p repos.CloseParams) (models.Complaint, error) {
	c := f.complaint
	c.Status = p.ResultStatus
	c.ResultStatus = p.ResultStatus
	return c, nil
}

func (f *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (models.Complaint, error) {
	return f.complaint, nil
}

func (f *fakeStore) GetByRefID(ctx context.Context, refID string) (models.Complaint, error) {
	return f.complaint, nil
}

func (f *fakeStore) AppendSurveyLog(ctx context.Context, id uuid.UUID, actorID string, metadata []byte) error {
	f.surveyLogs++
	return nil
}

type fakeDepts struct {
	dept models.Department
	err  error
}

func (f *fakeDepts) GetByID(ctx context.Context, id uuid.UUID) (models.Department, error) {
	return f.dept, f.err
}

func (f *fakeDepts) GetByCode(ctx context.Context, code string) (models.Department, error) {
	return f.dept, f.err
}

type fakeUsers struct {
	user     models.User
	err      error
	phoneSet string
}

func (f *fakeUsers) GetByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	return f.user, f.err
}

func (f *fakeUsers) UpdatePhone(ctx context.Context, id uuid.UUID, phone string) error {
	f.phoneSet = phone
	return nil
}

type fakeOfficers struct {
	officer models.Officer
}

func (f *fakeOfficers) GetByID(ctx context.Context, id uuid.UUID) (models.Officer, error) {
	return f.officer, nil
}

type fakeClassifier struct {
	result classify.Result
	err    error
}

func (f *fakeClassifier) Classify(ctx context.Context, issue string) (classify.Result, error) {
	return f.result, f.err
}

type notifyCall struct {
	kind string
}

type fakeNotifier struct {
	calls []notifyCall
}

func (f *fakeNotifier) ComplaintCreated(ctx context.Context, c models.Complaint, dept models.Department, user models.User) {
	f.calls = append(f.calls, notifyCall{kind: "created"})
}

func (f *fakeNotifier) ComplaintTransferred(ctx context.Context, c models.Complaint, toDept models.Department, note string) {
	f.calls = append(f.calls, notifyCall{kind: "transferred"})
}

func (f *fakeNotifier) ComplaintAccepted(ctx context.Context, c models.Complaint, user models.User) {
	f.calls = append(f.calls, notifyCall{kind: "accepted"})
}

func (f *fakeNotifier) ComplaintDispatched(ctx context.Context, c models.Complaint, user models.User, officer models.Officer) {
	f.calls = append(f.calls, notifyCall{kind: "dispatched"})
}

func (f *fakeNotifier) ComplaintClosed(ctx context.Context, c models.Complaint, user models.User) {
	f.calls = append(f.calls, notifyCall{kind: "closed"})
}

type fakePublisher struct {
	topics []string
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	return nil
}

func newService(store *fakeStore, depts *fakeDepts, users *fakeUsers, officers *fakeOfficers, cls *fakeClassifier, n *fakeNotifier, pub *fakePublisher) *Service {
	return NewService(store, depts, users, officers, cls, n, pub, logx.New("lifecycle-test", "test", "", "error"))
}

func baseFixtures() (*fakeStore, *fakeDepts, *fakeUsers, *fakeOfficers, *fakeClassifier, *fakeNotifier, *fakePublisher) {
	deptID := uuid.New()
	store := &fakeStore{complaint: models.Complaint{
		ComplaintID: uuid.New(),
		RefID:       "CMP-20260115-1234",
		UserID:      uuid.New(),
		Status:      workflow.StatusPending,
	}}
	depts := &fakeDepts{dept: models.Department{DepartmentID: deptID, Code: "engineering", Name: "กองช่าง"}}
	users := &fakeUsers{user: models.User{UserID: store.complaint.UserID, Platform: models.PlatformLine}}
	officers := &fakeOfficers{officer: models.Officer{OfficerID: uuid.New(), Name: "สมชาย"}}
	cls := &fakeClassifier{result: classify.Result{DepartmentID: deptID, DepartmentCode: "engineering", Confidence: 0.9, Category: "ไฟฟ้า", Summary: "ไฟดับ"}}
	return store, depts, users, officers, cls, &fakeNotifier{}, &fakePublisher{}
}

func TestCreateFromIntakeClassifiesNotifiesPublishes(t *testing.T) {
	store, depts, users, officers, cls, n, pub := baseFixtures()
	s := newService(store, depts, users, officers, cls, n, pub)

	c, dept, err := s.CreateFromIntake(context.Background(), intake.FinalizeParams{
		UserID:       store.complaint.UserID,
		Platform:     models.PlatformLine,
		Issue:        "ไฟหน้าบ้านดับ",
		ContactPhone: "0891234567",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if dept.Code != "engineering" {
		t.Fatalf("dept = %+v", dept)
	}
	if c.Status != workflow.StatusPending {
		t.Fatalf("status = %q", c.Status)
	}
	if len(store.created) != 1 || store.created[0].ActorType != workflow.ActorSystem {
		t.Fatalf("create params wrong: %+v", store.created)
	}
	if !strings.HasPrefix(store.created[0].Note, "AI classified") {
		t.Fatalf("created note = %q", store.created[0].Note)
	}
	if store.created[0].Category != "ไฟฟ้า" || store.created[0].AIConfidence != 0.9 {
		t.Fatalf("classification not applied: %+v", store.created[0])
	}
	if users.phoneSet != "0891234567" {
		t.Fatalf("contact phone not saved to user: %q", users.phoneSet)
	}
	if len(n.calls) != 1 || n.calls[0].kind != "created" {
		t.Fatalf("notifier calls = %+v", n.calls)
	}
	if len(pub.topics) != 1 {
		t.Fatalf("event not published: %+v", pub.topics)
	}
}

func TestCreateStillWorksWhenBusIsDown(t *testing.T) {
	store, depts, users, officers, cls, n, pub := baseFixtures()
	pub.err = errors.New("kafka down")
	s := newService(store, depts, users, officers, cls, n, pub)

	if _, _, err := s.CreateFromIntake(context.Background(), intake.FinalizeParams{
		UserID: store.complaint.UserID, Platform: models.PlatformLine, Issue: "ถนนพัง",
	}); err != nil {
		t.Fatalf("bus outage must not fail creation: %v", err)
	}
	if len(n.calls) != 1 {
		t.Fatalf("notification skipped on bus outage")
	}
}

func TestCreateStillWorksWhenUserLookupFails(t *testing.T) {
	store, depts, users, officers, cls, n, pub := baseFixtures()
	users.err = errors.New("no rows")
	s := newService(store, depts, users, officers, cls, n, pub)

	if _, _, err := s.CreateFromIntake(context.Background(), intake.FinalizeParams{
		UserID: store.complaint.UserID, Platform: models.PlatformLine, Issue: "ถนนพัง",
	}); err != nil {
		t.Fatalf("notification lookup failure must not fail creation: %v", err)
	}
	if len(n.calls) != 0 {
		t.Fatalf("notifier should be skipped when user lookup fails")
	}
	if len(pub.topics) != 1 {
		t.Fatalf("event must still publish")
	}
}

func TestAcceptConflictPropagates(t *testing.T) {
	store, depts, users, officers, cls, n, pub := baseFixtures()
	store.acceptErr = repos.ErrInvalidTransition
	s := newService(store, depts, users, officers, cls, n, pub)

	_, err := s.Accept(context.Background(), store.complaint.ComplaintID, officers.officer, "", "")
	if !errors.Is(err, repos.ErrInvalidTransition) {
		t.Fatalf("err = %v", err)
	}
	if len(n.calls) != 0 || len(pub.topics) != 0 {
		t.Fatalf("side effects ran on failed transition")
	}
}

func TestTransferNotifiesReceivingDepartmentOnly(t *testing.T) {
	store, depts, users, officers, cls, n, pub := baseFixtures()
	store.corrected = true
	s := newService(store, depts, users, officers, cls, n, pub)

	c, err := s.Transfer(context.Background(), store.complaint.ComplaintID, "engineering", "officer-1", "ผิดกอง")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if c.Status != workflow.StatusPending {
		t.Fatalf("status = %q", c.Status)
	}
	if len(n.calls) != 1 || n.calls[0].kind != "transferred" {
		t.Fatalf("notifier calls = %+v", n.calls)
	}
}

func TestSubmitSurvey(t *testing.T) {
	store, depts, users, officers, cls, n, pub := baseFixtures()
	store.complaint.Status = workflow.StatusCompleted
	s := newService(store, depts, users, officers, cls, n, pub)

	if err := s.SubmitSurvey(context.Background(), "CMP-20260115-1234", 4, "รวดเร็วดีค่ะ"); err != nil {
		t.Fatalf("survey: %v", err)
	}
	if store.surveyLogs != 1 {
		t.Fatalf("survey log not appended")
	}
	if len(pub.topics) != 1 || !strings.Contains(pub.topics[0], "survey") {
		t.Fatalf("survey event not published: %+v", pub.topics)
	}
}

func TestSubmitSurveyRejectsOpenComplaint(t *testing.T) {
	store, depts, users, officers, cls, n, pub := baseFixtures()
	store.complaint.Status = workflow.StatusDispatched
	s := newService(store, depts, users, officers, cls, n, pub)

	if err := s.SubmitSurvey(context.Background(), "CMP-20260115-1234", 5, ""); err == nil {
		t.Fatalf("survey on open complaint must fail")
	}
}

func TestSubmitSurveyRejectsBadRating(t *testing.T) {
	store, depts, users, officers, cls, n, pub := baseFixtures()
	store.complaint.Status = workflow.StatusCompleted
	s := newService(store, depts, users, officers, cls, n, pub)

	for _, rating := range []int{0, 6, -1} {
		if err := s.SubmitSurvey(context.Background(), "CMP-20260115-1234", rating, ""); err == nil {
			t.Fatalf("rating %d accepted", rating)
		}
	}
}
