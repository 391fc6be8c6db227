package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"municipal-complaint-service/api/internal/classify"
	"municipal-complaint-service/api/internal/intake"
	"municipal-complaint-service/api/internal/lifecycle"
	"municipal-complaint-service/api/internal/middleware"
	"municipal-complaint-service/api/internal/models"
	"municipal-complaint-service/api/internal/repos"
	"municipal-complaint-service/api/internal/token"
	"municipal-complaint-service/shared/clients/chat"
	"municipal-complaint-service/shared/clients/llm"
	"municipal-complaint-service/shared/logx"
	"municipal-complaint-service/shared/workflow"
)

// In-memory fixture implementing every store the handler stack needs.
type world struct {
	complaints map[uuid.UUID]models.Complaint
	byRef      map[string]uuid.UUID
	logs       map[uuid.UUID][]models.StatusLog
	officers   map[string]models.Officer
	dept       models.Department
	users      map[string]models.User
	pushes     []string
}

func newWorld() *world {
	return &world{
		complaints: map[uuid.UUID]models.Complaint{},
		byRef:      map[string]uuid.UUID{},
		logs:       map[uuid.UUID][]models.StatusLog{},
		officers:   map[string]models.Officer{},
		users:      map[string]models.User{},
		dept:       models.Department{DepartmentID: uuid.New(), Code: "engineering", Name: "กองช่าง", GroupChatID: "G-eng"},
	}
}

func (w *world) put(c models.Complaint) {
	w.complaints[c.ComplaintID] = c
	w.byRef[c.RefID] = c.ComplaintID
}

// ComplaintStore
func (w *world) Create(ctx context.Context, p repos.CreateComplaintParams) (models.Complaint, error) {
	c := models.Complaint{
		ComplaintID:  uuid.New(),
		RefID:        repos.NewRefID(time.Now()),
		UserID:       p.UserID,
		Platform:     p.Platform,
		Issue:        p.Issue,
		Summary:      p.Summary,
		DepartmentID: p.DepartmentID,
		Status:       workflow.StatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	w.put(c)
	return c, nil
}

func (w *world) Accept(ctx context.Context, id uuid.UUID, p repos.AcceptParams) (models.Complaint, error) {
	c, ok := w.complaints[id]
	if !ok {
		return models.Complaint{}, pgx.ErrNoRows
	}
	if !workflow.CanTransition(c.Status, workflow.StatusAccepted) {
		return models.Complaint{}, repos.ErrInvalidTransition
	}
	c.Status = workflow.StatusAccepted
	c.AcceptedBy = p.AcceptedBy
	c.ScheduledDate = p.ScheduledDate
	w.put(c)
	return c, nil
}

func (w *world) Dispatch(ctx context.Context, id uuid.UUID, p repos.DispatchParams) (models.Complaint, error) {
	c, ok := w.complaints[id]
	if !ok {
		return models.Complaint{}, pgx.ErrNoRows
	}
	if !workflow.CanTransition(c.Status, workflow.StatusDispatched) {
		return models.Complaint{}, repos.ErrInvalidTransition
	}
	c.Status = workflow.StatusDispatched
	w.put(c)
	return c, nil
}

func (w *world) Transfer(ctx context.Context, id uuid.UUID, p repos.TransferParams) (models.Complaint, bool, error) {
	c, ok := w.complaints[id]
	if !ok {
		return models.Complaint{}, false, pgx.ErrNoRows
	}
	if !workflow.CanTransfer(c.Status) {
		return models.Complaint{}, false, repos.ErrInvalidTransition
	}
	c.Status = workflow.StatusPending
	c.DepartmentID = p.ToDepartmentID
	w.put(c)
	return c, false, nil
}

func (w *world) Close(ctx context.Context, id uuid.UUID, p repos.CloseParams) (models.Complaint, error) {
	c, ok := w.complaints[id]
	if !ok {
		return models.Complaint{}, pgx.ErrNoRows
	}
	if !workflow.CanTransition(c.Status, p.ResultStatus) {
		return models.Complaint{}, repos.ErrInvalidTransition
	}
	c.Status = p.ResultStatus
	c.ResultStatus = p.ResultStatus
	c.ResultNote = p.ResultNote
	w.put(c)
	return c, nil
}

func (w *world) GetByID(ctx context.Context, id uuid.UUID) (models.Complaint, error) {
	c, ok := w.complaints[id]
	if !ok {
		return models.Complaint{}, pgx.ErrNoRows
	}
	return c, nil
}

func (w *world) GetByRefID(ctx context.Context, refID string) (models.Complaint, error) {
	id, ok := w.byRef[strings.ToUpper(strings.TrimSpace(refID))]
	if !ok {
		return models.Complaint{}, pgx.ErrNoRows
	}
	return w.complaints[id], nil
}

func (w *world) AppendSurveyLog(ctx context.Context, id uuid.UUID, actorID string, metadata []byte) error {
	w.logs[id] = append(w.logs[id], models.StatusLog{ComplaintID: id, Action: workflow.ActionSurveySubmitted})
	return nil
}

// ComplaintLister
func (w *world) ListByDepartment(ctx context.Context, deptID uuid.UUID, status string, limit int, offset int) ([]models.Complaint, error) {
	var out []models.Complaint
	for _, c := range w.complaints {
		if c.DepartmentID == deptID && (status == "" || c.Status == status) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (w *world) ListByOfficer(ctx context.Context, officerID uuid.UUID, limit int, offset int) ([]models.Complaint, error) {
	var out []models.Complaint
	for _, c := range w.complaints {
		if c.AssignedOfficerID != nil && *c.AssignedOfficerID == officerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (w *world) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Complaint, error) {
	var out []models.Complaint
	for _, c := range w.complaints {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (w *world) ListStatusLogs(ctx context.Context, id uuid.UUID) ([]models.StatusLog, error) {
	return w.logs[id], nil
}

// DepartmentStore + DepartmentDirectory
func (w *world) GetByCode(ctx context.Context, code string) (models.Department, error) {
	if code == w.dept.Code {
		return w.dept, nil
	}
	return models.Department{}, pgx.ErrNoRows
}

func (w *world) List(ctx context.Context) ([]models.Department, error) {
	return []models.Department{w.dept}, nil
}

func (w *world) GetByGroupChatID(ctx context.Context, groupChatID string) (models.Department, error) {
	if groupChatID == w.dept.GroupChatID {
		return w.dept, nil
	}
	return models.Department{}, pgx.ErrNoRows
}

func (w *world) BindGroupChat(ctx context.Context, deptID uuid.UUID, groupChatID string) error {
	w.dept.GroupChatID = groupChatID
	return nil
}

type deptStore struct{ w *world }

func (d deptStore) GetByID(ctx context.Context, id uuid.UUID) (models.Department, error) {
	return d.w.dept, nil
}

func (d deptStore) GetByCode(ctx context.Context, code string) (models.Department, error) {
	return d.w.GetByCode(ctx, code)
}

// UserStore + UserDirectory
type userStore struct{ w *world }

func (u userStore) GetByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	for _, user := range u.w.users {
		if user.UserID == id {
			return user, nil
		}
	}
	return models.User{}, pgx.ErrNoRows
}

func (u userStore) UpdatePhone(ctx context.Context, id uuid.UUID, phone string) error { return nil }

func (u userStore) FindOrCreate(ctx context.Context, platform string, senderID string, displayName string) (models.User, error) {
	if user, ok := u.w.users[senderID]; ok {
		return user, nil
	}
	lineID := senderID
	user := models.User{UserID: uuid.New(), Platform: platform, LineUserID: &lineID}
	u.w.users[senderID] = user
	return user, nil
}

// OfficerStore + OfficerDirectory
type officerStore struct{ w *world }

func (o officerStore) GetByID(ctx context.Context, id uuid.UUID) (models.Officer, error) {
	for _, off := range o.w.officers {
		if off.OfficerID == id {
			return off, nil
		}
	}
	return models.Officer{}, pgx.ErrNoRows
}

func (o officerStore) GetByLineUserID(ctx context.Context, lineUserID string) (models.Officer, error) {
	off, ok := o.w.officers[lineUserID]
	if !ok {
		return models.Officer{}, pgx.ErrNoRows
	}
	return off, nil
}

func (o officerStore) Register(ctx context.Context, p repos.RegisterOfficerParams) (models.Officer, error) {
	off := models.Officer{OfficerID: uuid.New(), LineUserID: p.LineUserID, Name: p.Name, DepartmentID: p.DepartmentID, IsActive: true}
	o.w.officers[p.LineUserID] = off
	return off, nil
}

func (o officerStore) ListByDepartment(ctx context.Context, deptID uuid.UUID) ([]models.Officer, error) {
	var out []models.Officer
	for _, off := range o.w.officers {
		if off.DepartmentID == deptID && off.IsActive {
			out = append(out, off)
		}
	}
	return out, nil
}

func (o officerStore) Deactivate(ctx context.Context, id uuid.UUID) error {
	for key, off := range o.w.officers {
		if off.OfficerID == id {
			off.IsActive = false
			o.w.officers[key] = off
			return nil
		}
	}
	return pgx.ErrNoRows
}

type recordingPusher struct{ w *world }

func (p recordingPusher) PushText(ctx context.Context, to string, text string) error {
	p.w.pushes = append(p.w.pushes, to+"|"+text)
	return nil
}

func (p recordingPusher) PushCard(ctx context.Context, to string, card chat.Card) error {
	p.w.pushes = append(p.w.pushes, to+"|card:"+card.Title)
	return nil
}

func (p recordingPusher) ReplyText(ctx context.Context, replyToken string, text string) error {
	p.w.pushes = append(p.w.pushes, "reply:"+replyToken+"|"+text)
	return nil
}

type quietNotifier struct{}

func (quietNotifier) ComplaintCreated(ctx context.Context, c models.Complaint, dept models.Department, user models.User) {
}
func (quietNotifier) ComplaintTransferred(ctx context.Context, c models.Complaint, toDept models.Department, note string) {
}
func (quietNotifier) ComplaintAccepted(ctx context.Context, c models.Complaint, user models.User) {}
func (quietNotifier) ComplaintDispatched(ctx context.Context, c models.Complaint, user models.User, officer models.Officer) {
}
func (quietNotifier) ComplaintClosed(ctx context.Context, c models.Complaint, user models.User) {}

type staticClassifier struct{ w *world }

func (s staticClassifier) Classify(ctx context.Context, issue string) (classify.Result, error) {
	return classify.Result{DepartmentID: s.w.dept.DepartmentID, DepartmentCode: s.w.dept.Code, Confidence: 0.9, Category: "ทั่วไป", Summary: issue}, nil
}

type echoModel struct{}

func (echoModel) Complete(ctx context.Context, system string, messages []llm.Message) (string, error) {
	return `{"reply":"รับทราบค่ะ","fields":{},"isConfirmed":false}`, nil
}

type memKV struct{ values map[string][]byte }

func (m *memKV) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, _ := json.Marshal(value)
	m.values[key] = raw
	return nil
}

func (m *memKV) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	raw, ok := m.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *memKV) Delete(ctx context.Context, key string) error {
	delete(m.values, key)
	return nil
}

type harness struct {
	w       *world
	tokens  *token.Service
	handler http.Handler
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	w := newWorld()
	log := logx.New("handlers-test", "test", "", "error")
	tokens := token.New("test-secret", time.Hour, &memKV{values: map[string][]byte{}})

	svc := lifecycle.NewService(w, deptStore{w}, userStore{w}, officerStore{w}, staticClassifier{w}, quietNotifier{}, nil, log)
	engine := intake.NewEngine(intake.NewMemoryStore(), echoModel{}, svc, w, nil, intake.NopLocker{}, log)
	h := New(cfg, svc, engine, w, officerStore{w}, userStore{w}, w, tokens, recordingPusher{w}, recordingPusher{w}, log)

	mux := http.NewServeMux()
	h.Register(mux)
	handler := middleware.AuthMiddleware{Tokens: tokens, Skip: PublicPath}.Wrap(mux)
	return &harness{w: w, tokens: tokens, handler: handler}
}

func (h *harness) officer(t *testing.T) (models.Officer, string) {
	t.Helper()
	off := models.Officer{OfficerID: uuid.New(), LineUserID: "U-officer", Name: "สมชาย", DepartmentID: h.w.dept.DepartmentID, IsActive: true}
	h.w.officers[off.LineUserID] = off
	raw, err := h.tokens.Issue(context.Background(), off)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return off, raw
}

func (h *harness) do(t *testing.T, method string, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func pendingComplaint(h *harness) models.Complaint {
	c := models.Complaint{
		ComplaintID:  uuid.New(),
		RefID:        "CMP-20260115-1234",
		UserID:       uuid.New(),
		Issue:        "ไฟดับ",
		Summary:      "ไฟดับ",
		DepartmentID: h.w.dept.DepartmentID,
		Status:       workflow.StatusPending,
	}
	h.w.put(c)
	return c
}

func TestAuthLineIssuesToken(t *testing.T) {
	h := newHarness(t, Config{})
	off, _ := h.officer(t)

	rec := h.do(t, http.MethodPost, "/api/v1/auth/line", map[string]string{"line_user_id": off.LineUserID}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var out struct {
		Token string `json:"token"`
	}
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out.Token == "" {
		t.Fatalf("no token in response")
	}

	rec = h.do(t, http.MethodPost, "/api/v1/auth/line", map[string]string{"line_user_id": "U-nobody"}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown officer status = %d", rec.Code)
	}
}

func TestOfficerRoutesRequireToken(t *testing.T) {
	h := newHarness(t, Config{})
	rec := h.do(t, http.MethodGet, "/api/v1/complaints", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAcceptFlow(t *testing.T) {
	h := newHarness(t, Config{})
	_, bearer := h.officer(t)
	c := pendingComplaint(h)

	rec := h.do(t, http.MethodPost, "/api/v1/complaints/"+c.ComplaintID.String()+"/accept",
		map[string]string{"note": "รับแล้ว", "scheduled_date": "2026-01-20"}, bearer)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if h.w.complaints[c.ComplaintID].Status != workflow.StatusAccepted {
		t.Fatalf("status not advanced: %+v", h.w.complaints[c.ComplaintID])
	}

	// Second accept conflicts.
	rec = h.do(t, http.MethodPost, "/api/v1/complaints/"+c.ComplaintID.String()+"/accept", nil, bearer)
	if rec.Code != http.StatusConflict {
		t.Fatalf("double accept status = %d", rec.Code)
	}
}

func TestCloseRejectsBadResult(t *testing.T) {
	h := newHarness(t, Config{})
	_, bearer := h.officer(t)
	c := pendingComplaint(h)

	rec := h.do(t, http.MethodPost, "/api/v1/complaints/"+c.ComplaintID.String()+"/close",
		map[string]string{"result_status": "done"}, bearer)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestPublicTrack(t *testing.T) {
	h := newHarness(t, Config{})
	pendingComplaint(h)

	rec := h.do(t, http.MethodGet, "/api/v1/track/CMP-20260115-1234", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "CMP-20260115-1234") || strings.Contains(body, "contact_phone") {
		t.Fatalf("track body leaks or misses data: %s", body)
	}

	rec = h.do(t, http.MethodGet, "/api/v1/track/CMP-20260101-0000", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing ref status = %d", rec.Code)
	}
}

func TestWebCreateClassifies(t *testing.T) {
	h := newHarness(t, Config{})

	rec := h.do(t, http.MethodPost, "/api/v1/complaints", map[string]string{
		"issue": "ถนนพังหน้าตลาด", "contact_name": "สมศรี",
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var out struct {
		RefID      string `json:"ref_id"`
		Department string `json:"department"`
	}
	json.Unmarshal(rec.Body.Bytes(), &out)
	if !repos.RefIDPattern.MatchString(out.RefID) {
		t.Fatalf("ref_id = %q", out.RefID)
	}
	if out.Department != "engineering" {
		t.Fatalf("department = %q", out.Department)
	}
}

func TestSurveyEndpoint(t *testing.T) {
	h := newHarness(t, Config{})
	c := pendingComplaint(h)
	c.Status = workflow.StatusCompleted
	h.w.put(c)

	rec := h.do(t, http.MethodPost, "/api/v1/surveys", map[string]any{
		"ref_id": c.RefID, "rating": 5, "comment": "ดีมาก",
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodPost, "/api/v1/surveys", map[string]any{
		"ref_id": c.RefID, "rating": 9,
	}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad rating status = %d", rec.Code)
	}
}

func TestListComplaintsRejectsUnknownStatus(t *testing.T) {
	h := newHarness(t, Config{})
	_, bearer := h.officer(t)

	rec := h.do(t, http.MethodGet, "/api/v1/complaints?status=bogus", nil, bearer)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bogus status filter = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodGet, "/api/v1/complaints?status=PENDING", nil, bearer)
	if rec.Code != http.StatusOK {
		t.Fatalf("case-insensitive filter = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestListComplaintsAssignedToMe(t *testing.T) {
	h := newHarness(t, Config{})
	off, bearer := h.officer(t)

	mine := pendingComplaint(h)
	mine.Status = workflow.StatusDispatched
	mine.AssignedOfficerID = &off.OfficerID
	h.w.put(mine)

	other := models.Complaint{
		ComplaintID:  uuid.New(),
		RefID:        "CMP-20260115-9999",
		DepartmentID: h.w.dept.DepartmentID,
		Status:       workflow.StatusPending,
	}
	h.w.put(other)

	rec := h.do(t, http.MethodGet, "/api/v1/complaints?assigned=me", nil, bearer)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, mine.RefID) || strings.Contains(body, other.RefID) {
		t.Fatalf("assigned listing wrong: %s", body)
	}
}

func TestOfficerRegistrationFlow(t *testing.T) {
	h := newHarness(t, Config{})
	_, bearer := h.officer(t)

	rec := h.do(t, http.MethodPost, "/api/v1/officers", map[string]string{
		"line_user_id": "U-new", "name": "สมหญิง", "position": "ช่างโยธา", "phone": "0812345678",
	}, bearer)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d body=%s", rec.Code, rec.Body.String())
	}
	created, ok := h.w.officers["U-new"]
	if !ok || created.DepartmentID != h.w.dept.DepartmentID {
		t.Fatalf("officer not enrolled in caller's department: %+v", created)
	}

	// The new colleague can now sign in.
	rec = h.do(t, http.MethodPost, "/api/v1/auth/line", map[string]string{"line_user_id": "U-new"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("new officer auth status = %d", rec.Code)
	}

	rec = h.do(t, http.MethodGet, "/api/v1/officers", nil, bearer)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "สมหญิง") {
		t.Fatalf("listing missing new officer: %d %s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodPost, "/api/v1/officers", map[string]string{"name": "ไม่มีไลน์"}, bearer)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing line_user_id status = %d", rec.Code)
	}
}

func TestOfficerDeactivation(t *testing.T) {
	h := newHarness(t, Config{})
	_, bearer := h.officer(t)

	gone := models.Officer{OfficerID: uuid.New(), LineUserID: "U-gone", Name: "สมปอง", DepartmentID: h.w.dept.DepartmentID, IsActive: true}
	h.w.officers[gone.LineUserID] = gone

	rec := h.do(t, http.MethodDelete, "/api/v1/officers/"+gone.OfficerID.String(), nil, bearer)
	if rec.Code != http.StatusOK {
		t.Fatalf("deactivate status = %d body=%s", rec.Code, rec.Body.String())
	}
	if h.w.officers["U-gone"].IsActive {
		t.Fatalf("officer still active after deactivation")
	}

	// Another department's officer cannot be touched.
	foreign := models.Officer{OfficerID: uuid.New(), LineUserID: "U-foreign", Name: "คนนอก", DepartmentID: uuid.New(), IsActive: true}
	h.w.officers[foreign.LineUserID] = foreign
	rec = h.do(t, http.MethodDelete, "/api/v1/officers/"+foreign.OfficerID.String(), nil, bearer)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("cross-department deactivate status = %d", rec.Code)
	}
}

func lineSign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestLineWebhookSignature(t *testing.T) {
	h := newHarness(t, Config{LineChannelSecret: "shhh"})
	payload := []byte(`{"events":[]}`)

	req := httptest.NewRequest(http.MethodPost, "/webhook/line", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhook/line", bytes.NewReader(payload))
	req.Header.Set("X-Line-Signature", lineSign("shhh", payload))
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("signed status = %d", rec.Code)
	}
}

func TestLineWebhookTextTurn(t *testing.T) {
	h := newHarness(t, Config{})
	payload := map[string]any{
		"events": []map[string]any{{
			"type":       "message",
			"replyToken": "rt-1",
			"source":     map[string]any{"type": "user", "userId": "U-citizen"},
			"message":    map[string]any{"id": "m1", "type": "text", "text": "ไฟดับหน้าบ้าน"},
		}},
	}
	rec := h.do(t, http.MethodPost, "/webhook/line", payload, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(h.w.pushes) == 0 || !strings.Contains(h.w.pushes[0], "รับทราบค่ะ") {
		t.Fatalf("no reply pushed: %+v", h.w.pushes)
	}
}

func TestLineGroupAcceptPostback(t *testing.T) {
	h := newHarness(t, Config{})
	off, _ := h.officer(t)
	c := pendingComplaint(h)

	payload := map[string]any{
		"events": []map[string]any{{
			"type":     "postback",
			"source":   map[string]any{"type": "group", "userId": off.LineUserID, "groupId": "G-eng"},
			"postback": map[string]any{"data": "accept:" + c.ComplaintID.String()},
		}},
	}
	rec := h.do(t, http.MethodPost, "/webhook/line", payload, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if h.w.complaints[c.ComplaintID].Status != workflow.StatusAccepted {
		t.Fatalf("postback did not accept: %+v", h.w.complaints[c.ComplaintID])
	}
}

func TestLineGroupPostbackFromWrongGroupRefused(t *testing.T) {
	h := newHarness(t, Config{})
	off, _ := h.officer(t)
	c := pendingComplaint(h)

	payload := map[string]any{
		"events": []map[string]any{{
			"type":     "postback",
			"source":   map[string]any{"type": "group", "userId": off.LineUserID, "groupId": "G-somewhere-else"},
			"postback": map[string]any{"data": "accept:" + c.ComplaintID.String()},
		}},
	}
	rec := h.do(t, http.MethodPost, "/webhook/line", payload, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if h.w.complaints[c.ComplaintID].Status != workflow.StatusPending {
		t.Fatalf("accept went through from an unbound group: %+v", h.w.complaints[c.ComplaintID])
	}
}

func TestFacebookVerifyHandshake(t *testing.T) {
	h := newHarness(t, Config{FacebookVerifyToken: "verify-me"})

	rec := h.do(t, http.MethodGet, "/webhook/facebook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42", nil, "")
	if rec.Code != http.StatusOK || rec.Body.String() != "42" {
		t.Fatalf("handshake failed: %d %q", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodGet, "/webhook/facebook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=42", nil, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("wrong token status = %d", rec.Code)
	}
}

func TestFacebookWebhookTextTurn(t *testing.T) {
	h := newHarness(t, Config{})
	payload := map[string]any{
		"object": "page",
		"entry": []map[string]any{{
			"messaging": []map[string]any{{
				"sender":  map[string]any{"id": "PSID-9"},
				"message": map[string]any{"mid": "m9", "text": "ขยะล้นถัง"},
			}},
		}},
	}
	rec := h.do(t, http.MethodPost, "/webhook/facebook", payload, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	found := false
	for _, p := range h.w.pushes {
		if strings.HasPrefix(p, "PSID-9|") {
			found = true
		}
	}
	if !found {
		t.Fatalf("no facebook reply: %+v", h.w.pushes)
	}
}
