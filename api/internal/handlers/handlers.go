package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"municipal-complaint-service/api/internal/intake"
	"municipal-complaint-service/api/internal/lifecycle"
	"municipal-complaint-service/api/internal/middleware"
	"municipal-complaint-service/api/internal/models"
	"municipal-complaint-service/api/internal/repos"
	"municipal-complaint-service/api/internal/token"
	"municipal-complaint-service/shared/clients/chat"
	"municipal-complaint-service/shared/httpx"
	"municipal-complaint-service/shared/logx"
	"municipal-complaint-service/shared/workflow"
)

type ComplaintLister interface {
	ListByDepartment(ctx context.Context, departmentID uuid.UUID, status string, limit int, offset int) ([]models.Complaint, error)
	ListByOfficer(ctx context.Context, officerID uuid.UUID, limit int, offset int) ([]models.Complaint, error)
	ListStatusLogs(ctx context.Context, complaintID uuid.UUID) ([]models.StatusLog, error)
}

type OfficerDirectory interface {
	GetByLineUserID(ctx context.Context, lineUserID string) (models.Officer, error)
	GetByID(ctx context.Context, officerID uuid.UUID) (models.Officer, error)
	Register(ctx context.Context, p repos.RegisterOfficerParams) (models.Officer, error)
	ListByDepartment(ctx context.Context, departmentID uuid.UUID) ([]models.Officer, error)
	Deactivate(ctx context.Context, officerID uuid.UUID) error
}

type UserDirectory interface {
	FindOrCreate(ctx context.Context, platform string, senderID string, displayName string) (models.User, error)
}

type DepartmentDirectory interface {
	List(ctx context.Context) ([]models.Department, error)
	GetByCode(ctx context.Context, code string) (models.Department, error)
	GetByGroupChatID(ctx context.Context, groupChatID string) (models.Department, error)
	BindGroupChat(ctx context.Context, departmentID uuid.UUID, groupChatID string) error
}

// Config carries the handler-level settings.
type Config struct {
	LineChannelSecret   string
	FacebookVerifyToken string
}

type Handlers struct {
	cfg         Config
	lifecycle   *lifecycle.Service
	engine      *intake.Engine
	complaints  ComplaintLister
	officers    OfficerDirectory
	users       UserDirectory
	departments DepartmentDirectory
	tokens      *token.Service
	line        chat.Pusher
	facebook    chat.Pusher
	log         logx.Logger
}

func New(cfg Config, svc *lifecycle.Service, engine *intake.Engine, complaints ComplaintLister, officers OfficerDirectory, users UserDirectory, departments DepartmentDirectory, tokens *token.Service, line chat.Pusher, facebook chat.Pusher, log logx.Logger) *Handlers {
	return &Handlers{
		cfg:         cfg,
		lifecycle:   svc,
		engine:      engine,
		complaints:  complaints,
		officers:    officers,
		users:       users,
		departments: departments,
		tokens:      tokens,
		line:        line,
		facebook:    facebook,
		log:         log,
	}
}

// Register mounts all routes. Routes under /api/v1 that mutate complaints
// expect the auth middleware in front of them; Register itself stays
// middleware-agnostic.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhook/line", h.handleLineWebhook)
	mux.HandleFunc("GET /webhook/facebook", h.handleFacebookVerify)
	mux.HandleFunc("POST /webhook/facebook", h.handleFacebookWebhook)

	mux.HandleFunc("POST /api/v1/auth/line", h.handleAuthLine)
	mux.HandleFunc("POST /api/v1/auth/logout", h.handleLogout)

	mux.HandleFunc("GET /api/v1/departments", h.handleListDepartments)
	mux.HandleFunc("GET /api/v1/complaints", h.handleListComplaints)
	mux.HandleFunc("GET /api/v1/complaints/{refID}", h.handleGetComplaint)
	mux.HandleFunc("GET /api/v1/complaints/{refID}/logs", h.handleComplaintLogs)
	mux.HandleFunc("POST /api/v1/complaints", h.handleCreateComplaint)
	mux.HandleFunc("POST /api/v1/complaints/{id}/accept", h.handleAccept)
	mux.HandleFunc("POST /api/v1/complaints/{id}/dispatch", h.handleDispatch)
	mux.HandleFunc("POST /api/v1/complaints/{id}/transfer", h.handleTransfer)
	mux.HandleFunc("POST /api/v1/complaints/{id}/close", h.handleClose)

	mux.HandleFunc("GET /api/v1/officers", h.handleListOfficers)
	mux.HandleFunc("POST /api/v1/officers", h.handleRegisterOfficer)
	mux.HandleFunc("DELETE /api/v1/officers/{id}", h.handleDeactivateOfficer)

	mux.HandleFunc("GET /api/v1/track/{refID}", h.handleTrack)
	mux.HandleFunc("POST /api/v1/surveys", h.handleSurvey)
}

// PublicPath reports whether a path is reachable without an officer token.
func PublicPath(r *http.Request) bool {
	p := r.URL.Path
	switch {
	case p == "/healthz", p == "/readyz", p == "/metrics":
		return true
	case strings.HasPrefix(p, "/webhook/"):
		return true
	case p == "/api/v1/auth/line":
		return true
	case strings.HasPrefix(p, "/api/v1/track/"):
		return true
	case p == "/api/v1/surveys":
		return true
	case p == "/api/v1/complaints" && r.Method == http.MethodPost:
		return true
	}
	return false
}

func (h *Handlers) handleAuthLine(w http.ResponseWriter, r *http.Request) {
	var body struct {
		LineUserID string `json:"line_user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.LineUserID) == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "line_user_id is required", nil)
		return
	}
	officer, err := h.officers.GetByLineUserID(r.Context(), strings.TrimSpace(body.LineUserID))
	if err != nil {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "not a registered officer", nil)
		return
	}
	raw, err := h.tokens.Issue(r.Context(), officer)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "could not issue session", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"token": raw,
		"officer": map[string]any{
			"officer_id":    officer.OfficerID,
			"name":          officer.Name,
			"department_id": officer.DepartmentID,
		},
	})
}

func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		_ = h.tokens.Revoke(r.Context(), strings.TrimSpace(authHeader[len("bearer "):]))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) handleListDepartments(w http.ResponseWriter, r *http.Request) {
	depts, err := h.departments.List(r.Context())
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "could not list departments", nil)
		return
	}
	out := make([]map[string]any, 0, len(depts))
	for _, d := range depts {
		out = append(out, map[string]any{
			"department_id": d.DepartmentID,
			"code":          d.Code,
			"name":          d.Name,
			"description":   d.Description,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"departments": out})
}

func (h *Handlers) handleListComplaints(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.OfficerFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing session", nil)
		return
	}
	deptID, err := uuid.Parse(claims.DepartmentID)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid department in session", nil)
		return
	}
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	if status != "" && !workflow.IsStatus(status) {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "unknown status filter", nil)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	if r.URL.Query().Get("assigned") == "me" {
		officerID, err := uuid.Parse(claims.OfficerID)
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid officer in session", nil)
			return
		}
		list, err := h.complaints.ListByOfficer(r.Context(), officerID, limit, offset)
		if err != nil {
			httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "could not list complaints", nil)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"complaints": complaintViews(list)})
		return
	}

	list, err := h.complaints.ListByDepartment(r.Context(), deptID, workflow.NormalizeStatus(status), limit, offset)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "could not list complaints", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"complaints": complaintViews(list)})
}

func (h *Handlers) handleGetComplaint(w http.ResponseWriter, r *http.Request) {
	c, err := h.lifecycle.Track(r.Context(), r.PathValue("refID"))
	if err != nil {
		writeLookupError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, complaintView(c))
}

func (h *Handlers) handleComplaintLogs(w http.ResponseWriter, r *http.Request) {
	c, err := h.lifecycle.Track(r.Context(), r.PathValue("refID"))
	if err != nil {
		writeLookupError(w, r, err)
		return
	}
	logs, err := h.complaints.ListStatusLogs(r.Context(), c.ComplaintID)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "could not load history", nil)
		return
	}
	out := make([]map[string]any, 0, len(logs))
	for _, l := range logs {
		entry := map[string]any{
			"to_status":  l.ToStatus,
			"action":     l.Action,
			"actor_type": l.ActorType,
			"note":       l.Note,
			"created_at": l.CreatedAt,
		}
		if l.FromStatus != nil {
			entry["from_status"] = *l.FromStatus
		}
		out = append(out, entry)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ref_id": c.RefID, "logs": out})
}

func (h *Handlers) handleCreateComplaint(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Issue          string   `json:"issue"`
		Location       string   `json:"location"`
		Latitude       *float64 `json:"latitude"`
		Longitude      *float64 `json:"longitude"`
		PhotoURL       string   `json:"photo_url"`
		ContactName    string   `json:"contact_name"`
		ContactPhone   string   `json:"contact_phone"`
		DepartmentCode string   `json:"department_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid body", nil)
		return
	}
	if strings.TrimSpace(body.Issue) == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "issue is required", nil)
		return
	}
	user, err := h.users.FindOrCreate(r.Context(), models.PlatformWeb, "web:"+uuid.NewString(), body.ContactName)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "could not create reporter", nil)
		return
	}
	c, dept, err := h.lifecycle.CreateDirect(r.Context(), lifecycle.DirectCreateParams{
		UserID:         user.UserID,
		Platform:       models.PlatformWeb,
		Issue:          strings.TrimSpace(body.Issue),
		Location:       body.Location,
		Latitude:       body.Latitude,
		Longitude:      body.Longitude,
		PhotoURL:       body.PhotoURL,
		ContactName:    body.ContactName,
		ContactPhone:   body.ContactPhone,
		DepartmentCode: strings.TrimSpace(body.DepartmentCode),
	})
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "could not file complaint", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"ref_id":     c.RefID,
		"status":     c.Status,
		"department": dept.Code,
	})
}

func (h *Handlers) handleAccept(w http.ResponseWriter, r *http.Request) {
	complaintID, claims, ok := h.actionContext(w, r)
	if !ok {
		return
	}
	var body struct {
		Note          string `json:"note"`
		ScheduledDate string `json:"scheduled_date"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	officerID, err := uuid.Parse(claims.OfficerID)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid officer in session", nil)
		return
	}
	officer, err := h.officers.GetByID(r.Context(), officerID)
	if err != nil {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "officer not found", nil)
		return
	}
	c, err := h.lifecycle.Accept(r.Context(), complaintID, officer, body.Note, body.ScheduledDate)
	if err != nil {
		writeTransitionError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, complaintView(c))
}

func (h *Handlers) handleDispatch(w http.ResponseWriter, r *http.Request) {
	complaintID, claims, ok := h.actionContext(w, r)
	if !ok {
		return
	}
	var body struct {
		OfficerID string `json:"officer_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid body", nil)
		return
	}
	fieldOfficerID, err := uuid.Parse(strings.TrimSpace(body.OfficerID))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "officer_id is required", nil)
		return
	}
	c, err := h.lifecycle.Dispatch(r.Context(), complaintID, fieldOfficerID, claims.OfficerID)
	if err != nil {
		writeTransitionError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, complaintView(c))
}

func (h *Handlers) handleTransfer(w http.ResponseWriter, r *http.Request) {
	complaintID, claims, ok := h.actionContext(w, r)
	if !ok {
		return
	}
	var body struct {
		DepartmentCode string `json:"department_code"`
		Note           string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.DepartmentCode) == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "department_code is required", nil)
		return
	}
	c, err := h.lifecycle.Transfer(r.Context(), complaintID, strings.TrimSpace(body.DepartmentCode), claims.OfficerID, body.Note)
	if err != nil {
		writeTransitionError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, complaintView(c))
}

func (h *Handlers) handleClose(w http.ResponseWriter, r *http.Request) {
	complaintID, claims, ok := h.actionContext(w, r)
	if !ok {
		return
	}
	var body struct {
		ResultStatus   string `json:"result_status"`
		ResultNote     string `json:"result_note"`
		ResultPhotoURL string `json:"result_photo_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid body", nil)
		return
	}
	if !workflow.IsResultStatus(body.ResultStatus) {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "result_status must be completed, waiting, or failed", nil)
		return
	}
	c, err := h.lifecycle.Close(r.Context(), complaintID, workflow.NormalizeStatus(body.ResultStatus), body.ResultNote, body.ResultPhotoURL, claims.OfficerID)
	if err != nil {
		writeTransitionError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, complaintView(c))
}

func (h *Handlers) handleListOfficers(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.OfficerFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing session", nil)
		return
	}
	deptID, err := uuid.Parse(claims.DepartmentID)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid department in session", nil)
		return
	}
	officers, err := h.officers.ListByDepartment(r.Context(), deptID)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "could not list officers", nil)
		return
	}
	out := make([]map[string]any, 0, len(officers))
	for _, o := range officers {
		out = append(out, officerView(o))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"officers": out})
}

// handleRegisterOfficer enrolls a colleague into the caller's department.
// A department_code in the body moves the enrollment elsewhere, for the
// oversight staff who manage several offices.
func (h *Handlers) handleRegisterOfficer(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.OfficerFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing session", nil)
		return
	}
	var body struct {
		LineUserID     string `json:"line_user_id"`
		DisplayName    string `json:"display_name"`
		Name           string `json:"name"`
		Position       string `json:"position"`
		Phone          string `json:"phone"`
		DepartmentCode string `json:"department_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid body", nil)
		return
	}
	if strings.TrimSpace(body.LineUserID) == "" || strings.TrimSpace(body.Name) == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "line_user_id and name are required", nil)
		return
	}

	deptID, err := uuid.Parse(claims.DepartmentID)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid department in session", nil)
		return
	}
	if code := strings.TrimSpace(body.DepartmentCode); code != "" {
		dept, err := h.departments.GetByCode(r.Context(), code)
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "unknown department_code", nil)
			return
		}
		deptID = dept.DepartmentID
	}

	officer, err := h.officers.Register(r.Context(), repos.RegisterOfficerParams{
		LineUserID:   strings.TrimSpace(body.LineUserID),
		DisplayName:  body.DisplayName,
		Name:         strings.TrimSpace(body.Name),
		Position:     body.Position,
		Phone:        body.Phone,
		DepartmentID: deptID,
	})
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "could not register officer", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, officerView(officer))
}

func (h *Handlers) handleDeactivateOfficer(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.OfficerFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing session", nil)
		return
	}
	officerID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid officer id", nil)
		return
	}
	officer, err := h.officers.GetByID(r.Context(), officerID)
	if err != nil {
		writeLookupError(w, r, err)
		return
	}
	if officer.DepartmentID.String() != claims.DepartmentID {
		httpx.WriteError(w, r, http.StatusForbidden, "PERMISSION_DENIED", "officer belongs to another department", nil)
		return
	}
	if err := h.officers.Deactivate(r.Context(), officerID); err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "could not deactivate officer", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func officerView(o models.Officer) map[string]any {
	return map[string]any{
		"officer_id":    o.OfficerID,
		"name":          o.Name,
		"display_name":  o.DisplayName,
		"position":      o.Position,
		"phone":         o.Phone,
		"department_id": o.DepartmentID,
	}
}

func (h *Handlers) handleTrack(w http.ResponseWriter, r *http.Request) {
	c, err := h.lifecycle.Track(r.Context(), r.PathValue("refID"))
	if err != nil {
		writeLookupError(w, r, err)
		return
	}
	// The public tracking view deliberately omits reporter contact details.
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"ref_id":         c.RefID,
		"status":         c.Status,
		"status_label":   intake.StatusLabel(c.Status),
		"summary":        c.Summary,
		"scheduled_date": c.ScheduledDate,
		"result_status":  c.ResultStatus,
		"result_note":    c.ResultNote,
		"created_at":     c.CreatedAt,
	})
}

func (h *Handlers) handleSurvey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefID   string `json:"ref_id"`
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.RefID) == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "ref_id is required", nil)
		return
	}
	if err := h.lifecycle.SubmitSurvey(r.Context(), body.RefID, body.Rating, body.Comment); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "complaint not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) actionContext(w http.ResponseWriter, r *http.Request) (uuid.UUID, token.Claims, bool) {
	claims, ok := middleware.OfficerFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing session", nil)
		return uuid.Nil, token.Claims{}, false
	}
	complaintID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid complaint id", nil)
		return uuid.Nil, token.Claims{}, false
	}
	return complaintID, claims, true
}

func writeTransitionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repos.ErrInvalidTransition):
		httpx.WriteError(w, r, http.StatusConflict, "FAILED_PRECONDITION", "complaint is not in a state that allows this action", nil)
	case errors.Is(err, pgx.ErrNoRows):
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "complaint not found", nil)
	default:
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "operation failed", nil)
	}
}

func writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, pgx.ErrNoRows) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "complaint not found", nil)
		return
	}
	httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "lookup failed", nil)
}

func complaintViews(list []models.Complaint) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, c := range list {
		out = append(out, complaintView(c))
	}
	return out
}

func complaintView(c models.Complaint) map[string]any {
	v := map[string]any{
		"complaint_id":  c.ComplaintID,
		"ref_id":        c.RefID,
		"issue":         c.Issue,
		"category":      c.Category,
		"summary":       c.Summary,
		"location":      c.Location,
		"photo_url":     c.PhotoURL,
		"contact_name":  c.ContactName,
		"contact_phone": c.ContactPhone,
		"department_id": c.DepartmentID,
		"ai_confidence": c.AIConfidence,
		"status":        c.Status,
		"created_at":    c.CreatedAt,
	}
	if c.AssignedOfficerID != nil {
		v["assigned_officer_id"] = *c.AssignedOfficerID
	}
	if c.AcceptedBy != "" {
		v["accepted_by"] = c.AcceptedBy
		v["accept_note"] = c.AcceptNote
		v["scheduled_date"] = c.ScheduledDate
	}
	if c.ResultStatus != "" {
		v["result_status"] = c.ResultStatus
		v["result_note"] = c.ResultNote
		v["result_photo_url"] = c.ResultPhotoURL
	}
	return v
}
