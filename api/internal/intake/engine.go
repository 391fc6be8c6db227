package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"municipal-complaint-service/api/internal/classify"
	"municipal-complaint-service/api/internal/models"
	"municipal-complaint-service/api/internal/repos"
	"municipal-complaint-service/shared/clients/llm"
	"municipal-complaint-service/shared/logx"
	"municipal-complaint-service/shared/metricsx"
	"municipal-complaint-service/shared/workflow"
)

// Field keys collected during intake. All four are required before a
// complaint can be filed.
const (
	FieldName     = "name"
	FieldPhone    = "phone"
	FieldLocation = "location"
	FieldIssue    = "issue"
	fieldPhoto    = "photo"
)

const maxTranscript = 20

var requiredFields = []string{FieldName, FieldPhone, FieldLocation, FieldIssue}

// Go's \b is an ASCII word boundary and never fires after Thai letters, so
// the confirmation words are anchored on whitespace/end instead.
var (
	confirmRe = regexp.MustCompile(`(?i)^(ยืนยัน|ใช่|ถูกต้อง|โอเค|ตกลง|confirm|yes|ok)(\s|$)`)
	myCasesRe = regexp.MustCompile(`^(ติดตามเรื่อง|เรื่องของฉัน|สถานะเรื่อง)$`)
	phoneRe   = regexp.MustCompile(`\d{2,3}[-.]?\d{3}[-.]?\d{4}`)
)

const (
	replyApology      = "ขออภัยค่ะ ระบบขัดข้องชั่วคราว กรุณาลองใหม่อีกครั้งนะคะ 🙏"
	replyLocationAck  = "ได้รับตำแหน่งที่ตั้งแล้วค่ะ 📍"
	imagePlaceholder  = "[ส่งรูปถ่าย]"
	locationTemplate  = "พิกัด %.6f, %.6f"
	trackingNotFound  = "ไม่พบเรื่องร้องเรียนหมายเลข %s ค่ะ กรุณาตรวจสอบหมายเลขอ้างอิงอีกครั้งนะคะ"
	noCasesReply      = "ยังไม่พบเรื่องร้องเรียนของคุณในระบบค่ะ"
	confirmedTemplate = "รับเรื่องร้องเรียนเรียบร้อยแล้วค่ะ ✅\nหมายเลขอ้างอิง: %s\nหน่วยงานที่รับผิดชอบ: %s\nพิมพ์หมายเลขอ้างอิงในแชทนี้เพื่อติดตามสถานะได้ตลอดเวลาค่ะ"
)

// FinalizeParams is everything intake hands over when a citizen confirms.
type FinalizeParams struct {
	UserID       uuid.UUID
	Platform     string
	Issue        string
	Location     string
	Latitude     *float64
	Longitude    *float64
	PhotoURL     string
	ContactName  string
	ContactPhone string
}

// Finalizer files the confirmed complaint. The lifecycle service implements
// it: classification, persistence, and notifications happen behind it.
type Finalizer interface {
	CreateFromIntake(ctx context.Context, p FinalizeParams) (models.Complaint, models.Department, error)
}

// Tracker answers ref-id status queries and lists a citizen's own cases.
type Tracker interface {
	GetByRefID(ctx context.Context, refID string) (models.Complaint, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Complaint, error)
}

// ImageResolver turns a platform image reference into a stored URL.
type ImageResolver interface {
	Resolve(ctx context.Context, msg models.UnifiedMessage) (string, error)
}

// Locker serializes turns per citizen so two rapid messages cannot race on
// the same session.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

type NopLocker struct{}

func (NopLocker) Lock(ctx context.Context, key string) (func(), error) {
	return func() {}, nil
}

// Reply is what the webhook sends back to the citizen for one turn.
type Reply struct {
	Text    string
	Created *models.Complaint
}

type Engine struct {
	sessions  Store
	model     classify.Completer
	finalizer Finalizer
	tracker   Tracker
	images    ImageResolver
	locker    Locker
	log       logx.Logger
}

func NewEngine(sessions Store, model classify.Completer, finalizer Finalizer, tracker Tracker, images ImageResolver, locker Locker, log logx.Logger) *Engine {
	if locker == nil {
		locker = NopLocker{}
	}
	return &Engine{sessions: sessions, model: model, finalizer: finalizer, tracker: tracker, images: images, locker: locker, log: log}
}

// HandleTurn processes one inbound citizen message and produces the reply.
func (e *Engine) HandleTurn(ctx context.Context, user models.User, msg models.UnifiedMessage) (Reply, error) {
	release, err := e.locker.Lock(ctx, fmt.Sprintf("intake:turn:%s:%s", msg.Platform, msg.SenderID))
	if err != nil {
		metricsx.IncIntakeTurn("error")
		return Reply{Text: replyApology}, err
	}
	defer release()

	session, err := e.sessions.Get(ctx, msg.Platform, msg.SenderID)
	if err != nil {
		metricsx.IncIntakeTurn("error")
		return Reply{Text: replyApology}, err
	}

	switch msg.MessageType {
	case models.MessageTypeImage:
		return e.handleImage(ctx, user, session, msg)
	case models.MessageTypeLocation:
		return e.handleLocation(ctx, session, msg)
	case models.MessageTypeText:
		return e.handleText(ctx, user, session, msg)
	default:
		metricsx.IncIntakeTurn("ignored")
		return Reply{}, nil
	}
}

// handleImage records the photo and then runs a normal model turn so the
// conversation keeps moving (the model asks for whatever is still missing).
func (e *Engine) handleImage(ctx context.Context, user models.User, session models.ConversationSession, msg models.UnifiedMessage) (Reply, error) {
	if e.images != nil && msg.ImageRef != "" {
		url, err := e.images.Resolve(ctx, msg)
		if err != nil {
			e.log.Warn(ctx, "intake_image_failed", "could not store citizen photo", logx.Err(err))
			metricsx.IncIntakeTurn("error")
			return Reply{Text: replyApology}, nil
		}
		session.Fields[fieldPhoto] = url
	}
	session.Messages = appendTrimmed(session.Messages, models.SessionMessage{Role: llm.RoleUser, Content: imagePlaceholder})
	return e.modelTurn(ctx, user, session)
}

func (e *Engine) handleLocation(ctx context.Context, session models.ConversationSession, msg models.UnifiedMessage) (Reply, error) {
	session.Latitude = msg.Latitude
	session.Longitude = msg.Longitude
	if session.Fields[FieldLocation] == "" {
		if msg.Text != "" {
			session.Fields[FieldLocation] = msg.Text
		} else if msg.Latitude != nil && msg.Longitude != nil {
			session.Fields[FieldLocation] = fmt.Sprintf(locationTemplate, *msg.Latitude, *msg.Longitude)
		}
	}
	if err := e.sessions.Save(ctx, session); err != nil {
		metricsx.IncIntakeTurn("error")
		return Reply{Text: replyApology}, err
	}
	metricsx.IncIntakeTurn("location")
	return Reply{Text: replyLocationAck}, nil
}

func (e *Engine) handleText(ctx context.Context, user models.User, session models.ConversationSession, msg models.UnifiedMessage) (Reply, error) {
	text := strings.TrimSpace(msg.Text)

	// Ref-id lookups never touch the session, so a citizen can check an old
	// complaint mid-conversation without losing collected fields.
	if strings.HasPrefix(strings.ToLower(text), "cmp-") {
		return e.handleTracking(ctx, text)
	}

	if myCasesRe.MatchString(text) {
		return e.handleMyCases(ctx, user)
	}

	if confirmRe.MatchString(text) && hasAllRequired(session.Fields) {
		return e.finalize(ctx, user, session)
	}

	session.Messages = appendTrimmed(session.Messages, models.SessionMessage{Role: llm.RoleUser, Content: text})
	return e.modelTurn(ctx, user, session)
}

// modelTurn runs one completion over the transcript, absorbs extracted
// fields, and either replies or finalizes when the model saw a confirmation.
func (e *Engine) modelTurn(ctx context.Context, user models.User, session models.ConversationSession) (Reply, error) {
	raw, err := e.model.Complete(ctx, intakeSystemPrompt+contextNote(session), toLLMMessages(session.Messages))
	if err != nil {
		e.log.Warn(ctx, "intake_model_failed", "model turn failed", logx.Err(err))
		if saveErr := e.sessions.Save(ctx, session); saveErr != nil {
			e.log.Error(ctx, "intake_session_save_failed", "session not persisted after model failure", logx.Err(saveErr))
		}
		metricsx.IncIntakeTurn("error")
		return Reply{Text: replyApology}, nil
	}

	replyText, confirmed := e.absorbModelTurn(&session, raw)

	if confirmed && hasAllRequired(session.Fields) {
		return e.finalize(ctx, user, session)
	}

	session.Messages = appendTrimmed(session.Messages, models.SessionMessage{Role: llm.RoleAssistant, Content: replyText})
	if err := e.sessions.Save(ctx, session); err != nil {
		metricsx.IncIntakeTurn("error")
		return Reply{Text: replyApology}, err
	}
	metricsx.IncIntakeTurn("reply")
	return Reply{Text: replyText}, nil
}

// absorbModelTurn parses the model output and merges any extracted fields
// into the session. Output that is not JSON is treated as a plain reply.
func (e *Engine) absorbModelTurn(session *models.ConversationSession, raw string) (string, bool) {
	var out struct {
		Reply       string            `json:"reply"`
		Fields      map[string]string `json:"fields"`
		IsConfirmed bool              `json:"isConfirmed"`
	}
	body, ok := classify.FirstJSONObject(raw)
	if !ok {
		return strings.TrimSpace(raw), false
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return strings.TrimSpace(raw), false
	}
	mergeFields(session.Fields, out.Fields)
	reply := strings.TrimSpace(out.Reply)
	if reply == "" {
		reply = replyApology
	}
	return reply, out.IsConfirmed
}

func (e *Engine) handleTracking(ctx context.Context, token string) (Reply, error) {
	if !repos.LooksLikeRefID(token) {
		metricsx.IncIntakeTurn("tracking")
		return Reply{Text: fmt.Sprintf(trackingNotFound, strings.ToUpper(token))}, nil
	}
	c, err := e.tracker.GetByRefID(ctx, token)
	if err != nil {
		metricsx.IncIntakeTurn("tracking")
		return Reply{Text: fmt.Sprintf(trackingNotFound, strings.ToUpper(token))}, nil
	}
	metricsx.IncIntakeTurn("tracking")
	return Reply{Text: trackingReply(c)}, nil
}

// handleMyCases lists the citizen's recent complaints. Like ref-id lookups
// it leaves the intake session untouched.
func (e *Engine) handleMyCases(ctx context.Context, user models.User) (Reply, error) {
	list, err := e.tracker.ListByUser(ctx, user.UserID, 5)
	if err != nil {
		e.log.Warn(ctx, "intake_my_cases_failed", "case list lookup failed", logx.Err(err))
		metricsx.IncIntakeTurn("error")
		return Reply{Text: replyApology}, nil
	}
	metricsx.IncIntakeTurn("tracking")
	if len(list) == 0 {
		return Reply{Text: noCasesReply}, nil
	}
	lines := make([]string, 0, len(list)+1)
	lines = append(lines, "เรื่องร้องเรียนของคุณค่ะ:")
	for _, c := range list {
		lines = append(lines, fmt.Sprintf("%s - %s (%s)", c.RefID, c.Summary, StatusLabel(c.Status)))
	}
	return Reply{Text: strings.Join(lines, "\n")}, nil
}

func (e *Engine) finalize(ctx context.Context, user models.User, session models.ConversationSession) (Reply, error) {
	params := FinalizeParams{
		UserID:       user.UserID,
		Platform:     session.Platform,
		Issue:        session.Fields[FieldIssue],
		Location:     session.Fields[FieldLocation],
		Latitude:     session.Latitude,
		Longitude:    session.Longitude,
		PhotoURL:     session.Fields[fieldPhoto],
		ContactName:  session.Fields[FieldName],
		ContactPhone: normalizePhone(session.Fields[FieldPhone]),
	}
	complaint, dept, err := e.finalizer.CreateFromIntake(ctx, params)
	if err != nil {
		// The session is kept as-is so the citizen can just confirm again
		// once the backend recovers.
		e.log.Error(ctx, "intake_finalize_failed", "complaint not filed", logx.Err(err))
		if saveErr := e.sessions.Save(ctx, session); saveErr != nil {
			e.log.Error(ctx, "intake_session_save_failed", "session not persisted after finalize failure", logx.Err(saveErr))
		}
		metricsx.IncIntakeTurn("error")
		return Reply{Text: replyApology}, nil
	}
	if err := e.sessions.Delete(ctx, session.Platform, session.UserID); err != nil {
		e.log.Warn(ctx, "intake_session_delete_failed", "stale session left behind", logx.Err(err))
	}
	metricsx.IncIntakeTurn("created")
	e.log.Info(ctx, "complaint_filed", "intake conversation produced a complaint",
		slog.String("ref_id", complaint.RefID),
		slog.String("department", dept.Code),
	)
	return Reply{
		Text:    fmt.Sprintf(confirmedTemplate, complaint.RefID, dept.Name),
		Created: &complaint,
	}, nil
}

const intakeSystemPrompt = `คุณคือ "น้องเทศบาล" ผู้ช่วยรับเรื่องร้องเรียนของเทศบาล พูดจาสุภาพ เป็นกันเอง ลงท้ายด้วยค่ะ หน้าที่ของคุณคือคุยกับประชาชนเพื่อเก็บข้อมูล 4 อย่างให้ครบ: ปัญหาที่พบ (issue), สถานที่ (location), ชื่อผู้แจ้ง (name), เบอร์โทรติดต่อ (phone) ถามทีละเรื่อง อย่าถามซ้ำสิ่งที่ได้แล้ว เมื่อครบทั้ง 4 อย่างให้สรุปข้อมูลทั้งหมดและถามว่า "ยืนยันการแจ้งเรื่องหรือไม่คะ" ตอบกลับเป็น JSON เท่านั้น รูปแบบ: {"reply":"<ข้อความตอบประชาชน>","fields":{"issue":"","location":"","name":"","phone":""},"isConfirmed":false} ใส่เฉพาะ field ที่พบในบทสนทนา ตั้ง isConfirmed เป็น true เฉพาะเมื่อประชาชนยืนยันข้อมูลที่สรุปแล้วเท่านั้น`

// contextNote reminds the model what is already collected so it does not
// re-ask. It is rebuilt every turn from the session, not the transcript.
func contextNote(session models.ConversationSession) string {
	var collected []string
	for _, key := range requiredFields {
		if v := session.Fields[key]; v != "" {
			collected = append(collected, key+"="+v)
		}
	}
	if len(collected) == 0 {
		return ""
	}
	return "\n\nข้อมูลที่เก็บได้แล้ว: " + strings.Join(collected, ", ")
}

// mergeFields fills only empty slots. Once a citizen states a fact the model
// cannot overwrite it in a later turn.
func mergeFields(dst map[string]string, src map[string]string) {
	for _, key := range requiredFields {
		v := strings.TrimSpace(src[key])
		if v == "" || dst[key] != "" {
			continue
		}
		if key == FieldPhone {
			v = normalizePhone(v)
			if v == "" {
				continue
			}
		}
		dst[key] = v
	}
}

// normalizePhone pulls the first phone-shaped token out of free text and
// strips separators.
func normalizePhone(s string) string {
	m := phoneRe.FindString(s)
	if m == "" {
		return ""
	}
	return strings.NewReplacer("-", "", ".", "").Replace(m)
}

func hasAllRequired(fields map[string]string) bool {
	for _, key := range requiredFields {
		if strings.TrimSpace(fields[key]) == "" {
			return false
		}
	}
	return true
}

func appendTrimmed(messages []models.SessionMessage, msg models.SessionMessage) []models.SessionMessage {
	messages = append(messages, msg)
	if len(messages) > maxTranscript {
		messages = messages[len(messages)-maxTranscript:]
	}
	return messages
}

func toLLMMessages(messages []models.SessionMessage) []llm.Message {
	out := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func trackingReply(c models.Complaint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "สถานะเรื่องร้องเรียน %s\n", c.RefID)
	fmt.Fprintf(&b, "เรื่อง: %s\n", c.Summary)
	fmt.Fprintf(&b, "สถานะ: %s", StatusLabel(c.Status))
	if c.ScheduledDate != "" && c.Status == workflow.StatusAccepted {
		fmt.Fprintf(&b, "\nนัดหมายดำเนินการ: %s", c.ScheduledDate)
	}
	if c.ResultNote != "" && workflow.IsTerminal(c.Status) {
		fmt.Fprintf(&b, "\nผลการดำเนินการ: %s", c.ResultNote)
	}
	return b.String()
}

// StatusLabel maps a workflow status to citizen-facing Thai copy.
func StatusLabel(status string) string {
	switch workflow.NormalizeStatus(status) {
	case workflow.StatusPending:
		return "รอหน่วยงานรับเรื่อง"
	case workflow.StatusAccepted:
		return "หน่วยงานรับเรื่องแล้ว"
	case workflow.StatusDispatched:
		return "เจ้าหน้าที่กำลังดำเนินการ"
	case workflow.StatusCompleted:
		return "ดำเนินการเสร็จสิ้น"
	case workflow.StatusWaiting:
		return "รอการดำเนินการเพิ่มเติม"
	case workflow.StatusFailed:
		return "ไม่สามารถดำเนินการได้"
	default:
		return status
	}
}
