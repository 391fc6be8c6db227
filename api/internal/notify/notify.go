package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"municipal-complaint-service/api/internal/models"
	"municipal-complaint-service/api/internal/tasks"
	"municipal-complaint-service/shared/clients/chat"
	"municipal-complaint-service/shared/logx"
	"municipal-complaint-service/shared/metricsx"
	"municipal-complaint-service/shared/workflow"
)

// Queue defers work the dispatcher cannot finish inline: the delayed
// satisfaction survey and retries of failed chat pushes. The worker binary
// runs with a nil Queue so its own pushes are never re-enqueued.
type Queue interface {
	EnqueueSurvey(ctx context.Context, complaintID uuid.UUID, delay time.Duration) error
	EnqueueNotify(ctx context.Context, p tasks.NotifyPayload) error
}

// Config carries the copy targets the dispatcher needs.
type Config struct {
	OversightGroupID string
	OfficerWebURL    string
	SurveyBaseURL    string
	SurveyDelay      time.Duration
}

// Dispatcher fans lifecycle transitions out to chat channels. Every send is
// best effort: a failed push is counted and logged, never propagated, so a
// notification outage cannot block a status change.
type Dispatcher struct {
	line     chat.Pusher
	facebook chat.Pusher
	queue    Queue
	cfg      Config
	log      logx.Logger
}

func NewDispatcher(line chat.Pusher, facebook chat.Pusher, queue Queue, cfg Config, log logx.Logger) *Dispatcher {
	return &Dispatcher{line: line, facebook: facebook, queue: queue, cfg: cfg, log: log}
}

// ComplaintCreated announces a new complaint in the owning department's
// group room and pings the oversight room.
func (d *Dispatcher) ComplaintCreated(ctx context.Context, c models.Complaint, dept models.Department, user models.User) {
	card := chat.Card{
		Title: "เรื่องร้องเรียนใหม่ 📋 " + c.RefID,
		Lines: []chat.Line{
			{Label: "เรื่อง", Value: firstNonEmpty(c.Summary, c.Issue)},
			{Label: "หมวดหมู่", Value: c.Category},
			{Label: "สถานที่", Value: c.Location},
			{Label: "ผู้แจ้ง", Value: c.ContactName},
			{Label: "ติดต่อ", Value: c.ContactPhone},
		},
		ImageURL: c.PhotoURL,
		Actions: []chat.Action{
			{Label: "รับเรื่อง", Data: "accept:" + c.ComplaintID.String()},
			{Label: "ดูรายละเอียด", URI: d.complaintURL(c)},
		},
	}
	d.pushDeptCard(ctx, dept, card, "created")
	d.pushOversight(ctx, fmt.Sprintf("เรื่องใหม่ %s ส่งถึง %s แล้ว", c.RefID, dept.Name), "created")
}

// ComplaintTransferred notifies the receiving department. The citizen is not
// messaged: routing between offices is internal.
func (d *Dispatcher) ComplaintTransferred(ctx context.Context, c models.Complaint, toDept models.Department, note string) {
	card := chat.Card{
		Title: "เรื่องโอนเข้า 🔁 " + c.RefID,
		Lines: []chat.Line{
			{Label: "เรื่อง", Value: firstNonEmpty(c.Summary, c.Issue)},
			{Label: "สถานที่", Value: c.Location},
			{Label: "หมายเหตุ", Value: note},
		},
		ImageURL: c.PhotoURL,
		Actions: []chat.Action{
			{Label: "รับเรื่อง", Data: "accept:" + c.ComplaintID.String()},
			{Label: "ดูรายละเอียด", URI: d.complaintURL(c)},
		},
	}
	d.pushDeptCard(ctx, toDept, card, "transferred")
	d.pushOversight(ctx, fmt.Sprintf("เรื่อง %s ถูกโอนไปยัง %s", c.RefID, toDept.Name), "transferred")
}

// ComplaintAccepted tells the citizen their report is being handled.
func (d *Dispatcher) ComplaintAccepted(ctx context.Context, c models.Complaint, user models.User) {
	text := fmt.Sprintf("เรื่องร้องเรียน %s ของคุณได้รับการรับเรื่องแล้วค่ะ ✅", c.RefID)
	if c.AcceptedBy != "" {
		text += fmt.Sprintf("\nผู้รับเรื่อง: %s", c.AcceptedBy)
	}
	if c.ScheduledDate != "" {
		text += fmt.Sprintf("\nกำหนดดำเนินการ: %s", c.ScheduledDate)
	}
	d.pushCitizen(ctx, user, text, "accepted")
}

// ComplaintDispatched tells the citizen who is coming.
func (d *Dispatcher) ComplaintDispatched(ctx context.Context, c models.Complaint, user models.User, officer models.Officer) {
	text := fmt.Sprintf("เจ้าหน้าที่กำลังดำเนินการเรื่อง %s ค่ะ 🔧\nผู้รับผิดชอบ: %s", c.RefID, officer.Name)
	if officer.Phone != "" {
		text += fmt.Sprintf("\nติดต่อเจ้าหน้าที่: %s", officer.Phone)
	}
	d.pushCitizen(ctx, user, text, "dispatched")
}

// ComplaintClosed reports the outcome to the citizen. When work actually
// finished (any result except waiting) a satisfaction survey is scheduled.
func (d *Dispatcher) ComplaintClosed(ctx context.Context, c models.Complaint, user models.User) {
	text := fmt.Sprintf("เรื่องร้องเรียน %s %s", c.RefID, resultLabel(c.ResultStatus))
	if c.ResultNote != "" {
		text += "\nรายละเอียด: " + c.ResultNote
	}
	if c.ResultPhotoURL != "" {
		text += "\nรูปผลงาน: " + c.ResultPhotoURL
	}
	d.pushCitizen(ctx, user, text, "closed")

	if c.ResultStatus == workflow.StatusWaiting || d.queue == nil {
		return
	}
	if err := d.queue.EnqueueSurvey(ctx, c.ComplaintID, d.cfg.SurveyDelay); err != nil {
		metricsx.IncNotifyFailure("survey_enqueue")
		d.log.Warn(ctx, "survey_enqueue_failed", "survey not scheduled",
			slog.String("ref_id", c.RefID), logx.Err(err))
	}
}

// SurveyText is the delayed message the worker pushes.
func (d *Dispatcher) SurveyText(c models.Complaint) string {
	text := fmt.Sprintf("ขอบคุณที่ใช้บริการค่ะ 🙏 ช่วยประเมินความพึงพอใจต่อการดำเนินการเรื่อง %s ให้เราหน่อยนะคะ", c.RefID)
	if d.cfg.SurveyBaseURL != "" {
		text += "\n" + d.cfg.SurveyBaseURL + "/" + c.RefID
	}
	return text
}

// PushCitizen sends free text to the citizen's channel. Exposed for the
// worker's retry path.
func (d *Dispatcher) PushCitizen(ctx context.Context, user models.User, text string) {
	d.pushCitizen(ctx, user, text, "worker")
}

func (d *Dispatcher) pushCitizen(ctx context.Context, user models.User, text string, kind string) {
	pusher, to, ok := d.citizenChannel(user)
	if !ok {
		// Web-submitted complaints have no chat channel to reach.
		return
	}
	if err := pusher.PushText(ctx, to, text); err != nil {
		metricsx.IncNotifyFailure(kind)
		d.log.Warn(ctx, "notify_citizen_failed", "citizen push failed",
			slog.String("kind", kind), slog.String("platform", user.Platform), logx.Err(err))
		d.retryCitizen(ctx, user.Platform, to, text)
	}
}

// retryCitizen hands a failed citizen push to the queue so the worker can
// retry it with backoff.
func (d *Dispatcher) retryCitizen(ctx context.Context, platform, to, text string) {
	if d.queue == nil {
		return
	}
	p := tasks.NotifyPayload{Platform: platform, RecipientID: to, Text: text}
	if err := d.queue.EnqueueNotify(ctx, p); err != nil {
		metricsx.IncNotifyFailure("retry_enqueue")
		d.log.Warn(ctx, "notify_retry_enqueue_failed", "push retry not queued", logx.Err(err))
	}
}

func (d *Dispatcher) pushDeptCard(ctx context.Context, dept models.Department, card chat.Card, kind string) {
	if dept.GroupChatID == "" || d.line == nil {
		metricsx.IncNotifyFailure(kind + "_no_group")
		d.log.Warn(ctx, "notify_department_unreachable", "department has no group chat bound",
			slog.String("department", dept.Code))
		return
	}
	if err := d.line.PushCard(ctx, dept.GroupChatID, card); err != nil {
		metricsx.IncNotifyFailure(kind)
		d.log.Warn(ctx, "notify_department_failed", "department push failed",
			slog.String("department", dept.Code), logx.Err(err))
	}
}

func (d *Dispatcher) pushOversight(ctx context.Context, text string, kind string) {
	if d.cfg.OversightGroupID == "" || d.line == nil {
		return
	}
	if err := d.line.PushText(ctx, d.cfg.OversightGroupID, text); err != nil {
		metricsx.IncNotifyFailure(kind + "_oversight")
		d.log.Warn(ctx, "notify_oversight_failed", "oversight push failed", logx.Err(err))
	}
}

func (d *Dispatcher) citizenChannel(user models.User) (chat.Pusher, string, bool) {
	switch user.Platform {
	case models.PlatformLine:
		if user.LineUserID != nil && d.line != nil {
			return d.line, *user.LineUserID, true
		}
	case models.PlatformFacebook:
		if user.FacebookPSID != nil && d.facebook != nil {
			return d.facebook, *user.FacebookPSID, true
		}
	}
	return nil, "", false
}

func (d *Dispatcher) complaintURL(c models.Complaint) string {
	if d.cfg.OfficerWebURL == "" {
		return ""
	}
	return d.cfg.OfficerWebURL + "/complaints/" + c.ComplaintID.String()
}

func resultLabel(resultStatus string) string {
	switch resultStatus {
	case workflow.StatusCompleted:
		return "ดำเนินการเสร็จสิ้นแล้วค่ะ ✅"
	case workflow.StatusWaiting:
		return "อยู่ระหว่างรอการดำเนินการเพิ่มเติมค่ะ ⏳"
	case workflow.StatusFailed:
		return "ไม่สามารถดำเนินการได้ค่ะ ขออภัยด้วยนะคะ 🙏"
	default:
		return "มีการปรับสถานะค่ะ"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
