package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"municipal-complaint-service/api/internal/models"
	"municipal-complaint-service/api/internal/repos"
	"municipal-complaint-service/shared/httpx"
	"municipal-complaint-service/shared/logx"
)

type lineWebhook struct {
	Events []lineEvent `json:"events"`
}

type lineEvent struct {
	Type       string `json:"type"`
	ReplyToken string `json:"replyToken"`
	Timestamp  int64  `json:"timestamp"`
	Source     struct {
		Type    string `json:"type"`
		UserID  string `json:"userId"`
		GroupID string `json:"groupId"`
	} `json:"source"`
	Message struct {
		ID        string   `json:"id"`
		Type      string   `json:"type"`
		Text      string   `json:"text"`
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
		Address   string   `json:"address"`
	} `json:"message"`
	Postback struct {
		Data string `json:"data"`
	} `json:"postback"`
}

func (h *Handlers) handleLineWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "unreadable body", nil)
		return
	}
	if h.cfg.LineChannelSecret != "" && !validLineSignature(h.cfg.LineChannelSecret, body, r.Header.Get("X-Line-Signature")) {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "bad signature", nil)
		return
	}

	var payload lineWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid payload", nil)
		return
	}

	// LINE expects a fast 200; each event is handled independently and a
	// failing event never blocks the batch.
	for _, ev := range payload.Events {
		h.handleLineEvent(r, ev)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) handleLineEvent(r *http.Request, ev lineEvent) {
	ctx := r.Context()
	switch {
	case ev.Source.Type == "group" && ev.Type == "postback":
		h.handleLineGroupPostback(r, ev)
	case ev.Source.Type == "group" && ev.Type == "message" && ev.Message.Type == "text":
		h.handleLineGroupCommand(r, ev)
	case ev.Source.Type == "user" && ev.Type == "message":
		h.handleLineUserMessage(r, ev)
	default:
		h.log.Debug(ctx, "line_event_ignored", "unhandled event shape",
			slog.String("event_type", ev.Type), slog.String("source_type", ev.Source.Type))
	}
}

func (h *Handlers) handleLineUserMessage(r *http.Request, ev lineEvent) {
	ctx := r.Context()
	user, err := h.users.FindOrCreate(ctx, models.PlatformLine, ev.Source.UserID, "")
	if err != nil {
		h.log.Error(ctx, "line_user_resolve_failed", "inbound message dropped", logx.Err(err))
		return
	}

	msg := models.UnifiedMessage{
		Platform:          models.PlatformLine,
		PlatformMessageID: ev.Message.ID,
		SenderID:          ev.Source.UserID,
		ChatType:          models.ChatTypeUser,
		ChatID:            ev.Source.UserID,
		Timestamp:         time.UnixMilli(ev.Timestamp),
		ReplyToken:        ev.ReplyToken,
	}
	switch ev.Message.Type {
	case "text":
		msg.MessageType = models.MessageTypeText
		msg.Text = ev.Message.Text
	case "image":
		msg.MessageType = models.MessageTypeImage
		msg.ImageRef = ev.Message.ID
	case "location":
		msg.MessageType = models.MessageTypeLocation
		msg.Text = ev.Message.Address
		msg.Latitude = ev.Message.Latitude
		msg.Longitude = ev.Message.Longitude
	default:
		return
	}

	reply, err := h.engine.HandleTurn(ctx, user, msg)
	if err != nil {
		h.log.Error(ctx, "intake_turn_failed", "turn ended with error", logx.Err(err))
	}
	if reply.Text == "" {
		return
	}
	if ev.ReplyToken != "" {
		if err := h.line.ReplyText(ctx, ev.ReplyToken, reply.Text); err == nil {
			return
		}
	}
	if err := h.line.PushText(ctx, ev.Source.UserID, reply.Text); err != nil {
		h.log.Warn(ctx, "line_reply_failed", "citizen reply not delivered", logx.Err(err))
	}
}

// handleLineGroupPostback handles the accept button on complaint cards
// posted into department rooms.
func (h *Handlers) handleLineGroupPostback(r *http.Request, ev lineEvent) {
	ctx := r.Context()
	data := strings.TrimSpace(ev.Postback.Data)
	if !strings.HasPrefix(data, "accept:") {
		return
	}
	complaintID, err := uuid.Parse(strings.TrimPrefix(data, "accept:"))
	if err != nil {
		return
	}
	officer, err := h.officers.GetByLineUserID(ctx, ev.Source.UserID)
	if err != nil {
		_ = h.line.PushText(ctx, ev.Source.GroupID, "ขออภัยค่ะ เฉพาะเจ้าหน้าที่ที่ลงทะเบียนแล้วเท่านั้นที่กดรับเรื่องได้ค่ะ")
		return
	}
	// The accept button only works in the room of the department that owns
	// the complaint. A forwarded card in another group is refused.
	dept, err := h.departments.GetByGroupChatID(ctx, ev.Source.GroupID)
	if err != nil {
		h.log.Warn(ctx, "line_accept_unbound_group", "postback from a group no department is bound to",
			slog.String("group_id", ev.Source.GroupID))
		return
	}
	current, err := h.lifecycle.Get(ctx, complaintID)
	if err != nil {
		h.log.Error(ctx, "line_accept_lookup_failed", "complaint lookup failed", logx.Err(err))
		return
	}
	if current.DepartmentID != dept.DepartmentID {
		_ = h.line.PushText(ctx, ev.Source.GroupID, "เรื่องนี้ไม่ได้อยู่ในความรับผิดชอบของหน่วยงานนี้ค่ะ")
		return
	}
	c, err := h.lifecycle.Accept(ctx, complaintID, officer, "", "")
	if err != nil {
		if errors.Is(err, repos.ErrInvalidTransition) {
			_ = h.line.PushText(ctx, ev.Source.GroupID, "เรื่องนี้มีผู้รับไปแล้วค่ะ")
			return
		}
		h.log.Error(ctx, "line_accept_failed", "postback accept failed", logx.Err(err))
		return
	}
	_ = h.line.PushText(ctx, ev.Source.GroupID, fmt.Sprintf("คุณ%s รับเรื่อง %s แล้วค่ะ ✅", officer.Name, c.RefID))
}

// handleLineGroupCommand binds a department code to the group room.
// Officers type "#bind engineering" in the department's own group chat.
func (h *Handlers) handleLineGroupCommand(r *http.Request, ev lineEvent) {
	ctx := r.Context()
	text := strings.TrimSpace(ev.Message.Text)
	if !strings.HasPrefix(text, "#bind ") {
		return
	}
	if _, err := h.officers.GetByLineUserID(ctx, ev.Source.UserID); err != nil {
		return
	}
	code := strings.TrimSpace(strings.TrimPrefix(text, "#bind "))
	dept, err := h.departments.GetByCode(ctx, code)
	if err != nil {
		_ = h.line.PushText(ctx, ev.Source.GroupID, fmt.Sprintf("ไม่พบหน่วยงานรหัส %q ค่ะ", code))
		return
	}
	if err := h.departments.BindGroupChat(ctx, dept.DepartmentID, ev.Source.GroupID); err != nil {
		h.log.Error(ctx, "group_bind_failed", "group binding not saved", logx.Err(err))
		return
	}
	_ = h.line.PushText(ctx, ev.Source.GroupID, fmt.Sprintf("ผูกกลุ่มนี้กับ%sเรียบร้อยค่ะ ✅", dept.Name))
}

func validLineSignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}
