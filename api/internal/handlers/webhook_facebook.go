package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"municipal-complaint-service/api/internal/models"
	"municipal-complaint-service/shared/httpx"
	"municipal-complaint-service/shared/logx"
)

type facebookWebhook struct {
	Object string `json:"object"`
	Entry  []struct {
		Messaging []facebookMessaging `json:"messaging"`
	} `json:"entry"`
}

type facebookMessaging struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Timestamp int64 `json:"timestamp"`
	Message   *struct {
		MID         string `json:"mid"`
		Text        string `json:"text"`
		Attachments []struct {
			Type    string `json:"type"`
			Payload struct {
				URL         string `json:"url"`
				Coordinates *struct {
					Lat  float64 `json:"lat"`
					Long float64 `json:"long"`
				} `json:"coordinates"`
			} `json:"payload"`
		} `json:"attachments"`
	} `json:"message"`
	Postback *struct {
		Payload string `json:"payload"`
	} `json:"postback"`
}

// handleFacebookVerify answers Meta's subscription handshake.
func (h *Handlers) handleFacebookVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == h.cfg.FacebookVerifyToken && h.cfg.FacebookVerifyToken != "" {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	httpx.WriteError(w, r, http.StatusForbidden, "UNAUTHENTICATED", "verification failed", nil)
}

func (h *Handlers) handleFacebookWebhook(w http.ResponseWriter, r *http.Request) {
	var payload facebookWebhook
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid payload", nil)
		return
	}
	if payload.Object != "page" {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	for _, entry := range payload.Entry {
		for _, m := range entry.Messaging {
			h.handleFacebookMessaging(r, m)
		}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) handleFacebookMessaging(r *http.Request, m facebookMessaging) {
	ctx := r.Context()
	if m.Sender.ID == "" {
		return
	}
	user, err := h.users.FindOrCreate(ctx, models.PlatformFacebook, m.Sender.ID, "")
	if err != nil {
		h.log.Error(ctx, "facebook_user_resolve_failed", "inbound message dropped", logx.Err(err))
		return
	}

	msg := models.UnifiedMessage{
		Platform:  models.PlatformFacebook,
		SenderID:  m.Sender.ID,
		ChatType:  models.ChatTypeUser,
		ChatID:    m.Sender.ID,
		Timestamp: time.UnixMilli(m.Timestamp),
	}
	switch {
	case m.Message != nil && m.Message.Text != "":
		msg.MessageType = models.MessageTypeText
		msg.Text = m.Message.Text
		msg.PlatformMessageID = m.Message.MID
	case m.Message != nil && len(m.Message.Attachments) > 0:
		att := m.Message.Attachments[0]
		msg.PlatformMessageID = m.Message.MID
		switch att.Type {
		case "image":
			msg.MessageType = models.MessageTypeImage
			msg.ImageRef = att.Payload.URL
		case "location":
			msg.MessageType = models.MessageTypeLocation
			if att.Payload.Coordinates != nil {
				lat, lng := att.Payload.Coordinates.Lat, att.Payload.Coordinates.Long
				msg.Latitude, msg.Longitude = &lat, &lng
			}
		default:
			return
		}
	case m.Postback != nil:
		// Messenger's get-started button just opens the conversation.
		msg.MessageType = models.MessageTypeText
		msg.Text = "สวัสดี"
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
	if err := h.facebook.PushText(ctx, m.Sender.ID, reply.Text); err != nil {
		h.log.Warn(ctx, "facebook_reply_failed", "citizen reply not delivered", logx.Err(err))
	}
}
