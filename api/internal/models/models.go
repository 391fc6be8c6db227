package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	PlatformLine     = "line"
	PlatformFacebook = "facebook"
	PlatformWeb      = "web"
)

type Department struct {
	DepartmentID uuid.UUID
	Code         string
	Name         string
	Description  string
	GroupChatID  string
	Keywords     []string
	CreatedAt    time.Time
}

type User struct {
	UserID       uuid.UUID
	LineUserID   *string
	FacebookPSID *string
	WebID        *string
	DisplayName  string
	Phone        string
	PictureURL   string
	Platform     string
	CreatedAt    time.Time
}

type Officer struct {
	OfficerID    uuid.UUID
	LineUserID   string
	DisplayName  string
	Name         string
	Position     string
	Phone        string
	DepartmentID uuid.UUID
	IsActive     bool
	RegisteredAt time.Time
}

type Complaint struct {
	ComplaintID uuid.UUID
	RefID       string
	UserID      uuid.UUID
	Platform    string

	Issue        string
	Category     string
	Summary      string
	Location     string
	Latitude     *float64
	Longitude    *float64
	PhotoURL     string
	ContactName  string
	ContactPhone string

	DepartmentID   uuid.UUID
	AIDepartmentID uuid.UUID // immutable after creation; used only to record corrections
	AIConfidence   float64
	Status         string

	AssignedOfficerID *uuid.UUID
	AcceptedBy        string
	AcceptNote        string
	ScheduledDate     string

	ResultStatus   string
	ResultNote     string
	ResultPhotoURL string

	CreatedAt    time.Time
	AcceptedAt   *time.Time
	DispatchedAt *time.Time
	ClosedAt     *time.Time
}

// StatusLog is the append-only audit trail. Rows are written in the same
// transaction as the status mutation and never updated or deleted.
type StatusLog struct {
	LogID       uuid.UUID
	ComplaintID uuid.UUID
	FromStatus  *string
	ToStatus    string
	Action      string
	ActorType   string
	ActorID     string
	Note        string
	Metadata    json.RawMessage
	CreatedAt   time.Time
}

type AICorrection struct {
	CorrectionID        uuid.UUID
	ComplaintID         uuid.UUID
	IssueText           string
	WrongDepartmentID   *uuid.UUID
	CorrectDepartmentID uuid.UUID
	CreatedAt           time.Time
}

// ConversationSession is the per-(platform, user) intake state: a bounded
// transcript plus the monotone field-collection map.
type ConversationSession struct {
	Platform  string            `json:"platform"`
	UserID    string            `json:"user_id"`
	Messages  []SessionMessage  `json:"messages"`
	Fields    map[string]string `json:"fields"`
	Latitude  *float64          `json:"latitude,omitempty"`
	Longitude *float64          `json:"longitude,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type SessionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UnifiedMessage is the normalized inbound shape produced by the platform
// adapters. The core never sees platform-specific payloads.
type UnifiedMessage struct {
	Platform          string    `json:"platform"`
	PlatformMessageID string    `json:"platform_message_id"`
	SenderID          string    `json:"sender_id"`
	SenderName        string    `json:"sender_name,omitempty"`
	ChatType          string    `json:"chat_type"` // user | group
	ChatID            string    `json:"chat_id"`
	MessageType       string    `json:"message_type"` // text | image | postback | location
	Text              string    `json:"text,omitempty"`
	ImageRef          string    `json:"image_ref,omitempty"`
	PostbackData      string    `json:"postback_data,omitempty"`
	Latitude          *float64  `json:"latitude,omitempty"`
	Longitude         *float64  `json:"longitude,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
	ReplyToken        string    `json:"reply_token,omitempty"`
}

const (
	ChatTypeUser  = "user"
	ChatTypeGroup = "group"
)

const (
	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypePostback = "postback"
	MessageTypeLocation = "location"
)
