package domain

import (
	"strings"
	"time"
)

type Theme string

const (
	ThemeLogic        Theme = "logic"
	ThemeSatisfaction Theme = "satisfaction"
)

// ParseTheme falls back to ThemeLogic for anything it does not recognize.
func ParseTheme(v string) (Theme, bool) {
	switch Theme(strings.ToLower(strings.TrimSpace(v))) {
	case ThemeLogic:
		return ThemeLogic, true
	case ThemeSatisfaction:
		return ThemeSatisfaction, true
	default:
		return ThemeLogic, false
	}
}

type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

type Turn struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

type Phase string

const (
	PhaseCollecting          Phase = "collecting"
	PhaseAwaitingIdleConfirm Phase = "awaiting_idle_confirm"
	PhaseComplete            Phase = "complete"
)

type CloseReason string

const (
	CloseReasonUserEnded   CloseReason = "user_ended"
	CloseReasonIdleTimeout CloseReason = "idle_timeout"
)

type SessionSnapshot struct {
	SessionID    string      `json:"session_id"`
	Theme        Theme       `json:"theme"`
	Phase        Phase       `json:"phase"`
	Record       LeadRecord  `json:"record"`
	Missing      []Field     `json:"missing"`
	Transcript   []Turn      `json:"transcript"`
	AgentPending bool        `json:"agent_pending"`
	IdleDeadline *time.Time  `json:"idle_deadline,omitempty"`
	Countdown    int         `json:"countdown,omitempty"`
	CloseReason  CloseReason `json:"close_reason,omitempty"`
}

type LeadNotification struct {
	SessionID   string      `json:"session_id"`
	Theme       Theme       `json:"theme"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Phone       string      `json:"phone"`
	Need        string      `json:"need"`
	Reason      CloseReason `json:"reason,omitempty"`
	SubmittedAt time.Time   `json:"submitted_at"`
}

func NewLeadNotification(sessionID string, theme Theme, rec LeadRecord, reason CloseReason, at time.Time) LeadNotification {
	return LeadNotification{
		SessionID:   sessionID,
		Theme:       theme,
		Name:        rec.Name,
		Email:       rec.Email,
		Phone:       rec.Phone,
		Need:        rec.Need,
		Reason:      reason,
		SubmittedAt: at,
	}
}

// LLM request/response shapes shared by providers and the agent client.

type Message struct {
	Role    string
	Content string
}

type LLMRequest struct {
	Model       string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

type LLMResponse struct {
	Content string
}

// HTTP payloads

type CreateSessionRequest struct {
	Theme string `json:"theme"`
}

type SendMessageRequest struct {
	Text string `json:"text"`
}

// ChatDataRequest mirrors the site's direct lead relay form; field names stay Indonesian.
type ChatDataRequest struct {
	Nama      string `json:"nama"`
	Email     string `json:"email"`
	Telepon   string `json:"telepon"`
	Kebutuhan string `json:"kebutuhan"`
	Mode      string `json:"mode"`
}

type StrategyCallRequest struct {
	ID           string    `json:"id,omitempty"`
	PhoneNumber  string    `json:"phoneNumber"`
	SelectedTime string    `json:"selectedTime"`
	TimeLabel    string    `json:"timeLabel,omitempty"`
	SubmittedAt  time.Time `json:"submittedAt,omitempty"`
}

// FormattedPhone prefixes +62 unless the number already carries it.
func (r StrategyCallRequest) FormattedPhone() string {
	phone := strings.TrimSpace(r.PhoneNumber)
	if strings.HasPrefix(phone, "+62") {
		return phone
	}
	return "+62 " + phone
}

// PreferredTime returns the human label when the client sent one.
func (r StrategyCallRequest) PreferredTime() string {
	if strings.TrimSpace(r.TimeLabel) != "" {
		return r.TimeLabel
	}
	return r.SelectedTime
}
