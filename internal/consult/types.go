package consult

import "advisory.org/internal/auth"

// Advisor is a legal advisor. Owner is the identity allowed to manage the
// advisor's profile and the consultations that reference it. Rating is not
// range checked.
type Advisor struct {
	Version     uint8         `json:"-" cbor:"0,keyasint"`
	ID          uint64        `json:"id" cbor:"1,keyasint"`
	Name        string        `json:"name" cbor:"2,keyasint"`
	Credentials string        `json:"credentials" cbor:"3,keyasint"`
	Rating      uint32        `json:"rating" cbor:"4,keyasint"`
	Owner       auth.Identity `json:"owner" cbor:"5,keyasint"`
	IsAvailable bool          `json:"is_available" cbor:"6,keyasint"`
}

// Consultation links a client request to an advisor by id. Completion and
// closing are independent flags.
type Consultation struct {
	Version     uint8   `json:"-" cbor:"0,keyasint"`
	ID          uint64  `json:"id" cbor:"1,keyasint"`
	ClientName  string  `json:"client_name" cbor:"2,keyasint"`
	ClientEmail string  `json:"client_email" cbor:"3,keyasint"`
	AdvisorID   uint64  `json:"advisor_id" cbor:"4,keyasint"`
	UserID      uint64  `json:"user_id" cbor:"5,keyasint"`
	Details     string  `json:"details" cbor:"6,keyasint"`
	CreatedAt   uint64  `json:"created_at" cbor:"7,keyasint"`
	ClosedAt    *uint64 `json:"closed_at" cbor:"8,keyasint,omitempty"`
	IsCompleted bool    `json:"is_completed" cbor:"9,keyasint"`
}

// IsClosed reports whether a closing time was recorded.
func (c Consultation) IsClosed() bool { return c.ClosedAt != nil }

// FeedbackRecord is an append-only client remark about a consultation.
type FeedbackRecord struct {
	Version        uint8  `json:"-" cbor:"0,keyasint"`
	ID             uint64 `json:"id" cbor:"1,keyasint"`
	ConsultationID uint64 `json:"consultation_id" cbor:"2,keyasint"`
	Feedback       string `json:"feedback" cbor:"3,keyasint"`
	Timestamp      uint64 `json:"timestamp" cbor:"4,keyasint"`
}

// TimelineEvent is an append-only entry in a consultation's history.
type TimelineEvent struct {
	Version        uint8  `json:"-" cbor:"0,keyasint"`
	EventID        uint64 `json:"event_id" cbor:"1,keyasint"`
	ConsultationID uint64 `json:"consultation_id" cbor:"2,keyasint"`
	Description    string `json:"description" cbor:"3,keyasint"`
	Timestamp      uint64 `json:"timestamp" cbor:"4,keyasint"`
}

// AdvisorPayload carries the caller supplied advisor fields.
type AdvisorPayload struct {
	Name        string `json:"name"`
	Credentials string `json:"credentials"`
	Rating      uint32 `json:"rating"`
}

// ConsultationPayload carries the fields needed to open a consultation.
type ConsultationPayload struct {
	AdvisorID   uint64 `json:"advisor_id"`
	UserID      uint64 `json:"user_id"`
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
	Details     string `json:"details"`
}

// ConsultationUpdate is a partial update; nil fields are left unchanged.
type ConsultationUpdate struct {
	AdvisorID   *uint64 `json:"advisor_id,omitempty"`
	UserID      *uint64 `json:"user_id,omitempty"`
	ClientName  *string `json:"client_name,omitempty"`
	ClientEmail *string `json:"client_email,omitempty"`
	Details     *string `json:"details,omitempty"`
}

// Empty reports whether the update carries no fields.
func (u ConsultationUpdate) Empty() bool {
	return u.AdvisorID == nil && u.UserID == nil && u.ClientName == nil && u.ClientEmail == nil && u.Details == nil
}
