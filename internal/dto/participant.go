package dto

import "time"

// RegisterParticipantRequest is the payload of POST /participants.
type RegisterParticipantRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,oneof=buyer supplier"`
}

// ParticipantResponse describes a directory entry.
type ParticipantResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Role            string    `json:"role"`
	ResolvedInvites int64     `json:"resolvedInvites,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}
