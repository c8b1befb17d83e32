package handler

import (
	"time"

	"github.com/google/uuid"

	"github.com/roster/backend/internal/domain/identity"
)

// UserAttrResponse represents one profile attribute of an identity
type UserAttrResponse struct {
	Values []string `json:"values"`
	Multi  bool     `json:"multi,omitempty"`
}

// UserResponse represents an identity in directory responses
type UserResponse struct {
	ID                 uuid.UUID                   `json:"id"`
	Realm              string                      `json:"realm"`
	Username           string                      `json:"username"`
	Email              string                      `json:"email,omitempty"`
	FirstName          string                      `json:"first_name,omitempty"`
	LastName           string                      `json:"last_name,omitempty"`
	Auth               string                      `json:"auth"`
	Suspended          bool                        `json:"suspended"`
	Confirmed          bool                        `json:"confirmed"`
	MustChangePassword bool                        `json:"must_change_password"`
	Lang               string                      `json:"lang,omitempty"`
	Attrs              map[string]UserAttrResponse `json:"attrs,omitempty"`
	CreatedAt          time.Time                   `json:"created_at"`
	UpdatedAt          time.Time                   `json:"updated_at"`
}

func userResponse(u *identity.User) UserResponse {
	var attrs map[string]UserAttrResponse
	if len(u.Attrs) > 0 {
		attrs = make(map[string]UserAttrResponse, len(u.Attrs))
		for key, value := range u.Attrs {
			attrs[key] = UserAttrResponse{
				Values: value.Values(),
				Multi:  value.IsMulti(),
			}
		}
	}
	return UserResponse{
		ID:                 u.ID,
		Realm:              u.Realm,
		Username:           u.Username,
		Email:              u.Email,
		FirstName:          u.FirstName,
		LastName:           u.LastName,
		Auth:               u.Auth,
		Suspended:          u.Suspended,
		Confirmed:          u.Confirmed,
		MustChangePassword: u.MustChangePassword,
		Lang:               u.Lang,
		Attrs:              attrs,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
}

func userResponses(users []*identity.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userResponse(u))
	}
	return out
}
