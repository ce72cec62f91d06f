package model

import "time"

// User represents a user in the system.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"-"` // 第三方登录创建的用户为空
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasPassword reports whether the user can sign in with email/password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// LinkedAccount 用户绑定的第三方账号
type LinkedAccount struct {
	UserID         string    `json:"userId"`
	Provider       string    `json:"provider"`
	ProviderUserID string    `json:"providerUserId"`
	Email          string    `json:"email,omitempty"`
	LinkedAt       time.Time `json:"linkedAt"`
}
