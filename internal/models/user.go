package models

import "time"

// User is a human account, created on first GitHub sign-in.
type User struct {
	ID        string
	Email     string
	Name      string
	GitHubID  *string
	AvatarURL *string
	CreatedAt time.Time
	UpdatedAt time.Time
}
