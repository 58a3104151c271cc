package domain

import "time"

// User is an account holder. PasswordHash is the PHC-formatted argon2id
// digest and never leaves the service layer.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile is the externally visible slice of a User.
type Profile struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile projects the user for API responses.
func (u User) Profile() Profile {
	return Profile{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
	}
}
