package domain

import "time"

// Shop is a tenant. APIKey is the public key embedded in the customer widget.
type Shop struct {
	ID        string
	Name      string
	APIKey    string
	Active    bool
	CreatedAt time.Time
}

type Staff struct {
	ID           string
	ShopID       string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// StaffSession backs a staff token. Deleting it revokes the token.
type StaffSession struct {
	ID        string
	StaffID   string
	ShopID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (s StaffSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// StaffLogin is handed back to a staff member after a successful login.
type StaffLogin struct {
	Token     string
	StaffID   string
	ShopID    string
	ExpiresAt time.Time
}

// Media is an uploaded attachment. Messages only carry Ref.
type Media struct {
	Ref      string
	Name     string
	MimeType string
	Size     int64
}
