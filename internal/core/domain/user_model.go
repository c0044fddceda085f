package domain

import "time"

// User defines the User entity data structure holding the premium
// entitlement state. Users are registered the first time they interact with
// the bot and upgraded to premium through the command surface.
type User struct {
	// TelegramID is the Telegram chat/user identifier.
	TelegramID int64
	// Username as reported by Telegram, may be empty.
	Username string
	// IsPremium grants the right to receive recurring spread alerts.
	IsPremium bool
	// JoinedAt is the registration time.
	JoinedAt time.Time
}

// NewUser returns a new non-premium user.
func NewUser(telegramID int64, username string) (*User, error) {
	if telegramID <= 0 {
		return nil, ErrInvalidUserID
	}

	return &User{
		TelegramID: telegramID,
		Username:   username,
		JoinedAt:   time.Now(),
	}, nil
}

// SetPremium grants the premium entitlement.
func (u *User) SetPremium() {
	u.IsPremium = true
}

// RevokePremium drops the premium entitlement.
func (u *User) RevokePremium() {
	u.IsPremium = false
}
