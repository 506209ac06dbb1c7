package model

import "time"

// Account is a registered GoodCord user. Username and Email keep the casing
// the user signed up with; the *Key columns hold the normalized form and carry
// the unique indexes.
type Account struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string     `gorm:"size:64;not null" json:"username"`
	UsernameKey  string     `gorm:"uniqueIndex:idx_account_username;size:64;not null" json:"-"`
	Email        string     `gorm:"size:254;not null" json:"email"`
	EmailKey     string     `gorm:"uniqueIndex:idx_account_email;size:254;not null" json:"-"`
	PasswordHash string     `gorm:"size:72;not null" json:"-"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	LastLoginIP  string     `gorm:"size:45" json:"-"`
}
