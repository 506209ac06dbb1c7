package model

import "time"

// GroupChat is a chat room owned by the account that created it.
type GroupChat struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Owner     string    `gorm:"size:64;not null" json:"owner"`
	OwnerKey  string    `gorm:"index:idx_group_owner;size:64;not null" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// GroupMember links an identity to a group chat. The composite primary key
// makes a second join for the same normalized username a no-op.
type GroupMember struct {
	ChatID      int64     `gorm:"primaryKey;autoIncrement:false" json:"chat_id"`
	UsernameKey string    `gorm:"primaryKey;size:64" json:"-"`
	Username    string    `gorm:"size:64;not null" json:"username"`
	JoinedAt    time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

// GroupInvite maps an opaque, reusable code to a group chat.
type GroupInvite struct {
	Code      string    `gorm:"primaryKey;size:64" json:"code"`
	ChatID    int64     `gorm:"index:idx_invite_chat;not null" json:"chat_id"`
	CreatedBy string    `gorm:"size:64;not null" json:"created_by"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
