package model

import "time"

// FriendStatus is the lifecycle state of a friend request.
type FriendStatus string

const (
	FriendPending  FriendStatus = "pending"
	FriendAccepted FriendStatus = "accepted"
	FriendDeclined FriendStatus = "declined"
)

// Friendship is a directed friend-request edge from Requester to Requested.
//
// PendingKey is "<requester_key>|<requested_key>" while the edge is pending and
// NULL afterwards. Its unique index allows at most one pending edge per
// normalized pair; NULLs never collide, so settled history is kept.
type Friendship struct {
	ID           int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	Requester    string       `gorm:"size:64;not null" json:"from"`
	Requested    string       `gorm:"size:64;not null" json:"to"`
	RequesterKey string       `gorm:"index:idx_friend_pair;size:64;not null" json:"-"`
	RequestedKey string       `gorm:"index:idx_friend_pair;index:idx_friend_incoming;size:64;not null" json:"-"`
	Status       FriendStatus `gorm:"size:16;not null;default:pending" json:"status"`
	PendingKey   *string      `gorm:"uniqueIndex:idx_friend_pending;size:130" json:"-"`
	CreatedAt    time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

// PairKey builds the PendingKey value for two normalized identities.
func PairKey(requesterKey, requestedKey string) string {
	return requesterKey + "|" + requestedKey
}
