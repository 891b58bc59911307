// Package models holds the client-side copies of backend-owned entities.
// Everything here is an ephemeral, possibly-stale snapshot; the backend is
// the single source of truth.
package models

import "time"

// User is the profile record returned by the users endpoints.
type User struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Bio            string `json:"bio,omitempty"`
	AvatarURL      string `json:"avatarUrl,omitempty"`
	Role           string `json:"role,omitempty"`
	FollowersCount int    `json:"followersCount"`
	FollowingCount int    `json:"followingCount"`

	// Derived per-viewer state, not part of the server record proper.
	IsFollowing bool `json:"isFollowing,omitempty"`
}

// Session is the authenticated identity plus its tokens.
type Session struct {
	UserID       string `json:"userId"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// Post carries the denormalized counters the feed mutates optimistically.
// IsLiked and LikesCount move together, never one without the other.
type Post struct {
	ID            string    `json:"id"`
	AuthorID      string    `json:"authorId"`
	AuthorName    string    `json:"authorName,omitempty"`
	Text          string    `json:"text"`
	ImageURL      string    `json:"imageUrl,omitempty"`
	IsLiked       bool      `json:"isLiked"`
	LikesCount    int       `json:"likesCount"`
	CommentsCount int       `json:"commentsCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Comment on a post.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	AuthorID  string    `json:"authorId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message exists in two representations during a send: the client temp
// record (Pending=true, ID=client-generated) and the server-confirmed one.
// At most one of each per logical send; the temp record is replaced, never
// duplicated, once the server acknowledges.
type Message struct {
	ID            string    `json:"id"`
	ChatID        string    `json:"chatId"`
	SenderID      string    `json:"senderId"`
	Text          string    `json:"text"`
	AttachmentURL string    `json:"attachmentUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	Pending       bool      `json:"pending,omitempty"`

	// ClientID survives the temp→confirmed swap so a realtime echo of an
	// already-acked send can be matched and dropped.
	ClientID string `json:"clientId,omitempty"`
}

// Chat is a conversation head.
type Chat struct {
	ID            string    `json:"id"`
	Participants  []string  `json:"participants"`
	LastMessage   string    `json:"lastMessage,omitempty"`
	LastMessageAt time.Time `json:"lastMessageAt,omitempty"`
	UnreadCount   int       `json:"unreadCount"`
}

// Notification pushed over the realtime channel and listed over REST.
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	ActorID   string    `json:"actorId,omitempty"`
	Text      string    `json:"text"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// Skill listed on a profile.
type Skill struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Level       string `json:"level,omitempty"`
}

// SkillRequest asks another student for help with a skill.
type SkillRequest struct {
	ID        string    `json:"id"`
	SkillID   string    `json:"skillId"`
	FromID    string    `json:"fromId"`
	ToID      string    `json:"toId"`
	Status    string    `json:"status"` // "pending", "accepted", "declined"
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Review left after a skill exchange.
type Review struct {
	ID         string    `json:"id"`
	ReviewerID string    `json:"reviewerId"`
	TargetID   string    `json:"targetId"`
	Rating     int       `json:"rating"`
	Text       string    `json:"text,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Report flags content or a user for moderation.
type Report struct {
	ID         string    `json:"id"`
	ReporterID string    `json:"reporterId"`
	TargetType string    `json:"targetType"` // "post", "user", "message"
	TargetID   string    `json:"targetId"`
	Reason     string    `json:"reason"`
	Status     string    `json:"status,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TypingEvent is the payload of user_typing / user_stopped_typing.
type TypingEvent struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

// UserPage is one cursor page of users.
type UserPage struct {
	Users      []User `json:"users"`
	NextCursor string `json:"nextCursor,omitempty"`
	HasMore    bool   `json:"hasMore"`
}

// PostPage is one cursor page of posts.
type PostPage struct {
	Posts      []Post `json:"posts"`
	NextCursor string `json:"nextCursor,omitempty"`
	HasMore    bool   `json:"hasMore"`
}

// MessagePage is one cursor page of messages.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	NextCursor string    `json:"nextCursor,omitempty"`
	HasMore    bool      `json:"hasMore"`
}
