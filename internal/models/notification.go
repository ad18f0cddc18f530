package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification kinds produced across the platform. The column is an open
// varchar so new kinds can ship without a schema change.
const (
	NotificationNewFollower        = "new_follower"
	NotificationReviewVote         = "review_vote"
	NotificationReviewComment      = "review_comment"
	NotificationMovieAdded         = "movie_added"
	NotificationModerationAction   = "moderation_action"
	NotificationSystemAnnouncement = "system_announcement"
	NotificationNewsletter         = "newsletter"
)

// KnownNotificationTypes lists the kinds accepted at the API boundary.
func KnownNotificationTypes() []string {
	return []string{
		NotificationNewFollower,
		NotificationReviewVote,
		NotificationReviewComment,
		NotificationMovieAdded,
		NotificationModerationAction,
		NotificationSystemAnnouncement,
		NotificationNewsletter,
	}
}

// Notification represents one delivery-worthy event for one recipient.
// Rows are immutable after creation except for the read state pair.
type Notification struct {
	BaseModel

	UserID  string         `gorm:"type:uuid;index;not null" json:"user_id"`
	Type    string         `gorm:"type:varchar(64);not null;index" json:"type"`
	Title   string         `gorm:"type:varchar(255);not null" json:"title"`
	Message string         `gorm:"type:text" json:"message"`
	Data    datatypes.JSON `json:"data"`

	IsRead bool       `gorm:"default:false;index:idx_notifications_unread" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`

	ExpiresAt *time.Time `gorm:"index" json:"expires_at"`
}

// Expired reports whether the notification has passed its optional expiry.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && n.ExpiresAt.Before(now)
}
