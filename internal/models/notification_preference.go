package models

// NotificationPreference stores per-user, per-kind channel toggles.
// Absence of a row means every channel is enabled (default-allow); rows are
// only created lazily on the first explicit update.
type NotificationPreference struct {
	BaseModel

	UserID string `gorm:"type:uuid;not null;uniqueIndex:idx_pref_user_type" json:"user_id"`
	Type   string `gorm:"type:varchar(64);not null;uniqueIndex:idx_pref_user_type" json:"type"`

	EmailEnabled bool `gorm:"default:true" json:"email_enabled"`
	PushEnabled  bool `gorm:"default:true" json:"push_enabled"`
	InAppEnabled bool `gorm:"default:true" json:"in_app_enabled"`
}

// DefaultNotificationPreference returns the implicit preference applied when
// no row exists for a (user, kind) pair.
func DefaultNotificationPreference(userID, kind string) NotificationPreference {
	return NotificationPreference{
		UserID:       userID,
		Type:         kind,
		EmailEnabled: true,
		PushEnabled:  true,
		InAppEnabled: true,
	}
}
