package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lazynerd-007/lpv1-sub000/internal/models"
	"github.com/lazynerd-007/lpv1-sub000/internal/realtime"
	"github.com/lazynerd-007/lpv1-sub000/internal/workqueue"
	apperrors "github.com/lazynerd-007/lpv1-sub000/pkg/errors"
	"github.com/lazynerd-007/lpv1-sub000/pkg/logger"
	"github.com/lazynerd-007/lpv1-sub000/pkg/metrics"
)

const (
	defaultListLimit    = 25
	maxListLimit        = 100
	bulkInsertBatchSize = 500
)

// NotificationDTO represents the API-friendly notification payload.
type NotificationDTO struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	IsRead    bool           `json:"is_read"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// CreateNotificationInput defines attributes required to persist a notification.
type CreateNotificationInput struct {
	UserID    string
	Type      string
	Title     string
	Message   string
	Data      map[string]any
	ExpiresAt *time.Time
}

// CreateBulkInput targets many recipients with one logical event.
type CreateBulkInput struct {
	UserIDs   []string
	Type      string
	Title     string
	Message   string
	Data      map[string]any
	ExpiresAt *time.Time
}

// ListNotificationsInput defines filters for querying user notifications.
type ListNotificationsInput struct {
	UserID     string
	UnreadOnly bool
	Limit      int
	Offset     int
}

// ChannelUpdate patches only the provided preference channels.
type ChannelUpdate struct {
	EmailEnabled *bool `json:"email_enabled"`
	PushEnabled  *bool `json:"push_enabled"`
	InAppEnabled *bool `json:"in_app_enabled"`
}

// NotificationService orchestrates persistence, preference filtering, and
// live delivery of user notifications. It is the only entry point other
// subsystems use to originate notifications; writing the store directly would
// skip filtering and live push.
type NotificationService struct {
	db          *gorm.DB
	broadcaster *realtime.Broadcaster
	queue       workqueue.Queue
	log         *zap.Logger
	now         func() time.Time
}

// NotificationServiceOption customises service construction.
type NotificationServiceOption func(*NotificationService)

// WithClock overrides the time source, primarily for tests.
func WithClock(now func() time.Time) NotificationServiceOption {
	return func(s *NotificationService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewNotificationService constructs a NotificationService. The broadcaster
// and queue may be nil, in which case live delivery is skipped or executed
// inline respectively.
func NewNotificationService(db *gorm.DB, broadcaster *realtime.Broadcaster, queue workqueue.Queue, opts ...NotificationServiceOption) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}

	s := &NotificationService{
		db:          db,
		broadcaster: broadcaster,
		queue:       queue,
		log:         logger.WithModule("notifications"),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create persists a notification for one recipient and triggers live
// delivery. Returns nil without persisting when the recipient disabled the
// kind's in-app channel; a disabled kind is not created at all.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}
	kind := strings.TrimSpace(input.Type)
	if kind == "" {
		return nil, apperrors.NewBadRequest("notification type is required")
	}

	if err := s.verifyRecipient(ctx, userID); err != nil {
		return nil, err
	}

	if !s.shouldDeliverInApp(ctx, userID, kind) {
		return nil, nil
	}

	notification := models.Notification{
		UserID:    userID,
		Type:      kind,
		Title:     strings.TrimSpace(input.Title),
		Message:   strings.TrimSpace(input.Message),
		ExpiresAt: input.ExpiresAt,
	}

	if input.Data != nil {
		data, err := json.Marshal(input.Data)
		if err != nil {
			return nil, fmt.Errorf("notification service: marshal data: %w", err)
		}
		notification.Data = datatypes.JSON(data)
	}

	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return nil, fmt.Errorf("notification service: create notification: %w", err)
	}

	metrics.NotificationsCreated.WithLabelValues(kind).Inc()

	dto := mapNotification(notification)
	s.dispatch(func(ctx context.Context) {
		s.broadcaster.Deliver(dto.UserID,
			realtime.NotificationMessage(dto.Type, dto.Title, dto.Message, dto.Data, dto.ID))
	})

	return &dto, nil
}

// CreateBulk persists notifications for every recipient that exists, is
// active, and has the kind's in-app channel enabled, then fans live delivery
// out with bounded concurrency. Safe to call with thousands of recipients.
func (s *NotificationService) CreateBulk(ctx context.Context, input CreateBulkInput) ([]NotificationDTO, error) {
	ctx = ensureContext(ctx)

	kind := strings.TrimSpace(input.Type)
	if kind == "" {
		return nil, apperrors.NewBadRequest("notification type is required")
	}

	candidates := normaliseIDs(input.UserIDs)
	if len(candidates) == 0 {
		return nil, nil
	}

	// Unknown and inactive recipients are skipped silently; a bad id must
	// not fail its bulk siblings.
	var activeIDs []string
	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id IN ? AND is_active = ?", candidates, true).
		Pluck("id", &activeIDs).Error; err != nil {
		return nil, fmt.Errorf("notification service: resolve recipients: %w", err)
	}
	if len(activeIDs) == 0 {
		return nil, nil
	}

	disabled := s.disabledInApp(ctx, activeIDs, kind)

	var payload datatypes.JSON
	if input.Data != nil {
		data, err := json.Marshal(input.Data)
		if err != nil {
			return nil, fmt.Errorf("notification service: marshal data: %w", err)
		}
		payload = datatypes.JSON(data)
	}

	rows := make([]models.Notification, 0, len(activeIDs))
	for _, userID := range activeIDs {
		if _, off := disabled[userID]; off {
			continue
		}
		rows = append(rows, models.Notification{
			UserID:    userID,
			Type:      kind,
			Title:     strings.TrimSpace(input.Title),
			Message:   strings.TrimSpace(input.Message),
			Data:      payload,
			ExpiresAt: input.ExpiresAt,
		})
	}
	if len(rows) == 0 {
		return nil, nil
	}

	if err := s.db.WithContext(ctx).CreateInBatches(&rows, bulkInsertBatchSize).Error; err != nil {
		return nil, fmt.Errorf("notification service: bulk insert: %w", err)
	}

	metrics.NotificationsCreated.WithLabelValues(kind).Add(float64(len(rows)))

	dtos := make([]NotificationDTO, 0, len(rows))
	deliveries := make([]realtime.Delivery, 0, len(rows))
	for _, row := range rows {
		dto := mapNotification(row)
		dtos = append(dtos, dto)
		deliveries = append(deliveries, realtime.Delivery{
			UserID:  dto.UserID,
			Message: realtime.NotificationMessage(dto.Type, dto.Title, dto.Message, dto.Data, dto.ID),
		})
	}

	s.dispatch(func(ctx context.Context) {
		s.broadcaster.DeliverMany(deliveries)
	})

	return dtos, nil
}

// ListForUser returns the user's notifications ordered by recency, excluding
// expired rows.
func (s *NotificationService) ListForUser(ctx context.Context, input ListNotificationsInput) ([]NotificationDTO, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	query := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("expires_at IS NULL OR expires_at > ?", s.now().UTC())
	if input.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var rows []models.Notification
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("notification service: list notifications: %w", err)
	}

	items := make([]NotificationDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapNotification(row))
	}
	return items, nil
}

// MarkRead flags a notification read for its owner. Idempotent: an
// already-read notification is returned unchanged. On the unread-to-read
// transition the user's live connections receive a fresh unread count.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)

	var notification models.Notification
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		First(&notification).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("notification service: load notification: %w", err)
	}

	if notification.IsRead {
		dto := mapNotification(notification)
		return &dto, nil
	}

	now := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(&notification).
		Updates(map[string]any{
			"is_read": true,
			"read_at": now,
		}).Error; err != nil {
		return nil, fmt.Errorf("notification service: mark read: %w", err)
	}

	notification.IsRead = true
	notification.ReadAt = &now
	dto := mapNotification(notification)

	s.pushUnreadCount(userID)
	return &dto, nil
}

// MarkNotificationRead adapts MarkRead for live-session control frames.
func (s *NotificationService) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	_, err := s.MarkRead(ctx, userID, notificationID)
	return err
}

// MarkAllRead flags every unread notification read and returns how many rows
// actually transitioned. One unread-count push (value zero) is emitted rather
// than one per row.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, apperrors.NewBadRequest("user id is required")
	}

	now := s.now().UTC()
	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{
			"is_read": true,
			"read_at": now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("notification service: mark all read: %w", result.Error)
	}

	s.dispatch(func(ctx context.Context) {
		s.broadcaster.Deliver(userID, realtime.UnreadCountMessage(0))
	})

	return result.RowsAffected, nil
}

// Delete removes a notification owned by the supplied user. Returns false
// when the row is missing or owned by someone else, keeping "delete if
// present" call sites simple.
func (s *NotificationService) Delete(ctx context.Context, userID, notificationID string) (bool, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return false, fmt.Errorf("notification service: delete notification: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// UnreadCount returns the number of non-expired unread notifications.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Where("expires_at IS NULL OR expires_at > ?", s.now().UTC()).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("notification service: unread count: %w", err)
	}

	return count, nil
}

// CleanupOlderThan permanently removes read notifications older than the
// cutoff, along with rows whose expiry passed before it. Idempotent and safe
// to run concurrently with normal traffic.
func (s *NotificationService) CleanupOlderThan(ctx context.Context, days int) (int64, error) {
	ctx = ensureContext(ctx)

	if days <= 0 {
		return 0, apperrors.NewBadRequest("retention days must be positive")
	}

	cutoff := s.now().UTC().AddDate(0, 0, -days)
	result := s.db.WithContext(ctx).
		Where("(is_read = ? AND created_at < ?) OR (expires_at IS NOT NULL AND expires_at < ?)",
			true, cutoff, cutoff).
		Delete(&models.Notification{})
	if result.Error != nil {
		return 0, fmt.Errorf("notification service: cleanup: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.log.Info("retention sweep removed notifications",
			zap.Int64("rows", result.RowsAffected),
			zap.Int("retention_days", days))
	}
	return result.RowsAffected, nil
}

// GetPreferences returns the user's explicit preference rows. Kinds without a
// row follow the default-allow policy.
func (s *NotificationService) GetPreferences(ctx context.Context, userID string) ([]models.NotificationPreference, error) {
	ctx = ensureContext(ctx)

	var rows []models.NotificationPreference
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("type ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("notification service: list preferences: %w", err)
	}
	return rows, nil
}

// GetOrUpdatePreference upserts the preference row for (user, kind): created
// lazily with defaults overridden by the provided channels, otherwise patched
// with only the provided channel fields.
func (s *NotificationService) GetOrUpdatePreference(ctx context.Context, userID, kind string, update ChannelUpdate) (*models.NotificationPreference, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	kind = strings.TrimSpace(kind)
	if userID == "" || kind == "" {
		return nil, apperrors.NewBadRequest("user id and notification type are required")
	}

	var pref models.NotificationPreference
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND type = ?", userID, kind).
		First(&pref).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Create with defaults first, then patch below: disabling a channel
		// is an update, which sidesteps gorm skipping zero-value bool
		// columns that carry a default tag.
		pref = models.DefaultNotificationPreference(userID, kind)
		if createErr := s.db.WithContext(ctx).Create(&pref).Error; createErr != nil {
			if !isUniqueConstraintError(createErr) {
				return nil, fmt.Errorf("notification service: create preference: %w", createErr)
			}
			// Lost a concurrent first-update race; patch the winner's row.
			if err := s.db.WithContext(ctx).
				Where("user_id = ? AND type = ?", userID, kind).
				First(&pref).Error; err != nil {
				return nil, fmt.Errorf("notification service: reload preference: %w", err)
			}
		}
	} else if err != nil {
		return nil, fmt.Errorf("notification service: load preference: %w", err)
	}

	fields := channelUpdateFields(update)
	if len(fields) == 0 {
		return &pref, nil
	}

	if err := s.db.WithContext(ctx).Model(&pref).Updates(fields).Error; err != nil {
		return nil, fmt.Errorf("notification service: update preference: %w", err)
	}
	applyChannelUpdate(&pref, update)

	return &pref, nil
}

// verifyRecipient confirms the target user exists and is active.
func (s *NotificationService) verifyRecipient(ctx context.Context, userID string) error {
	var user models.User
	err := s.db.WithContext(ctx).
		Select("id", "is_active").
		Where("id = ?", userID).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrRecipientNotFound
		}
		return fmt.Errorf("notification service: load recipient: %w", err)
	}
	if !user.IsActive {
		return apperrors.ErrRecipientNotFound
	}
	return nil
}

// shouldDeliverInApp decides whether an in-app notification is materialized
// for (user, kind). No preference row means allowed. A failing store read
// fails open: over-delivering beats silently suppressing a real event.
func (s *NotificationService) shouldDeliverInApp(ctx context.Context, userID, kind string) bool {
	var pref models.NotificationPreference
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND type = ?", userID, kind).
		First(&pref).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warn("preference lookup failed, delivering anyway",
				zap.String("user_id", userID),
				zap.String("type", kind),
				zap.Error(err))
		}
		return true
	}

	return pref.InAppEnabled
}

// disabledInApp returns the subset of userIDs with the kind's in-app channel
// explicitly disabled. Query failures fail open with an empty set.
func (s *NotificationService) disabledInApp(ctx context.Context, userIDs []string, kind string) map[string]struct{} {
	var rows []models.NotificationPreference
	if err := s.db.WithContext(ctx).
		Where("user_id IN ? AND type = ? AND in_app_enabled = ?", userIDs, kind, false).
		Find(&rows).Error; err != nil {
		s.log.Warn("bulk preference lookup failed, delivering to all",
			zap.String("type", kind),
			zap.Error(err))
		return nil
	}

	disabled := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		disabled[row.UserID] = struct{}{}
	}
	return disabled
}

// pushUnreadCount sends the user's current unread count to their live
// connections, asynchronously relative to the triggering mutation.
func (s *NotificationService) pushUnreadCount(userID string) {
	s.dispatch(func(ctx context.Context) {
		count, err := s.UnreadCount(ctx, userID)
		if err != nil {
			s.log.Warn("unread count push skipped", zap.String("user_id", userID), zap.Error(err))
			return
		}
		s.broadcaster.Deliver(userID, realtime.UnreadCountMessage(count))
	})
}

// dispatch runs a live-delivery side effect without blocking the caller.
// Without a queue the task runs inline; every send below it is non-blocking.
func (s *NotificationService) dispatch(task workqueue.Task) {
	if s.broadcaster == nil {
		return
	}

	if s.queue != nil {
		if !s.queue.Enqueue(task) {
			s.log.Warn("live delivery task dropped")
		}
		return
	}

	task(context.Background())
}

func applyChannelUpdate(pref *models.NotificationPreference, update ChannelUpdate) {
	if update.EmailEnabled != nil {
		pref.EmailEnabled = *update.EmailEnabled
	}
	if update.PushEnabled != nil {
		pref.PushEnabled = *update.PushEnabled
	}
	if update.InAppEnabled != nil {
		pref.InAppEnabled = *update.InAppEnabled
	}
}

func channelUpdateFields(update ChannelUpdate) map[string]any {
	fields := make(map[string]any, 3)
	if update.EmailEnabled != nil {
		fields["email_enabled"] = *update.EmailEnabled
	}
	if update.PushEnabled != nil {
		fields["push_enabled"] = *update.PushEnabled
	}
	if update.InAppEnabled != nil {
		fields["in_app_enabled"] = *update.InAppEnabled
	}
	return fields
}

func mapNotification(row models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        row.ID,
		UserID:    row.UserID,
		Type:      row.Type,
		Title:     row.Title,
		Message:   row.Message,
		Data:      decodeJSON(row.Data),
		IsRead:    row.IsRead,
		ReadAt:    row.ReadAt,
		ExpiresAt: row.ExpiresAt,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func decodeJSON(data datatypes.JSON) map[string]any {
	if len(data) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
