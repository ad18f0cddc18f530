package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lazynerd-007/lpv1-sub000/internal/database/testutil"
	"github.com/lazynerd-007/lpv1-sub000/internal/models"
	"github.com/lazynerd-007/lpv1-sub000/internal/realtime"
	apperrors "github.com/lazynerd-007/lpv1-sub000/pkg/errors"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T) (*NotificationService, *gorm.DB, *testClock) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	svc, err := NewNotificationService(db, nil, nil, WithClock(clock.Now))
	require.NoError(t, err)
	return svc, db, clock
}

func createTestUser(t *testing.T, db *gorm.DB, username string) string {
	t.Helper()

	user := models.User{
		Username: username,
		Email:    username + "@example.com",
		IsActive: true,
	}
	require.NoError(t, db.Create(&user).Error)
	return user.ID
}

func deactivateUser(t *testing.T, db *gorm.DB, userID string) {
	t.Helper()
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", userID).
		Update("is_active", false).Error)
}

func setCreatedAt(t *testing.T, db *gorm.DB, notificationID string, at time.Time) {
	t.Helper()
	require.NoError(t, db.Model(&models.Notification{}).Where("id = ?", notificationID).
		Update("created_at", at).Error)
}

func TestCreatePersistsNotification(t *testing.T) {
	svc, db, _ := newTestService(t)
	userID := createTestUser(t, db, "alice")

	dto, err := svc.Create(context.Background(), CreateNotificationInput{
		UserID:  userID,
		Type:    models.NotificationReviewVote,
		Title:   "Your review got a vote",
		Message: "Someone found your review helpful",
		Data:    map[string]any{"review_id": "rev-42"},
	})
	require.NoError(t, err)
	require.NotNil(t, dto)
	require.NotEmpty(t, dto.ID)
	require.Equal(t, userID, dto.UserID)
	require.Equal(t, models.NotificationReviewVote, dto.Type)
	require.False(t, dto.IsRead)
	require.Nil(t, dto.ReadAt)
	require.Equal(t, "rev-42", dto.Data["review_id"])

	var stored models.Notification
	require.NoError(t, db.First(&stored, "id = ?", dto.ID).Error)
	require.Equal(t, userID, stored.UserID)
	require.False(t, stored.IsRead)
}

func TestCreateRejectsUnknownRecipient(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), CreateNotificationInput{
		UserID:  "11111111-1111-1111-1111-111111111111",
		Type:    models.NotificationNewFollower,
		Title:   "New follower",
		Message: "bob started following you",
	})
	require.ErrorIs(t, err, apperrors.ErrRecipientNotFound)
}

func TestCreateRejectsInactiveRecipient(t *testing.T) {
	svc, db, _ := newTestService(t)
	userID := createTestUser(t, db, "carol")
	deactivateUser(t, db, userID)

	_, err := svc.Create(context.Background(), CreateNotificationInput{
		UserID:  userID,
		Type:    models.NotificationNewFollower,
		Title:   "New follower",
		Message: "bob started following you",
	})
	require.ErrorIs(t, err, apperrors.ErrRecipientNotFound)
}

func TestCreateSkipsDisabledKind(t *testing.T) {
	svc, db, _ := newTestService(t)
	userID := createTestUser(t, db, "dave")

	off := false
	_, err := svc.GetOrUpdatePreference(context.Background(), userID,
		models.NotificationNewsletter, ChannelUpdate{InAppEnabled: &off})
	require.NoError(t, err)

	dto, err := svc.Create(context.Background(), CreateNotificationInput{
		UserID:  userID,
		Type:    models.NotificationNewsletter,
		Title:   "Weekly digest",
		Message: "Fresh reviews this week",
	})
	require.NoError(t, err)
	require.Nil(t, dto)

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).
		Where("user_id = ?", userID).Count(&count).Error)
	require.Zero(t, count)
}

func TestCreateDisabledKindDoesNotSuppressOthers(t *testing.T) {
	svc, db, _ := newTestService(t)
	userID := createTestUser(t, db, "erin")

	off := false
	_, err := svc.GetOrUpdatePreference(context.Background(), userID,
		models.NotificationNewsletter, ChannelUpdate{InAppEnabled: &off})
	require.NoError(t, err)

	dto, err := svc.Create(context.Background(), CreateNotificationInput{
		UserID:  userID,
		Type:    models.NotificationReviewComment,
		Title:   "New comment",
		Message: "frank replied to your review",
	})
	require.NoError(t, err)
	require.NotNil(t, dto)
}

func TestCreateDefaultAllowWithoutPreferenceRow(t *testing.T) {
	svc, db, _ := newTestService(t)
	userID := createTestUser(t, db, "grace")

	dto, err := svc.Create(context.Background(), CreateNotificationInput{
		UserID:  userID,
		Type:    models.NotificationMovieAdded,
		Title:   "New movie",
		Message: "A movie on your watchlist was added",
	})
	require.NoError(t, err)
	require.NotNil(t, dto)
}

func TestCreateBulkSkipsUnknownInactiveAndDisabled(t *testing.T) {
	svc, db, _ := newTestService(t)
	active1 := createTestUser(t, db, "henry")
	active2 := createTestUser(t, db, "iris")
	optedOut := createTestUser(t, db, "judy")
	inactive := createTestUser(t, db, "kyle")
	deactivateUser(t, db, inactive)

	off := false
	_, err := svc.GetOrUpdatePreference(context.Background(), optedOut,
		models.NotificationSystemAnnouncement, ChannelUpdate{InAppEnabled: &off})
	require.NoError(t, err)

	dtos, err := svc.CreateBulk(context.Background(), CreateBulkInput{
		UserIDs: []string{active1, active2, optedOut, inactive, "no-such-user", active1},
		Type:    models.NotificationSystemAnnouncement,
		Title:   "Maintenance window",
		Message: "Service pauses at midnight UTC",
	})
	require.NoError(t, err)
	require.Len(t, dtos, 2)

	recipients := map[string]bool{}
	for _, dto := range dtos {
		recipients[dto.UserID] = true
	}
	require.True(t, recipients[active1])
	require.True(t, recipients[active2])

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&count).Error)
	require.EqualValues(t, 2, count)
}

func TestCreateBulkWithNoResolvableRecipients(t *testing.T) {
	svc, _, _ := newTestService(t)

	dtos, err := svc.CreateBulk(context.Background(), CreateBulkInput{
		UserIDs: []string{"missing-1", "missing-2"},
		Type:    models.NotificationMovieAdded,
		Title:   "New movie",
		Message: "Now streaming",
	})
	require.NoError(t, err)
	require.Empty(t, dtos)
}

func TestListForUserOrdersNewestFirst(t *testing.T) {
	svc, db, clock := newTestService(t)
	userID := createTestUser(t, db, "lena")

	base := clock.Now()
	ids := make([]string, 0, 3)
	for i, title := range []string{"first", "second", "third"} {
		dto, err := svc.Create(context.Background(), CreateNotificationInput{
			UserID:  userID,
			Type:    models.NotificationReviewComment,
			Title:   title,
			Message: "comment",
		})
		require.NoError(t, err)
		setCreatedAt(t, db, dto.ID, base.Add(time.Duration(i)*time.Minute))
		ids = append(ids, dto.ID)
	}

	items, err := svc.ListForUser(context.Background(), ListNotificationsInput{UserID: userID})
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, ids[2], items[0].ID)
	require.Equal(t, ids[1], items[1].ID)
	require.Equal(t, ids[0], items[2].ID)
}

func TestListForUserUnreadOnlyAndPagination(t *testing.T) {
	svc, db, clock := newTestService(t)
	userID := createTestUser(t, db, "mona")

	base := clock.Now()
	var readID string
	for i := 0; i < 5; i++ {
		dto, err := svc.Create(context.Background(), CreateNotificationInput{
			UserID:  userID,
			Type:    models.NotificationReviewVote,
			Title:   "vote",
			Message: "vote",
		})
		require.NoError(t, err)
		setCreatedAt(t, db, dto.ID, base.Add(time.Duration(i)*time.Minute))
		if i == 0 {
			readID = dto.ID
		}
	}

	_, err := svc.MarkRead(context.Background(), userID, readID)
	require.NoError(t, err)

	unread, err := svc.ListForUser(context.Background(), ListNotificationsInput{
		UserID:     userID,
		UnreadOnly: true,
	})
	require.NoError(t, err)
	require.Len(t, unread, 4)
	for _, item := range unread {
		require.False(t, item.IsRead)
	}

	page, err := svc.ListForUser(context.Background(), ListNotificationsInput{
		UserID: userID,
		Limit:  2,
		Offset: 2,
	})
	require.NoError(t, err)
	require.Len(t, page, 2)
}

func TestListForUserExcludesExpired(t *testing.T) {
	svc, db, clock := newTestService(t)
	userID := createTestUser(t, db, "nina")

	soon := clock.Now().Add(time.Hour)
	_, err := svc.Create(context.Background(), CreateNotificationInput{
		UserID:    userID,
		Type:      models.NotificationMovieAdded,
		Title:     "ephemeral",
		Message:   "gone in an hour",
		ExpiresAt: &soon,
	})
	require.NoError(t, err)

	items, err := svc.ListForUser(context.Background(), ListNotificationsInput{UserID: userID})
	require.NoError(t, err)
	require.Len(t, items, 1)

	clock.Advance(2 * time.Hour)
	items, err = svc.ListForUser(context.Background(), ListNotificationsInput{UserID: userID})
	require.NoError(t, err)
	require.Empty(t, items)

	count, err := svc.UnreadCount(context.Background(), userID)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	svc, db, clock := newTestService(t)
	userID := createTestUser(t, db, "olga")

	dto, err := svc.Create(context.Background(), CreateNotificationInput{
		UserID:  userID,
		Type:    models.NotificationNewFollower,
		Title:   "New follower",
		Message: "pete started following you",
	})
	require.NoError(t, err)

	first, err := svc.MarkRead(context.Background(), userID, dto.ID)
	require.NoError(t, err)
	require.True(t, first.IsRead)
	require.NotNil(t, first.ReadAt)
	firstReadAt := *first.ReadAt

	clock.Advance(time.Hour)
	second, err := svc.MarkRead(context.Background(), userID, dto.ID)
	require.NoError(t, err)
	require.True(t, second.IsRead)
	require.NotNil(t, second.ReadAt)
	require.True(t, firstReadAt.Equal(*second.ReadAt))
}

func TestMarkReadCrossUserIsNotFound(t *testing.T) {
	svc, db, _ := newTestService(t)
	owner := createTestUser(t, db, "quinn")
	other := createTestUser(t, db, "ruth")

	dto, err := svc.Create(context.Background(), CreateNotificationInput{
		UserID:  owner,
		Type:    models.NotificationModerationAction,
		Title:   "Review hidden",
		Message: "A moderator hid your review",
	})
	require.NoError(t, err)

	_, err = svc.MarkRead(context.Background(), other, dto.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	count, err := svc.UnreadCount(context.Background(), owner)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestMarkAllRead(t *testing.T) {
	svc, db, _ := newTestService(t)
	userID := createTestUser(t, db, "sven")

	for i := 0; i < 3; i++ {
		_, err := svc.Create(context.Background(), CreateNotificationInput{
			UserID:  userID,
			Type:    models.NotificationReviewVote,
			Title:   "vote",
			Message: "vote",
		})
		require.NoError(t, err)
	}

	affected, err := svc.MarkAllRead(context.Background(), userID)
	require.NoError(t, err)
	require.EqualValues(t, 3, affected)

	count, err := svc.UnreadCount(context.Background(), userID)
	require.NoError(t, err)
	require.Zero(t, count)

	affected, err = svc.MarkAllRead(context.Background(), userID)
	require.NoError(t, err)
	require.Zero(t, affected)
}

func TestDeleteScopedToOwner(t *testing.T) {
	svc, db, _ := newTestService(t)
	owner := createTestUser(t, db, "tara")
	other := createTestUser(t, db, "uma")

	dto, err := svc.Create(context.Background(), CreateNotificationInput{
		UserID:  owner,
		Type:    models.NotificationReviewComment,
		Title:   "comment",
		Message: "comment",
	})
	require.NoError(t, err)

	deleted, err := svc.Delete(context.Background(), other, dto.ID)
	require.NoError(t, err)
	require.False(t, deleted)

	deleted, err = svc.Delete(context.Background(), owner, dto.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = svc.Delete(context.Background(), owner, dto.ID)
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestCleanupOlderThanRemovesOnlyStaleRows(t *testing.T) {
	svc, db, clock := newTestService(t)
	userID := createTestUser(t, db, "vera")

	mk := func(title string) string {
		dto, err := svc.Create(context.Background(), CreateNotificationInput{
			UserID:  userID,
			Type:    models.NotificationReviewVote,
			Title:   title,
			Message: title,
		})
		require.NoError(t, err)
		return dto.ID
	}

	oldRead := mk("old read")
	oldUnread := mk("old unread")
	recentRead := mk("recent read")

	past := clock.Now().AddDate(0, 0, -45)
	setCreatedAt(t, db, oldRead, past)
	setCreatedAt(t, db, oldUnread, past)

	_, err := svc.MarkRead(context.Background(), userID, oldRead)
	require.NoError(t, err)
	_, err = svc.MarkRead(context.Background(), userID, recentRead)
	require.NoError(t, err)

	longExpired := clock.Now().AddDate(0, 0, -60)
	expiredDTO, err := svc.Create(context.Background(), CreateNotificationInput{
		UserID:    userID,
		Type:      models.NotificationMovieAdded,
		Title:     "expired",
		Message:   "expired",
		ExpiresAt: &longExpired,
	})
	require.NoError(t, err)

	removed, err := svc.CleanupOlderThan(context.Background(), 30)
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	var remaining []models.Notification
	require.NoError(t, db.Where("user_id = ?", userID).Find(&remaining).Error)
	require.Len(t, remaining, 2)
	for _, row := range remaining {
		require.NotEqual(t, oldRead, row.ID)
		require.NotEqual(t, expiredDTO.ID, row.ID)
	}
}

func TestCleanupRejectsNonPositiveRetention(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CleanupOlderThan(context.Background(), 0)
	require.Error(t, err)
}

func TestGetOrUpdatePreferenceLazyCreateThenPatch(t *testing.T) {
	svc, db, _ := newTestService(t)
	userID := createTestUser(t, db, "wendy")

	off := false
	pref, err := svc.GetOrUpdatePreference(context.Background(), userID,
		models.NotificationNewsletter, ChannelUpdate{InAppEnabled: &off})
	require.NoError(t, err)
	require.False(t, pref.InAppEnabled)
	require.True(t, pref.EmailEnabled)
	require.True(t, pref.PushEnabled)

	var stored models.NotificationPreference
	require.NoError(t, db.Where("user_id = ? AND type = ?", userID,
		models.NotificationNewsletter).First(&stored).Error)
	require.False(t, stored.InAppEnabled)

	pref, err = svc.GetOrUpdatePreference(context.Background(), userID,
		models.NotificationNewsletter, ChannelUpdate{EmailEnabled: &off})
	require.NoError(t, err)
	require.False(t, pref.EmailEnabled)
	require.False(t, pref.InAppEnabled)
	require.True(t, pref.PushEnabled)

	prefs, err := svc.GetPreferences(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, prefs, 1)
}

func TestGetOrUpdatePreferenceWithoutChangesReturnsCurrent(t *testing.T) {
	svc, db, _ := newTestService(t)
	userID := createTestUser(t, db, "xena")

	pref, err := svc.GetOrUpdatePreference(context.Background(), userID,
		models.NotificationReviewVote, ChannelUpdate{})
	require.NoError(t, err)
	require.True(t, pref.InAppEnabled)
	require.True(t, pref.EmailEnabled)
	require.True(t, pref.PushEnabled)
}

// Exercises the full live path: a websocket client connected through the hub
// observes the frames produced by service mutations.
func TestServicePushesLiveFrames(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	registry := realtime.NewRegistry()
	broadcaster := realtime.NewBroadcaster(registry)

	svc, err := NewNotificationService(db, broadcaster, nil)
	require.NoError(t, err)

	userID := createTestUser(t, db, "yuri")
	hub := realtime.NewHub(registry, svc)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(userID, w, r)
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	readFrame := func() realtime.Message {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg realtime.Message
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	require.Equal(t, realtime.TypeConnectionEstablished, readFrame().Type)

	initial := readFrame()
	require.Equal(t, realtime.TypeUnreadCount, initial.Type)
	require.EqualValues(t, 0, *initial.Count)

	dto, err := svc.Create(context.Background(), CreateNotificationInput{
		UserID:  userID,
		Type:    models.NotificationNewFollower,
		Title:   "New follower",
		Message: "zoe started following you",
		Data:    map[string]any{"follower_id": "zoe"},
	})
	require.NoError(t, err)

	pushed := readFrame()
	require.Equal(t, realtime.TypeNotification, pushed.Type)
	require.Equal(t, models.NotificationNewFollower, pushed.NotificationType)
	require.Equal(t, dto.ID, pushed.NotificationID)
	require.Equal(t, "zoe", pushed.Data["follower_id"])

	_, err = svc.MarkRead(context.Background(), userID, dto.ID)
	require.NoError(t, err)

	counted := readFrame()
	require.Equal(t, realtime.TypeUnreadCount, counted.Type)
	require.EqualValues(t, 0, *counted.Count)
}
