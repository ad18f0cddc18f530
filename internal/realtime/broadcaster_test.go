package realtime

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func drain(s *Session) []Message {
	var out []Message
	for {
		select {
		case msg := <-s.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestDeliverWithNoSessionsIsNoop(t *testing.T) {
	registry := NewRegistry()
	b := NewBroadcaster(registry)

	// Must complete without error and without side effects.
	b.Deliver("nobody", UnreadCountMessage(3))
	require.Equal(t, 0, registry.TotalConnectionCount())
}

func TestDeliverReachesAllSessionsOfUser(t *testing.T) {
	registry := NewRegistry()
	s1 := newTestSession(registry, "user-1")
	s2 := newTestSession(registry, "user-1")
	registry.Register("user-1", s1)
	registry.Register("user-1", s2)

	b := NewBroadcaster(registry)
	b.Deliver("user-1", UnreadCountMessage(3))

	for _, s := range []*Session{s1, s2} {
		msgs := drain(s)
		require.Len(t, msgs, 1)
		require.Equal(t, TypeUnreadCount, msgs[0].Type)
		require.EqualValues(t, 3, *msgs[0].Count)
	}
}

func TestDeliverAfterCloseOnlyReachesSurvivors(t *testing.T) {
	registry := NewRegistry()
	s1 := newTestSession(registry, "user-1")
	s2 := newTestSession(registry, "user-1")
	registry.Register("user-1", s1)
	registry.Register("user-1", s2)

	b := NewBroadcaster(registry)
	s1.Close()
	b.Deliver("user-1", UnreadCountMessage(1))

	require.Empty(t, drain(s1))
	require.Len(t, drain(s2), 1)
}

func TestDeliverSkipsDeadSessionWithoutAbortingSiblings(t *testing.T) {
	registry := NewRegistry()
	dead := newSession(registry, nil, nil, "user-1", 1, zap.NewNop())
	alive := newTestSession(registry, "user-1")
	registry.Register("user-1", dead)
	registry.Register("user-1", alive)

	// Saturate the dead session's single-slot buffer so the next send fails.
	require.True(t, dead.Send(UnreadCountMessage(0)))

	b := NewBroadcaster(registry)
	b.Deliver("user-1", UnreadCountMessage(9))

	require.Len(t, drain(alive), 1)
	require.False(t, registry.IsUserConnected("user-1") && len(registry.SessionsFor("user-1")) == 2)
}

func TestDeliverBulkIndependentPerUser(t *testing.T) {
	registry := NewRegistry()
	sessions := map[string]*Session{}
	for _, userID := range []string{"u1", "u2", "u3"} {
		s := newTestSession(registry, userID)
		registry.Register(userID, s)
		sessions[userID] = s
	}

	// u2's only session is already dead.
	sessions["u2"].Close()

	b := NewBroadcaster(registry, WithFanoutConcurrency(2))
	b.DeliverBulk([]string{"u1", "u2", "u3"}, UnreadCountMessage(5))

	require.Len(t, drain(sessions["u1"]), 1)
	require.Empty(t, drain(sessions["u2"]))
	require.Len(t, drain(sessions["u3"]), 1)
}

func TestBroadcastSystemAnnouncementReachesEveryConnectedUser(t *testing.T) {
	registry := NewRegistry()
	s1 := newTestSession(registry, "u1")
	s2 := newTestSession(registry, "u2")
	registry.Register("u1", s1)
	registry.Register("u2", s2)

	b := NewBroadcaster(registry)
	b.BroadcastSystemAnnouncement("Maintenance", "Back in 5 minutes", map[string]any{"window": "5m"})

	for _, s := range []*Session{s1, s2} {
		msgs := drain(s)
		require.Len(t, msgs, 1)
		require.Equal(t, TypeNotification, msgs[0].Type)
		require.Equal(t, "system_announcement", msgs[0].NotificationType)
		require.Equal(t, "Maintenance", msgs[0].Title)
	}
}
