package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Salman7o/StudyMate-sub001/internal/models"
)

func newTestStore(t *testing.T) (*MessageStore, *gorm.DB) {
	t.Helper()

	// One shared in-memory database per test; a single connection keeps
	// sqlite from fighting itself under concurrent writers.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Conversation{}, &models.Message{}))
	return New(db), db
}

func seedUser(t *testing.T, db *gorm.DB, name, role string) uint {
	t.Helper()
	u := models.User{
		Name:         name,
		Email:        name + "@studymate.test",
		PasswordHash: "x",
		Role:         role,
	}
	require.NoError(t, db.Create(&u).Error)
	return u.ID
}

func TestGetOrCreateConversationPairSymmetry(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, db, "alice", models.RoleStudent)
	bob := seedUser(t, db, "bob", models.RoleTutor)

	c1, err := s.GetOrCreateConversation(ctx, alice, bob)
	require.NoError(t, err)
	c2, err := s.GetOrCreateConversation(ctx, bob, alice)
	require.NoError(t, err)

	require.Equal(t, c1.ID, c2.ID)
	require.Less(t, c1.ParticipantOneID, c1.ParticipantTwoID)

	var count int64
	require.NoError(t, db.Model(&models.Conversation{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestGetOrCreateConversationRejectsBadPairs(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetOrCreateConversation(ctx, 7, 7)
	require.ErrorIs(t, err, ErrValidation)

	_, err = s.GetOrCreateConversation(ctx, 0, 7)
	require.ErrorIs(t, err, ErrValidation)
}

func TestGetOrCreateConversationUnknownUser(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, db, "alice", models.RoleStudent)

	_, err := s.GetOrCreateConversation(ctx, alice, 9999)
	require.ErrorIs(t, err, ErrNotFound)

	var count int64
	require.NoError(t, db.Model(&models.Conversation{}).Count(&count).Error)
	require.EqualValues(t, 0, count)

	// The failed attempt must leave the sender's inbox listable.
	summaries, err := s.ListConversationsForUser(ctx, alice)
	require.NoError(t, err)
	require.Empty(t, summaries)
}

func TestListConversationsSkipsMissingCounterpart(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, db, "alice", models.RoleStudent)
	bob := seedUser(t, db, "bob", models.RoleTutor)

	conv, err := s.GetOrCreateConversation(ctx, alice, bob)
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, conv.ID, bob, alice, "still here")
	require.NoError(t, err)

	// An orphaned pairing (counterpart row gone) must not take the whole
	// listing down with it.
	orphan := models.Conversation{ParticipantOneID: alice, ParticipantTwoID: 9999, LastMessageAt: time.Now()}
	require.NoError(t, db.Create(&orphan).Error)

	summaries, err := s.ListConversationsForUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, conv.ID, summaries[0].Conversation.ID)
}

func TestGetOrCreateConversationConcurrent(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, db, "alice", models.RoleStudent)
	bob := seedUser(t, db, "bob", models.RoleTutor)

	const callers = 8
	ids := make([]uint, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := alice, bob
			if i%2 == 1 {
				a, b = bob, alice
			}
			conv, err := s.GetOrCreateConversation(ctx, a, b)
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = conv.ID
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, ids[0], ids[i])
	}

	var count int64
	require.NoError(t, db.Model(&models.Conversation{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestAppendAndListMessages(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, db, "alice", models.RoleStudent)
	bob := seedUser(t, db, "bob", models.RoleTutor)
	conv, err := s.GetOrCreateConversation(ctx, alice, bob)
	require.NoError(t, err)

	first, err := s.AppendMessage(ctx, conv.ID, alice, bob, "hi")
	require.NoError(t, err)
	require.Equal(t, models.StatusSent, first.Status)
	require.False(t, first.SentAt.IsZero())

	second, err := s.AppendMessage(ctx, conv.ID, bob, alice, "hello back")
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, first.ID, msgs[0].ID)
	require.Equal(t, second.ID, msgs[1].ID)
	for i := 1; i < len(msgs); i++ {
		require.False(t, msgs[i].SentAt.Before(msgs[i-1].SentAt))
	}

	// Appending must touch the conversation's last-message timestamp.
	refreshed, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.False(t, refreshed.LastMessageAt.Before(second.SentAt.Truncate(time.Second)))
}

func TestAppendMessageRejectsEmptyContent(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, db, "alice", models.RoleStudent)
	bob := seedUser(t, db, "bob", models.RoleTutor)
	conv, err := s.GetOrCreateConversation(ctx, alice, bob)
	require.NoError(t, err)

	for _, content := range []string{"", "   ", "\n\t "} {
		_, err := s.AppendMessage(ctx, conv.ID, alice, bob, content)
		require.ErrorIs(t, err, ErrValidation)
	}

	var count int64
	require.NoError(t, db.Model(&models.Message{}).Count(&count).Error)
	require.EqualValues(t, 0, count)
}

func TestAppendMessageUnknownConversation(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, db, "alice", models.RoleStudent)
	bob := seedUser(t, db, "bob", models.RoleTutor)

	_, err := s.AppendMessage(ctx, 999, alice, bob, "into the void")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAdvanceStatusProgression(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, db, "alice", models.RoleStudent)
	bob := seedUser(t, db, "bob", models.RoleTutor)
	conv, err := s.GetOrCreateConversation(ctx, alice, bob)
	require.NoError(t, err)
	msg, err := s.AppendMessage(ctx, conv.ID, alice, bob, "hi")
	require.NoError(t, err)

	delivered, err := s.AdvanceStatus(ctx, msg.ID, models.StatusDelivered)
	require.NoError(t, err)
	require.Equal(t, models.StatusDelivered, delivered.Status)

	read, err := s.AdvanceStatus(ctx, msg.ID, models.StatusRead)
	require.NoError(t, err)
	require.Equal(t, models.StatusRead, read.Status)

	// Regression is rejected and the stored status stays put.
	_, err = s.AdvanceStatus(ctx, msg.ID, models.StatusDelivered)
	require.ErrorIs(t, err, ErrInvalidTransition)

	current, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusRead, current.Status)
}

func TestAdvanceStatusErrors(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	_, err := s.AdvanceStatus(ctx, 42, models.StatusRead)
	require.ErrorIs(t, err, ErrNotFound)

	alice := seedUser(t, db, "alice", models.RoleStudent)
	bob := seedUser(t, db, "bob", models.RoleTutor)
	conv, err := s.GetOrCreateConversation(ctx, alice, bob)
	require.NoError(t, err)
	msg, err := s.AppendMessage(ctx, conv.ID, alice, bob, "hi")
	require.NoError(t, err)

	_, err = s.AdvanceStatus(ctx, msg.ID, "seen")
	require.ErrorIs(t, err, ErrValidation)

	// Same-status "advance" is not forward either.
	_, err = s.AdvanceStatus(ctx, msg.ID, models.StatusSent)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAdvanceStatusConcurrentAdvancesNeverRegress(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, db, "alice", models.RoleStudent)
	bob := seedUser(t, db, "bob", models.RoleTutor)
	conv, err := s.GetOrCreateConversation(ctx, alice, bob)
	require.NoError(t, err)
	msg, err := s.AppendMessage(ctx, conv.ID, alice, bob, "racing receipts")
	require.NoError(t, err)

	// A socket receipt (read) racing slower PATCHes (delivered): whatever
	// the interleaving, the final status must be the highest one written.
	targets := []string{
		models.StatusRead,
		models.StatusDelivered,
		models.StatusDelivered,
		models.StatusRead,
	}
	var wg sync.WaitGroup
	errs := make([]error, len(targets))
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			_, errs[i] = s.AdvanceStatus(ctx, msg.ID, target)
		}(i, target)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, ErrInvalidTransition)
		}
	}

	final, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusRead, final.Status)
}

func TestListConversationsForUser(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, db, "alice", models.RoleStudent)
	bob := seedUser(t, db, "bob", models.RoleTutor)
	carol := seedUser(t, db, "carol", models.RoleTutor)

	convBob, err := s.GetOrCreateConversation(ctx, alice, bob)
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, convBob.ID, bob, alice, "need help with calculus?")
	require.NoError(t, err)

	convCarol, err := s.GetOrCreateConversation(ctx, alice, carol)
	require.NoError(t, err)
	latest, err := s.AppendMessage(ctx, convCarol.ID, carol, alice, "session confirmed")
	require.NoError(t, err)

	summaries, err := s.ListConversationsForUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// Newest activity first.
	require.Equal(t, convCarol.ID, summaries[0].Conversation.ID)
	require.Equal(t, "carol", summaries[0].OtherUser.Name)
	require.NotNil(t, summaries[0].LastMessage)
	require.Equal(t, latest.ID, summaries[0].LastMessage.ID)
	require.EqualValues(t, 1, summaries[0].UnreadCount)

	require.Equal(t, convBob.ID, summaries[1].Conversation.ID)
	require.EqualValues(t, 1, summaries[1].UnreadCount)

	// Reading clears the unread count.
	_, err = s.AdvanceStatus(ctx, latest.ID, models.StatusRead)
	require.NoError(t, err)
	summaries, err = s.ListConversationsForUser(ctx, alice)
	require.NoError(t, err)
	require.EqualValues(t, 0, summaries[0].UnreadCount)
}

func TestOfflineRecipientStillPersisted(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, db, "alice", models.RoleStudent)
	bob := seedUser(t, db, "bob", models.RoleTutor)

	conv, err := s.GetOrCreateConversation(ctx, alice, bob)
	require.NoError(t, err)
	msg, err := s.AppendMessage(ctx, conv.ID, alice, bob, "hello")
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "hello", msgs[0].Content)

	summaries, err := s.ListConversationsForUser(ctx, bob)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, msg.ID, summaries[0].LastMessage.ID)
	require.EqualValues(t, 1, summaries[0].UnreadCount)
}
