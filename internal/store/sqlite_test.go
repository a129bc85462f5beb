package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/eroshenko/chatdesk/internal/domain"
)

func setupStore(t *testing.T) Repository {
	t.Helper()

	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})
	return repo
}

func TestGetSessionByKeyMissing(t *testing.T) {
	repo := setupStore(t)

	sess, err := repo.GetSessionByKey(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetSessionByKey failed: %v", err)
	}
	if sess != nil {
		t.Errorf("Expected nil session for unknown key, got %+v", sess)
	}
}

func TestGetOrCreateSession(t *testing.T) {
	repo := setupStore(t)
	ctx := context.Background()

	first, err := repo.GetOrCreateSession(ctx, "sess-1", "web")
	if err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}
	if first.ID == 0 {
		t.Error("Expected session ID to be set")
	}
	if first.Status != domain.SessionActive {
		t.Errorf("Expected ACTIVE status, got %q", first.Status)
	}

	second, err := repo.GetOrCreateSession(ctx, "sess-1", "web")
	if err != nil {
		t.Fatalf("Second GetOrCreateSession failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("Expected same session, got IDs %d and %d", first.ID, second.ID)
	}
}

func TestGetOrCreateSessionConcurrent(t *testing.T) {
	repo := setupStore(t)
	ctx := context.Background()

	const workers = 10
	ids := make([]int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := repo.GetOrCreateSession(ctx, "shared-key", "web")
			if err != nil {
				t.Errorf("Concurrent GetOrCreateSession failed: %v", err)
				return
			}
			ids[i] = sess.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("Concurrent callers observed different sessions: %v", ids)
		}
	}
}

func TestEndSessionIdempotent(t *testing.T) {
	repo := setupStore(t)
	ctx := context.Background()

	sess, err := repo.GetOrCreateSession(ctx, "sess-end", "web")
	if err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}

	if err := repo.EndSession(ctx, sess.SessionKey); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	ended, err := repo.GetSessionByKey(ctx, sess.SessionKey)
	if err != nil {
		t.Fatalf("GetSessionByKey failed: %v", err)
	}
	if ended.Status != domain.SessionEnded {
		t.Errorf("Expected ENDED status, got %q", ended.Status)
	}
	if ended.EndedAt == nil {
		t.Error("Expected ended_at to be set")
	}

	// Ending again must not fail or change anything.
	if err := repo.EndSession(ctx, sess.SessionKey); err != nil {
		t.Fatalf("Second EndSession failed: %v", err)
	}
}

func TestEndIdleSessions(t *testing.T) {
	repo := setupStore(t)
	ctx := context.Background()

	stale := &domain.Session{SessionKey: "stale", Platform: "web", StartedAt: time.Now().Add(-48 * time.Hour)}
	if err := repo.CreateSession(ctx, stale); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	busy := &domain.Session{SessionKey: "busy", Platform: "web", StartedAt: time.Now().Add(-48 * time.Hour)}
	if err := repo.CreateSession(ctx, busy); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := repo.AppendMessage(ctx, &domain.Message{SessionID: busy.ID, Sender: domain.SenderUser, Text: "still here"}); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	if _, err := repo.GetOrCreateSession(ctx, "fresh", "web"); err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}

	ended, err := repo.EndIdleSessions(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("EndIdleSessions failed: %v", err)
	}
	if len(ended) != 1 || ended[0] != stale.ID {
		t.Fatalf("Expected only stale session %d ended, got %v", stale.ID, ended)
	}

	for key, want := range map[string]string{"stale": domain.SessionEnded, "busy": domain.SessionActive, "fresh": domain.SessionActive} {
		sess, err := repo.GetSessionByKey(ctx, key)
		if err != nil {
			t.Fatalf("GetSessionByKey %q failed: %v", key, err)
		}
		if sess.Status != want {
			t.Errorf("Session %q: expected status %q, got %q", key, want, sess.Status)
		}
	}
}

func TestAppendAndListMessages(t *testing.T) {
	repo := setupStore(t)
	ctx := context.Background()

	sess, err := repo.GetOrCreateSession(ctx, "sess-msgs", "web")
	if err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}

	userMsg := &domain.Message{
		SessionID: sess.ID,
		Sender:    domain.SenderUser,
		Text:      "where is my order?",
		CreatedAt: time.Now().Add(-2 * time.Second),
	}
	if err := repo.AppendMessage(ctx, userMsg); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if userMsg.ID == 0 {
		t.Error("Expected message ID to be set")
	}

	botMsg := &domain.Message{
		SessionID:  sess.ID,
		Sender:     domain.SenderBot,
		Text:       "Handling intent: order_status",
		Intent:     "order_status",
		Confidence: 0.92,
		Entities:   map[string]string{"order_id": "A-17"},
	}
	if err := repo.AppendMessage(ctx, botMsg); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	msgs, err := repo.ListMessages(ctx, sess.ID, 0)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Sender != domain.SenderUser || msgs[1].Sender != domain.SenderBot {
		t.Errorf("Expected chronological order user then bot, got %q then %q", msgs[0].Sender, msgs[1].Sender)
	}
	if msgs[1].Intent != "order_status" {
		t.Errorf("Expected intent order_status, got %q", msgs[1].Intent)
	}
	if msgs[1].Entities["order_id"] != "A-17" {
		t.Errorf("Expected entities to round-trip, got %v", msgs[1].Entities)
	}
	if msgs[0].Language != "en" {
		t.Errorf("Expected default language en, got %q", msgs[0].Language)
	}

	limited, err := repo.ListMessages(ctx, sess.ID, 1)
	if err != nil {
		t.Fatalf("ListMessages with limit failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Expected 1 message with limit, got %d", len(limited))
	}
}

func TestEscalationLifecycle(t *testing.T) {
	repo := setupStore(t)
	ctx := context.Background()

	sess, err := repo.GetOrCreateSession(ctx, "sess-esc", "web")
	if err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}

	assigned, err := repo.AssignedEscalation(ctx, sess.ID)
	if err != nil {
		t.Fatalf("AssignedEscalation failed: %v", err)
	}
	if assigned != nil {
		t.Fatalf("Expected no assigned escalation, got %+v", assigned)
	}

	agentID := int64(5)
	now := time.Now()
	esc := &domain.Escalation{
		SessionID:  sess.ID,
		Reason:     "Low confidence or user requested human",
		Priority:   "medium",
		Status:     domain.EscalationAssigned,
		AssignedTo: &agentID,
		AssignedAt: &now,
	}
	if err := repo.CreateEscalation(ctx, esc); err != nil {
		t.Fatalf("CreateEscalation failed: %v", err)
	}
	if esc.ID == 0 {
		t.Error("Expected escalation ID to be set")
	}

	assigned, err = repo.AssignedEscalation(ctx, sess.ID)
	if err != nil {
		t.Fatalf("AssignedEscalation failed: %v", err)
	}
	if assigned == nil || assigned.ID != esc.ID {
		t.Fatalf("Expected escalation %d to be visible, got %+v", esc.ID, assigned)
	}
	if assigned.AssignedTo == nil || *assigned.AssignedTo != agentID {
		t.Errorf("Expected assignment to agent %d, got %+v", agentID, assigned.AssignedTo)
	}

	count, err := repo.CountAssignedEscalations(ctx, agentID)
	if err != nil {
		t.Fatalf("CountAssignedEscalations failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected load 1, got %d", count)
	}

	if err := repo.ResolveEscalation(ctx, esc.ID, "handled by phone"); err != nil {
		t.Fatalf("ResolveEscalation failed: %v", err)
	}

	assigned, err = repo.AssignedEscalation(ctx, sess.ID)
	if err != nil {
		t.Fatalf("AssignedEscalation failed: %v", err)
	}
	if assigned != nil {
		t.Errorf("Expected no assigned escalation after resolution, got %+v", assigned)
	}
	count, err = repo.CountAssignedEscalations(ctx, agentID)
	if err != nil {
		t.Fatalf("CountAssignedEscalations failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected load 0 after resolution, got %d", count)
	}

	// Resolving again must fail: the row is no longer assigned.
	if err := repo.ResolveEscalation(ctx, esc.ID, "again"); err == nil {
		t.Error("Expected error resolving an already-resolved escalation")
	}
}

func TestCreateUnassignedEscalation(t *testing.T) {
	repo := setupStore(t)
	ctx := context.Background()

	sess, err := repo.GetOrCreateSession(ctx, "sess-pending", "web")
	if err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}

	esc := &domain.Escalation{
		SessionID: sess.ID,
		Reason:    "Low confidence or user requested human",
		Priority:  "medium",
		Status:    domain.EscalationPending,
	}
	if err := repo.CreateEscalation(ctx, esc); err != nil {
		t.Fatalf("CreateEscalation failed: %v", err)
	}

	// Pending rows do not count as an active handoff.
	assigned, err := repo.AssignedEscalation(ctx, sess.ID)
	if err != nil {
		t.Fatalf("AssignedEscalation failed: %v", err)
	}
	if assigned != nil {
		t.Errorf("Expected pending escalation to be invisible, got %+v", assigned)
	}
}

func TestCreateFeedback(t *testing.T) {
	repo := setupStore(t)
	ctx := context.Background()

	sess, err := repo.GetOrCreateSession(ctx, "sess-fb", "web")
	if err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}

	fb := &domain.Feedback{
		SessionID:    sess.ID,
		Rating:       4,
		FeedbackType: "rating",
		Comment:      "quick answer",
	}
	if err := repo.CreateFeedback(ctx, fb); err != nil {
		t.Fatalf("CreateFeedback failed: %v", err)
	}
	if fb.ID == 0 {
		t.Error("Expected feedback ID to be set")
	}
}
