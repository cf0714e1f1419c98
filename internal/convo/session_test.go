package convo

import (
	"database/sql"
	"testing"
	"time"

	"github.com/obolbot/obol/internal/store"
	_ "modernc.org/sqlite"
)

func setupTracker(t *testing.T) (*SessionTracker, *store.Store) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st, err := store.New(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return NewSessionTracker(st, nil), st
}

func TestTouchOpensFirstDialog(t *testing.T) {
	tr, _ := setupTracker(t)

	d, opened, err := tr.Touch(1, time.Now())
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if !opened || d == nil || !d.Open {
		t.Errorf("first touch: dialog=%+v opened=%v", d, opened)
	}
}

func TestTouchJoinsWithinIdleWindow(t *testing.T) {
	tr, st := setupTracker(t)
	now := time.Now()

	first, _, err := tr.Touch(1, now)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.AppendTurn(&store.Turn{DialogID: first.ID, UserID: 1, Role: store.RoleUser, Text: "hi", CreatedAt: now}); err != nil {
		t.Fatal(err)
	}

	again, opened, err := tr.Touch(1, now.Add(10*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if opened || again.ID != first.ID {
		t.Errorf("expected to join dialog %s, got %s (opened=%v)", first.ID, again.ID, opened)
	}
}

func TestTouchRotatesStaleDialog(t *testing.T) {
	tr, st := setupTracker(t)
	now := time.Now()

	first, _, err := tr.Touch(1, now)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.AppendTurn(&store.Turn{DialogID: first.ID, UserID: 1, Role: store.RoleUser, Text: "hi", CreatedAt: now}); err != nil {
		t.Fatal(err)
	}

	later := now.Add(31 * time.Minute)
	second, opened, err := tr.Touch(1, later)
	if err != nil {
		t.Fatal(err)
	}
	if !opened || second.ID == first.ID {
		t.Errorf("expected fresh dialog after idle window, got %s (opened=%v)", second.ID, opened)
	}

	// The stale dialog must be closed, leaving exactly one open.
	cur, err := st.CurrentDialog(1)
	if err != nil {
		t.Fatal(err)
	}
	if cur == nil || cur.ID != second.ID {
		t.Errorf("current dialog = %+v, want %s", cur, second.ID)
	}
}

func TestSetTopicOnce(t *testing.T) {
	tr, st := setupTracker(t)
	d, _, err := tr.Touch(1, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	if err := tr.SetTopicOnce(d.ID, "CRYPTO_INFO"); err != nil {
		t.Fatal(err)
	}
	if err := tr.SetTopicOnce(d.ID, "SETUP_ALERT"); err != nil {
		t.Fatal(err)
	}

	cur, err := st.CurrentDialog(1)
	if err != nil {
		t.Fatal(err)
	}
	if cur.Topic != "CRYPTO_INFO" {
		t.Errorf("topic = %q, want CRYPTO_INFO", cur.Topic)
	}
}

func TestMaybeHintMessageCadence(t *testing.T) {
	tr, _ := setupTracker(t)
	d, _, err := tr.Touch(1, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	var hints int
	for i := 0; i < 25; i++ {
		show, err := tr.MaybeHint(d, now)
		if err != nil {
			t.Fatalf("maybe hint: %v", err)
		}
		if show {
			hints++
		}
	}
	// 25 messages at a 10-message cadence: hints on message 10 and 20.
	if hints != 2 {
		t.Errorf("hints shown = %d, want 2", hints)
	}
}

func TestMaybeHintTimeCadence(t *testing.T) {
	tr, _ := setupTracker(t)
	d, _, err := tr.Touch(1, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	for i := 0; i < 10; i++ {
		if _, err := tr.MaybeHint(d, now); err != nil {
			t.Fatal(err)
		}
	}
	// The 10th message showed a hint; the very next message should not.
	show, err := tr.MaybeHint(d, now.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if show {
		t.Error("hint shown during cooldown")
	}

	// Six hours later the time cadence fires even with few messages.
	show, err = tr.MaybeHint(d, now.Add(hintEvery+time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if !show {
		t.Error("hint not shown after time cadence elapsed")
	}
}

func TestHintResetOnNewDialog(t *testing.T) {
	tr, st := setupTracker(t)
	now := time.Now()

	d, _, err := tr.Touch(1, now)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 9; i++ {
		if _, err := tr.MaybeHint(d, now); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.AppendTurn(&store.Turn{DialogID: d.ID, UserID: 1, Role: store.RoleUser, Text: "x", CreatedAt: now}); err != nil {
		t.Fatal(err)
	}

	// New dialog after the idle window: counters start over, so the
	// next message is 1 of 10, no hint.
	fresh, opened, err := tr.Touch(1, now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if !opened {
		t.Fatal("expected new dialog")
	}
	show, err := tr.MaybeHint(fresh, now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if show {
		t.Error("hint counters leaked across dialogs")
	}
}
