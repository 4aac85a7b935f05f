package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/storehub-realtime/internal/domain"
	"github.com/tbourn/storehub-realtime/internal/realtime"
	"github.com/tbourn/storehub-realtime/internal/repo"
)

// ---------- test helpers ----------

func newLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:eventsvc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// newChannelWithAudience returns a notification channel with one live
// session in tenant t1.
func newChannelWithAudience(t *testing.T) (*realtime.NotificationChannel, *realtime.Session) {
	t.Helper()
	ch := realtime.NewNotificationChannel(zerolog.Nop(), realtime.NotificationOptions{})
	s := realtime.NewSession("c1", domain.Identity{UserID: "u1", TenantID: "t1"}, 16)
	if err := ch.Connect(context.Background(), s); err != nil {
		t.Fatalf("connect: %v", err)
	}
	<-s.Outbound() // ConnectionConfirmed
	return ch, s
}

func created(order string) domain.OrderEvent {
	return domain.OrderEvent{
		Type:      domain.NotificationCreated,
		TenantID:  "t1",
		OrderID:   order,
		ActorName: "Ana",
	}
}

func pending(s *realtime.Session) int { return len(s.Outbound()) }

type failingNotifier struct{ err error }

func (f failingNotifier) Validate(domain.OrderEvent) error { return nil }
func (f failingNotifier) Publish(context.Context, domain.OrderEvent) (realtime.PublishResult, error) {
	return realtime.PublishResult{}, f.err
}

// ---------- tests ----------

func TestIngest_PublishesWithoutKey(t *testing.T) {
	ch, s := newChannelWithAudience(t)
	svc := &EventService{DB: newLedgerDB(t), Notifier: ch, TTL: time.Hour, Log: zerolog.Nop()}

	for i := 0; i < 2; i++ {
		res, err := svc.Ingest(context.Background(), domain.SourceHTTP, "", created("42"))
		if err != nil {
			t.Fatalf("ingest: %v", err)
		}
		if res.Replayed || res.Targeted != 1 || res.Delivered != 1 || res.NotificationID == "" {
			t.Fatalf("unexpected result: %+v", res)
		}
	}
	if got := pending(s); got != 2 {
		t.Fatalf("expected 2 notifications without dedupe, got %d", got)
	}
}

func TestIngest_ReplayedKeyIsNotRedelivered(t *testing.T) {
	ch, s := newChannelWithAudience(t)
	db := newLedgerDB(t)
	svc := &EventService{DB: db, Notifier: ch, TTL: time.Hour, Log: zerolog.Nop()}
	ctx := context.Background()

	first, err := svc.Ingest(ctx, domain.SourceHTTP, "evt-1", created("42"))
	if err != nil || first.Replayed {
		t.Fatalf("first ingest: res=%+v err=%v", first, err)
	}
	second, err := svc.Ingest(ctx, domain.SourceHTTP, "evt-1", created("42"))
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if !second.Replayed || second.Delivered != 1 || second.NotificationID != "" {
		t.Fatalf("expected replay reporting earlier delivery, got %+v", second)
	}
	if got := pending(s); got != 1 {
		t.Fatalf("expected exactly 1 notification, got %d", got)
	}

	seen, err := svc.Seen(ctx, domain.SourceHTTP, "evt-1", time.Now().UTC())
	if err != nil || !seen {
		t.Fatalf("Seen = %v, %v; want true", seen, err)
	}
	seen, _ = svc.Seen(ctx, domain.SourceAMQP, "evt-1", time.Now().UTC())
	if seen {
		t.Fatalf("keys must be namespaced by source")
	}
}

func TestIngest_InvalidEventClaimsNothing(t *testing.T) {
	ch, _ := newChannelWithAudience(t)
	db := newLedgerDB(t)
	svc := &EventService{DB: db, Notifier: ch, TTL: time.Hour, Log: zerolog.Nop()}

	bad := created("42")
	bad.ActorName = ""
	_, err := svc.Ingest(context.Background(), domain.SourceHTTP, "evt-bad", bad)
	if !errors.Is(err, realtime.ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
	if _, err := repo.GetIdempotency(context.Background(), db, domain.SourceHTTP, "evt-bad", time.Now()); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("invalid event must not be claimed, got %v", err)
	}
}

func TestIngest_LedgerFailureDoesNotPublish(t *testing.T) {
	ch, s := newChannelWithAudience(t)
	db := newLedgerDB(t)
	if err := db.Migrator().DropTable(&domain.Idempotency{}); err != nil {
		t.Fatalf("drop: %v", err)
	}
	svc := &EventService{DB: db, Notifier: ch, TTL: time.Hour, Log: zerolog.Nop()}

	_, err := svc.Ingest(context.Background(), domain.SourceAMQP, "evt-1", created("42"))
	if !errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("expected ErrLedgerUnavailable, got %v", err)
	}
	if got := pending(s); got != 0 {
		t.Fatalf("nothing may be published when the claim fails, got %d", got)
	}
}

func TestIngest_NoAudienceIsNotAnError(t *testing.T) {
	ch := realtime.NewNotificationChannel(zerolog.Nop(), realtime.NotificationOptions{})
	svc := &EventService{Notifier: ch, Log: zerolog.Nop()}

	res, err := svc.Ingest(context.Background(), domain.SourceHTTP, "ignored-without-db", created("42"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Targeted != 0 || res.Delivered != 0 {
		t.Fatalf("expected dropped event, got %+v", res)
	}
}

func TestIngest_PublishErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	svc := &EventService{Notifier: failingNotifier{err: boom}, Log: zerolog.Nop()}
	if _, err := svc.Ingest(context.Background(), domain.SourceHTTP, "", created("1")); !errors.Is(err, boom) {
		t.Fatalf("expected publish error, got %v", err)
	}
}

func TestLedgerStats_And_Sweep(t *testing.T) {
	ch, _ := newChannelWithAudience(t)
	db := newLedgerDB(t)
	now := time.Now().UTC()
	svc := &EventService{DB: db, Notifier: ch, TTL: time.Minute, Log: zerolog.Nop(), Now: func() time.Time { return now }}
	ctx := context.Background()

	for _, k := range []string{"a", "b"} {
		if _, err := svc.Ingest(ctx, domain.SourceHTTP, k, created(k)); err != nil {
			t.Fatalf("ingest %s: %v", k, err)
		}
	}
	count, newest, err := svc.LedgerStats(ctx, "t1")
	if err != nil || count != 2 || newest == nil {
		t.Fatalf("LedgerStats = %d, %v, %v", count, newest, err)
	}

	svc.Now = func() time.Time { return now.Add(2 * time.Minute) }
	purged, err := svc.Sweep(ctx)
	if err != nil || purged != 2 {
		t.Fatalf("Sweep = %d, %v; want 2", purged, err)
	}
	count, newest, _ = svc.LedgerStats(ctx, "t1")
	if count != 0 || newest != nil {
		t.Fatalf("expected empty ledger after sweep, got %d %v", count, newest)
	}
}

func TestNilDB_LedgerHelpersAreNoops(t *testing.T) {
	svc := &EventService{}
	ctx := context.Background()
	if seen, err := svc.Seen(ctx, "http", "k", time.Now()); seen || err != nil {
		t.Fatalf("Seen on nil DB = %v, %v", seen, err)
	}
	if n, err := svc.Sweep(ctx); n != 0 || err != nil {
		t.Fatalf("Sweep on nil DB = %d, %v", n, err)
	}
	if n, ts, err := svc.LedgerStats(ctx, "t1"); n != 0 || ts != nil || err != nil {
		t.Fatalf("LedgerStats on nil DB = %d, %v, %v", n, ts, err)
	}
}

func TestRunSweeper_StopsOnCancel(t *testing.T) {
	svc := &EventService{DB: newLedgerDB(t), Log: zerolog.Nop()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunSweeper did not return after cancel")
	}
}
