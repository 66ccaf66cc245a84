package logger

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestTenantBufferRoutesByField(t *testing.T) {
	buf := NewTenantBuffer(10, nil)
	log := zap.New(buf.Core()).Sugar()

	t1 := uuid.New()
	log.With(TenantField, t1).Infow("user created", "user_id", "u-1")
	log.Infow("no tenant here")
	log.Warnw("denied", TenantField, "t-2")

	got := buf.Latest(t1.String(), 10)
	if len(got) != 1 {
		t.Fatalf("tenant 1 entries = %d, want 1", len(got))
	}
	if got[0].Message != "user created" || got[0].Fields["user_id"] != "u-1" {
		t.Fatalf("unexpected entry %+v", got[0])
	}
	if got := buf.Latest("t-2", 10); len(got) != 1 || got[0].Level != "warn" {
		t.Fatalf("tenant 2 entries = %+v", got)
	}
}

func TestTenantBufferLatestDrainsMostRecent(t *testing.T) {
	buf := NewTenantBuffer(3, nil)
	log := zap.New(buf.Core()).Sugar().With(TenantField, "acme")
	for _, m := range []string{"a", "b", "c", "d"} {
		log.Info(m)
	}

	got := buf.Latest("acme", 2)
	if len(got) != 2 || got[0].Message != "c" || got[1].Message != "d" {
		t.Fatalf("latest = %+v", got)
	}
	rest := buf.Latest("acme", 10)
	if len(rest) != 1 || rest[0].Message != "b" {
		t.Fatalf("remaining = %+v", rest)
	}
}

func TestTenantBufferCleanup(t *testing.T) {
	buf := NewTenantBuffer(5, nil)
	buf.append("old", BufferedEntry{Time: time.Now().Add(-2 * time.Hour), Message: "stale"})
	buf.append("new", BufferedEntry{Time: time.Now(), Message: "fresh"})

	buf.Cleanup(time.Hour)

	if _, ok := buf.rings.Load("old"); ok {
		t.Fatal("empty ring was not removed")
	}
	if got := buf.Latest("new", 5); len(got) != 1 {
		t.Fatalf("fresh entries = %d, want 1", len(got))
	}
}

// Entries written while Cleanup retires an emptied ring land in a fresh
// ring instead of vanishing with the old one.
func TestTenantBufferCleanupKeepsConcurrentWrites(t *testing.T) {
	const writers, perWriter = 4, 500
	buf := NewTenantBuffer(writers*perWriter, nil)

	var (
		drained int
		wg      sync.WaitGroup
	)
	done, stopped := make(chan struct{}), make(chan struct{})
	go func() {
		defer close(stopped)
		for {
			select {
			case <-done:
				return
			default:
			}
			drained += len(buf.Latest("acme", writers*perWriter))
			buf.Cleanup(time.Hour)
		}
	}()

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				buf.append("acme", BufferedEntry{Time: time.Now(), Message: "m"})
			}
		}()
	}
	wg.Wait()
	close(done)
	<-stopped

	total := drained + len(buf.Latest("acme", writers*perWriter))
	if total != writers*perWriter {
		t.Fatalf("kept %d of %d entries", total, writers*perWriter)
	}
}

func TestTenantBufferHonoursLevel(t *testing.T) {
	buf := NewTenantBuffer(10, zapcore.WarnLevel)
	log := zap.New(buf.Core()).Sugar().With(TenantField, "acme")
	log.Debug("noise")
	log.Info("chatter")
	log.Warn("kept")

	got := buf.Latest("acme", 10)
	if len(got) != 1 || got[0].Message != "kept" {
		t.Fatalf("entries = %+v", got)
	}
	if NewTenantBuffer(1, nil).Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("default buffer captures debug entries")
	}
}
