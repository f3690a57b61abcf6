package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/memstore"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	drained   chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{queue: msgs, drained: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	if len(r.queue) == 0 {
		select {
		case <-r.drained:
		default:
			close(r.drained)
		}
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func catalogMessage(id, body string) kafka.Message {
	return kafka.Message{
		Topic:   CatalogTopic,
		Value:   []byte(body),
		Headers: []kafka.Header{{Key: kafkax.HeaderEventID, Value: []byte(id)}},
	}
}

const validCatalog = `{
	"business_id": "biz-1",
	"working_hours": [{"day_of_week": 1, "start_time": "09:00", "end_time": "17:00:00"}],
	"services": [{"id": "cut", "name": "Haircut", "duration_minutes": 45, "price_cents": 2500}]
}`

func TestDecodeCatalog(t *testing.T) {
	upd, err := decodeCatalog([]byte(validCatalog))
	if err != nil {
		t.Fatalf("decodeCatalog: %v", err)
	}
	if upd.EntityID != "biz-1" || len(upd.WorkingHours) != 1 || upd.WorkingHours[0].DayOfWeek != time.Monday {
		t.Fatalf("unexpected update %+v", upd)
	}
	if !upd.Services[0].Active || upd.Services[0].BusinessID != "biz-1" {
		t.Fatalf("unexpected service %+v", upd.Services[0])
	}

	staff, err := decodeCatalog([]byte(`{"business_id": "biz-1", "staff_id": "staff-9"}`))
	if err != nil || staff.EntityID != "staff-9" {
		t.Fatalf("expected staff entity, got %+v (%v)", staff, err)
	}

	for _, bad := range []string{
		`not json`,
		`{"working_hours": []}`,
		`{"business_id": "b", "working_hours": [{"day_of_week": 7, "start_time": "09:00", "end_time": "10:00"}]}`,
		`{"business_id": "b", "working_hours": [{"day_of_week": 1, "start_time": "9am", "end_time": "10:00"}]}`,
		`{"business_id": "b", "working_hours": [{"day_of_week": 1, "start_time": "09:00", "end_time": "10:00"}, {"day_of_week": 1, "start_time": "13:00", "end_time": "17:00"}]}`,
		`{"business_id": "b", "services": [{"id": "x", "duration_minutes": 0}]}`,
	} {
		if _, err := decodeCatalog([]byte(bad)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", bad, err)
		}
	}
}

func TestRunAppliesCatalogOnce(t *testing.T) {
	store := memstore.New()
	reader := newFakeReader(
		catalogMessage("evt-1", validCatalog),
		catalogMessage("evt-2", `garbage`),
		catalogMessage("evt-1", validCatalog),
	)
	c := New(reader, discard, CatalogHandler(store, discard))
	c.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	select {
	case <-reader.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not drain the queue")
	}
	cancel()
	<-done

	if len(reader.committed) != 3 {
		t.Fatalf("expected every message to be committed, got %d", len(reader.committed))
	}
	wh, ok, _ := store.WorkingHours(context.Background(), "biz-1", time.Monday)
	if !ok || wh.EndTime != "17:00:00" {
		t.Fatalf("catalog not applied: %+v", wh)
	}
}

func TestProcessRetriesTransientErrors(t *testing.T) {
	calls := 0
	c := New(newFakeReader(), discard, func(context.Context, kafkax.EventMeta, kafka.Message) error {
		calls++
		if calls < 2 {
			return errors.New("db down")
		}
		return nil
	})
	c.retryDelay = time.Millisecond
	c.process(context.Background(), catalogMessage("evt-1", validCatalog))
	if calls != 2 {
		t.Fatalf("expected one retry, got %d calls", calls)
	}

	calls = 0
	c.handler = func(context.Context, kafkax.EventMeta, kafka.Message) error {
		calls++
		return ErrMalformed
	}
	c.process(context.Background(), catalogMessage("evt-2", "x"))
	if calls != 1 {
		t.Fatalf("malformed events must not be retried, got %d calls", calls)
	}
}

func TestCatalogForStaffOfAnotherBusinessIsDropped(t *testing.T) {
	store := memstore.New()
	store.PutWorkingHours(model.WorkingHours{EntityID: "staff-9", BusinessID: "biz-2", DayOfWeek: time.Monday, StartTime: "10:00", EndTime: "12:00"})
	handle := CatalogHandler(store, discard)

	msg := catalogMessage("evt-1", `{"business_id": "biz-1", "staff_id": "staff-9",
		"working_hours": [{"day_of_week": 1, "start_time": "06:00", "end_time": "07:00"}]}`)
	if err := handle(context.Background(), kafkax.Meta(msg), msg); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	wh, ok, _ := store.WorkingHours(context.Background(), "staff-9", time.Monday)
	if !ok || wh.BusinessID != "biz-2" || wh.StartTime != "10:00" {
		t.Fatalf("owner's hours must be untouched, got %+v", wh)
	}
}
