package alerts

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/schoolguard/device-guardian/internal/database"
)

// fakeStore implements Store and RecipientStore in memory.
type fakeStore struct {
	mu         sync.Mutex
	nextID     int64
	alerts     []*database.Alert
	insertErr  error
	admins     map[int64][]string
	adminsErr  error
	deliveries []*database.AlertDelivery
}

func newFakeStore() *fakeStore {
	return &fakeStore{admins: make(map[int64][]string)}
}

func (f *fakeStore) InsertAlert(ctx context.Context, a *database.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.nextID++
	a.ID = f.nextID
	a.CreatedAt = time.Now().UTC()
	f.alerts = append(f.alerts, a)
	return nil
}

func (f *fakeStore) AdminEmails(ctx context.Context, schoolID int64) ([]string, error) {
	if f.adminsErr != nil {
		return nil, f.adminsErr
	}
	return f.admins[schoolID], nil
}

func (f *fakeStore) RecordDelivery(ctx context.Context, d *database.AlertDelivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, d)
	return nil
}

func (f *fakeStore) deliveryFor(recipient string) *database.AlertDelivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deliveries {
		if d.Recipient == recipient {
			return d
		}
	}
	return nil
}

// fakeSender records sends and fails for configured recipients.
type fakeSender struct {
	mu       sync.Mutex
	calls    map[string]int
	subjects []string
	failWith map[string]error
	// failTimes fails a recipient this many times before succeeding.
	failTimes map[string]int
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		calls:     make(map[string]int),
		failWith:  make(map[string]error),
		failTimes: make(map[string]int),
	}
}

func (f *fakeSender) Send(ctx context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[to]++
	f.subjects = append(f.subjects, subject)
	if err, ok := f.failWith[to]; ok {
		if n, limited := f.failTimes[to]; !limited || f.calls[to] <= n {
			return err
		}
	}
	return nil
}

func (f *fakeSender) callCount(to string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[to]
}

// fakeDispatcher records dispatched alerts.
type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []*database.Alert
	err        error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, alert *database.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, alert)
	return f.err
}

// fakeSuppressor allows the first request per message.
type fakeSuppressor struct {
	seen map[string]bool
	err  error
}

func (f *fakeSuppressor) Allow(ctx context.Context, req AlertRequest) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[req.Message] {
		return false, nil
	}
	f.seen[req.Message] = true
	return true, nil
}

var errMailbox = errors.New("550 mailbox unavailable")
