package dispatch_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/dispatch"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/email"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/records"
)

// countingTransport implements both Mailer and WhatsAppSender. It records
// calls per recipient and the peak number of concurrent calls.
type countingTransport struct {
	delay time.Duration
	fail  func(recipient string, attempt int) error

	inFlight atomic.Int32
	peak     atomic.Int32

	mu    sync.Mutex
	calls map[string]int
}

func newTransport() *countingTransport {
	return &countingTransport{calls: make(map[string]int)}
}

func (t *countingTransport) do(recipient string) error {
	n := t.inFlight.Add(1)
	defer t.inFlight.Add(-1)
	for {
		p := t.peak.Load()
		if n <= p || t.peak.CompareAndSwap(p, n) {
			break
		}
	}

	t.mu.Lock()
	t.calls[recipient]++
	attempt := t.calls[recipient]
	t.mu.Unlock()

	if t.delay > 0 {
		time.Sleep(t.delay)
	}
	if t.fail != nil {
		return t.fail(recipient, attempt)
	}
	return nil
}

func (t *countingTransport) Send(ctx context.Context, msg email.Message) error {
	return t.do(msg.To[0])
}

func (t *countingTransport) SendTemplate(ctx context.Context, phone, template string, data map[string]any) (string, error) {
	if err := t.do(phone); err != nil {
		return "", err
	}
	return "wamid." + phone, nil
}

func (t *countingTransport) Calls(recipient string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[recipient]
}

func (t *countingTransport) TotalCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for _, n := range t.calls {
		total += n
	}
	return total
}

type staticResolver struct{}

func (staticResolver) Resolve(ctx context.Context, category records.Category, item dispatch.Item, runSubject string) (dispatch.Content, error) {
	return dispatch.Content{Subject: "Aviso", HTML: "<p>" + item.Contact.Nombre + "</p>"}, nil
}

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) RecordRun(ctx context.Context, report dispatch.Report) {
	m.Called(ctx, report)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyStart(ctx context.Context, report dispatch.Report) {
	m.Called(ctx, report)
}

func (m *MockNotifier) NotifyCompletion(ctx context.Context, report dispatch.Report) {
	m.Called(ctx, report)
}

func fastConfig(concurrency int) dispatch.DispatcherConfig {
	return dispatch.DispatcherConfig{
		Concurrency:   concurrency,
		EmailRetry:    dispatch.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond},
		WhatsAppRetry: dispatch.RetryPolicy{Attempts: 2, BaseDelay: time.Millisecond},
	}
}

func makeItems(n int) []dispatch.Item {
	items := make([]dispatch.Item, n)
	for i := range items {
		items[i] = dispatch.Item{
			Contact: records.Contact{
				Cedula:   fmt.Sprintf("C%03d", i),
				Nombre:   fmt.Sprintf("Persona %d", i),
				Correo:   fmt.Sprintf("user%d@example.com", i),
				Telefono: fmt.Sprintf("8800%04d", i),
			},
		}
	}
	return items
}

// massiveRecords builds n ungrouped rows for a massive run.
func massiveRecords(n int) []records.FlatRecord {
	rows := make([]records.FlatRecord, n)
	for i := range rows {
		rows[i] = records.FlatRecord{
			Cedula:   fmt.Sprintf("C%03d", i),
			Nombre:   fmt.Sprintf("Persona %d", i),
			Correo:   fmt.Sprintf("user%d@example.com", i),
			Telefono: fmt.Sprintf("8800%04d", i),
		}
	}
	return rows
}
