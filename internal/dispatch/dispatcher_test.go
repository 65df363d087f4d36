package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/dispatch"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/records"
)

func TestDispatchBatch_BoundedConcurrency(t *testing.T) {
	tr := newTransport()
	tr.delay = 10 * time.Millisecond
	d := dispatch.NewDispatcher(tr, tr, staticResolver{}, fastConfig(5))

	results := d.DispatchBatch(context.Background(), makeItems(20), dispatch.BatchOptions{Category: records.CategoryMassive, SendWhatsApp: true})

	require.Len(t, results, 20)
	assert.Equal(t, 40, tr.TotalCalls())
	assert.LessOrEqual(t, tr.peak.Load(), int32(5))
	assert.Greater(t, tr.peak.Load(), int32(1))
}

func TestDispatchBatch_LimiterSharedAcrossBatches(t *testing.T) {
	tr := newTransport()
	tr.delay = 5 * time.Millisecond
	d := dispatch.NewDispatcher(tr, nil, staticResolver{}, fastConfig(3))

	done := make(chan struct{})
	for range 2 {
		go func() {
			d.DispatchBatch(context.Background(), makeItems(10), dispatch.BatchOptions{})
			done <- struct{}{}
		}()
	}
	<-done
	<-done
	assert.LessOrEqual(t, tr.peak.Load(), int32(3))
}

func TestDispatchBatch_RetryExhaustion(t *testing.T) {
	tr := newTransport()
	tr.fail = func(string, int) error { return errors.New("transport down") }
	d := dispatch.NewDispatcher(tr, tr, staticResolver{}, fastConfig(5))

	items := makeItems(1)
	results := d.DispatchBatch(context.Background(), items, dispatch.BatchOptions{SendWhatsApp: true})

	require.Len(t, results, 1)
	assert.Equal(t, 3, tr.Calls(items[0].Contact.Correo))
	assert.Equal(t, 2, tr.Calls(items[0].Contact.Telefono))

	require.NotNil(t, results[0].Email)
	assert.False(t, results[0].Email.OK)
	assert.Equal(t, dispatch.ChannelEmail, results[0].Email.Channel)
	assert.Contains(t, results[0].Email.Error, "transport down")

	require.NotNil(t, results[0].WhatsApp)
	assert.False(t, results[0].WhatsApp.OK)
	assert.Equal(t, dispatch.ChannelWhatsApp, results[0].WhatsApp.Channel)
}

func TestDispatchBatch_FailureDoesNotAffectSiblings(t *testing.T) {
	tr := newTransport()
	tr.fail = func(recipient string, _ int) error {
		if recipient == "user1@example.com" {
			return errors.New("mailbox full")
		}
		return nil
	}
	d := dispatch.NewDispatcher(tr, nil, staticResolver{}, fastConfig(5))

	results := d.DispatchBatch(context.Background(), makeItems(3), dispatch.BatchOptions{})
	assert.True(t, results[0].Email.OK)
	assert.False(t, results[1].Email.OK)
	assert.True(t, results[2].Email.OK)
}

func TestDispatchBatch_ResultsInItemOrder(t *testing.T) {
	tr := newTransport()
	d := dispatch.NewDispatcher(tr, tr, staticResolver{}, fastConfig(5))

	items := makeItems(12)
	results := d.DispatchBatch(context.Background(), items, dispatch.BatchOptions{SendWhatsApp: true})
	for i, r := range results {
		assert.Equal(t, items[i].Contact.Cedula, r.Item.Contact.Cedula)
		assert.Equal(t, items[i].Contact.Correo, r.Email.Recipient)
		assert.Equal(t, items[i].Contact.Telefono, r.WhatsApp.Recipient)
	}
}

func TestDispatchBatch_MissingContactIsSkipped(t *testing.T) {
	tr := newTransport()
	d := dispatch.NewDispatcher(tr, tr, staticResolver{}, fastConfig(5))

	items := makeItems(2)
	items[0].Contact.Correo = ""
	items[1].Contact.Telefono = ""
	results := d.DispatchBatch(context.Background(), items, dispatch.BatchOptions{SendWhatsApp: true})

	assert.Nil(t, results[0].Email)
	assert.NotNil(t, results[0].WhatsApp)
	assert.NotNil(t, results[1].Email)
	assert.Nil(t, results[1].WhatsApp)
	assert.Equal(t, 2, tr.TotalCalls())
}

func TestDispatchBatch_WhatsAppDisabled(t *testing.T) {
	tr := newTransport()
	d := dispatch.NewDispatcher(tr, tr, staticResolver{}, fastConfig(5))

	results := d.DispatchBatch(context.Background(), makeItems(4), dispatch.BatchOptions{SendWhatsApp: false})
	for _, r := range results {
		assert.Nil(t, r.WhatsApp)
	}
	assert.Equal(t, 4, tr.TotalCalls())
}

func TestDispatchBatch_NoWhatsAppTransport(t *testing.T) {
	tr := newTransport()
	d := dispatch.NewDispatcher(tr, nil, staticResolver{}, fastConfig(5))

	results := d.DispatchBatch(context.Background(), makeItems(1), dispatch.BatchOptions{SendWhatsApp: true})
	require.NotNil(t, results[0].WhatsApp)
	assert.False(t, results[0].WhatsApp.OK)
	assert.NotEmpty(t, results[0].WhatsApp.Error)
}

func TestDispatchBatch_PhoneNormalization(t *testing.T) {
	tr := newTransport()
	cfg := fastConfig(5)
	cfg.NormalizePhone = func(raw string) (string, error) {
		if raw == "bad" {
			return "", fmt.Errorf("invalid phone %q", raw)
		}
		return "506" + raw, nil
	}
	d := dispatch.NewDispatcher(tr, tr, staticResolver{}, cfg)

	items := makeItems(2)
	items[1].Contact.Telefono = "bad"
	results := d.DispatchBatch(context.Background(), items, dispatch.BatchOptions{SendWhatsApp: true})

	assert.True(t, results[0].WhatsApp.OK)
	assert.Equal(t, 1, tr.Calls("506"+items[0].Contact.Telefono))
	assert.False(t, results[1].WhatsApp.OK)
	assert.Contains(t, results[1].WhatsApp.Error, "invalid phone")
	assert.Equal(t, 0, tr.Calls("bad"))
}

type panickingResolver struct{}

func (panickingResolver) Resolve(context.Context, records.Category, dispatch.Item, string) (dispatch.Content, error) {
	panic("template exploded")
}

func TestDispatchBatch_PanicBecomesFailedOutcome(t *testing.T) {
	tr := newTransport()
	d := dispatch.NewDispatcher(tr, tr, panickingResolver{}, fastConfig(1))

	results := d.DispatchBatch(context.Background(), makeItems(3), dispatch.BatchOptions{SendWhatsApp: true})
	for _, r := range results {
		assert.False(t, r.Email.OK)
		assert.Contains(t, r.Email.Error, "template exploded")
		assert.True(t, r.WhatsApp.OK)
	}
}

type failingResolver struct{}

func (failingResolver) Resolve(context.Context, records.Category, dispatch.Item, string) (dispatch.Content, error) {
	return dispatch.Content{}, errors.New("unknown template")
}

func TestDispatchBatch_ResolverErrorIsEmailFailure(t *testing.T) {
	tr := newTransport()
	d := dispatch.NewDispatcher(tr, nil, failingResolver{}, fastConfig(5))

	results := d.DispatchBatch(context.Background(), makeItems(1), dispatch.BatchOptions{})
	assert.False(t, results[0].Email.OK)
	assert.Contains(t, results[0].Email.Error, "unknown template")
	assert.Equal(t, 0, tr.TotalCalls())
}

func TestDispatchBatch_CancelledContext(t *testing.T) {
	tr := newTransport()
	d := dispatch.NewDispatcher(tr, nil, staticResolver{}, fastConfig(5))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := d.DispatchBatch(ctx, makeItems(3), dispatch.BatchOptions{})
	for _, r := range results {
		assert.False(t, r.Email.OK)
	}
	assert.Equal(t, 0, tr.TotalCalls())
}
