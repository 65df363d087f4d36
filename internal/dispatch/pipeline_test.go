package dispatch_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/dispatch"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/records"
)

var actor = dispatch.Actor{ID: "u-1", Email: "ana@example.com", Name: "Ana"}

func newPipeline(tr *countingTransport, deps dispatch.PipelineDeps) *dispatch.Pipeline {
	if deps.Dispatcher == nil {
		deps.Dispatcher = dispatch.NewDispatcher(tr, tr, staticResolver{}, fastConfig(5))
	}
	if deps.Policy == nil {
		deps.Policy = dispatch.StaticPolicy{Size: 50, MaxBatches: 4}
	}
	return dispatch.NewPipeline(deps)
}

func massiveRequest(n int) dispatch.Request {
	return dispatch.Request{
		Category: records.CategoryMassive,
		Records:  massiveRecords(n),
		Subject:  "Aviso",
		Message:  "Hola",
		Actor:    actor,
	}
}

func TestPipeline_PolicyGuard(t *testing.T) {
	tr := newTransport()
	recorder := new(MockRecorder)
	notifier := new(MockNotifier)
	p := newPipeline(tr, dispatch.PipelineDeps{Recorder: recorder, Notifier: notifier})

	run, err := p.Plan(context.Background(), massiveRequest(250))

	assert.Nil(t, run)
	var perr *dispatch.PolicyError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 5, perr.Batches)
	assert.Equal(t, 0, tr.TotalCalls())
	recorder.AssertNotCalled(t, "RecordRun", mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "NotifyStart", mock.Anything, mock.Anything)
}

func TestPipeline_PriorityRun(t *testing.T) {
	tr := newTransport()
	recorder := new(MockRecorder)
	recorder.On("RecordRun", mock.Anything, mock.MatchedBy(func(r dispatch.Report) bool {
		return r.Batches == 2 && r.Items == 60 && r.Summary.Attempts == 60
	})).Once()
	notifier := new(MockNotifier)
	notifier.On("NotifyStart", mock.Anything, mock.Anything).Once()
	notifier.On("NotifyCompletion", mock.Anything, mock.Anything).Once()
	p := newPipeline(tr, dispatch.PipelineDeps{Recorder: recorder, Notifier: notifier})

	req := massiveRequest(60)
	req.PriorityAccess = true
	run, err := p.Plan(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, run.Batches, 2)
	assert.Len(t, run.Batches[0], 50)
	assert.Len(t, run.Batches[1], 10)
	assert.NotEmpty(t, run.ID)

	summary := run.Execute(context.Background())
	assert.Equal(t, 60, summary.Attempts)
	assert.Equal(t, 60, summary.EmailOK)
	assert.Len(t, summary.Rows, 60)
	assert.Equal(t, dispatch.StateDone, run.State())
	recorder.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestPipeline_DebtGrouping(t *testing.T) {
	tr := newTransport()
	p := newPipeline(tr, dispatch.PipelineDeps{})
	svc := "Agua"
	row := func(cedula, finca string, deuda int64) records.FlatRecord {
		return records.FlatRecord{
			Cedula: cedula, Nombre: cedula, Correo: cedula + "@example.com",
			Servicio: &svc, CodigoServicio: "01", NumeroDeFinca: finca,
			ValorDeLaDeuda: decimal.NewFromInt(deuda),
		}
	}

	run, err := p.Plan(context.Background(), dispatch.Request{
		Category: records.CategoryDebt,
		Records:  []records.FlatRecord{row("C001", "F1", 100), row("C002", "F9", 10), row("C001", "F2", 50)},
		Actor:    actor,
	})
	require.NoError(t, err)
	require.Len(t, run.Batches, 1)
	require.Len(t, run.Batches[0], 2)
	assert.Equal(t, "C001", run.Batches[0][0].Contact.Cedula)

	persona := run.Batches[0][0].Bindings["persona"].(map[string]any)
	assert.Equal(t, 150.0, persona["totalDeuda"])
}

func TestPipeline_Validation(t *testing.T) {
	p := newPipeline(newTransport(), dispatch.PipelineDeps{})

	cases := map[string]func(*dispatch.Request){
		"category": func(r *dispatch.Request) { r.Category = "Otro" },
		"personas": func(r *dispatch.Request) { r.Records = nil },
		"actor":    func(r *dispatch.Request) { r.Actor = dispatch.Actor{} },
		"mensaje":  func(r *dispatch.Request) { r.Message = " " },
		"asunto":   func(r *dispatch.Request) { r.Subject = "" },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			req := massiveRequest(1)
			mutate(&req)
			_, err := p.Plan(context.Background(), req)
			var verr *dispatch.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, field, verr.Field)
		})
	}
}

func TestPipeline_NoRowsOfCategory(t *testing.T) {
	p := newPipeline(newTransport(), dispatch.PipelineDeps{})
	_, err := p.Plan(context.Background(), dispatch.Request{
		Category: records.CategoryDebt,
		Records:  massiveRecords(3),
		Actor:    actor,
	})
	var verr *dispatch.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestPipeline_WhatsAppTriState(t *testing.T) {
	for _, sendWhatsApp := range []bool{false, true} {
		tr := newTransport()
		p := newPipeline(tr, dispatch.PipelineDeps{})
		req := massiveRequest(5)
		req.SendWhatsApp = sendWhatsApp

		run, err := p.Plan(context.Background(), req)
		require.NoError(t, err)
		summary := run.Execute(context.Background())

		for _, row := range summary.Rows {
			if sendWhatsApp {
				require.NotNil(t, row.WhatsAppOK)
				assert.True(t, *row.WhatsAppOK)
			} else {
				assert.Nil(t, row.WhatsAppOK)
			}
		}
	}
}

// flakyDispatcher panics on one batch and delegates the rest.
type flakyDispatcher struct {
	next  dispatch.BatchDispatcher
	calls int
	panic int
}

func (f *flakyDispatcher) DispatchBatch(ctx context.Context, batch []dispatch.Item, opts dispatch.BatchOptions) []dispatch.ItemResult {
	f.calls++
	if f.calls == f.panic {
		panic(errors.New("nil map write"))
	}
	return f.next.DispatchBatch(ctx, batch, opts)
}

func TestPipeline_CatastrophicBatchFailure(t *testing.T) {
	tr := newTransport()
	flaky := &flakyDispatcher{next: dispatch.NewDispatcher(tr, tr, staticResolver{}, fastConfig(5)), panic: 2}
	p := newPipeline(tr, dispatch.PipelineDeps{Dispatcher: flaky, Policy: dispatch.StaticPolicy{Size: 10}})

	run, err := p.Plan(context.Background(), massiveRequest(25))
	require.NoError(t, err)
	summary := run.Execute(context.Background())

	assert.Equal(t, 3, flaky.calls)
	assert.Equal(t, 25, summary.Attempts)
	assert.Equal(t, 1, summary.FailedBatches)
	assert.Len(t, summary.Rows, 15)
	assert.Equal(t, "C000", summary.Rows[0].Cedula)
	assert.Equal(t, "C020", summary.Rows[10].Cedula)
}

func TestPipeline_CancelStopsBeforeNextBatch(t *testing.T) {
	tr := newTransport()
	ctx, cancel := context.WithCancel(context.Background())
	tr.fail = func(string, int) error {
		cancel()
		return nil
	}
	recorder := new(MockRecorder)
	recorder.On("RecordRun", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil }), mock.Anything).Once()
	p := newPipeline(tr, dispatch.PipelineDeps{Recorder: recorder, Policy: dispatch.StaticPolicy{Size: 1}})

	run, err := p.Plan(context.Background(), massiveRequest(3))
	require.NoError(t, err)
	summary := run.Execute(ctx)

	assert.Equal(t, 1, summary.Attempts)
	assert.Equal(t, 1, tr.TotalCalls())
	recorder.AssertExpectations(t)
}

func TestPipeline_WhatsAppTemplateFallsBackToSubject(t *testing.T) {
	var got []string
	rec := &templateRecorder{names: &got}
	p := newPipeline(nil, dispatch.PipelineDeps{Dispatcher: rec})

	run, err := p.Plan(context.Background(), massiveRequest(1))
	require.NoError(t, err)
	run.Execute(context.Background())
	assert.Equal(t, []string{"Aviso"}, got)

	got = nil
	p = newPipeline(nil, dispatch.PipelineDeps{Dispatcher: rec, WhatsAppTemplate: "aviso_cobro"})
	run, err = p.Plan(context.Background(), massiveRequest(1))
	require.NoError(t, err)
	run.Execute(context.Background())
	assert.Equal(t, []string{"aviso_cobro"}, got)
}

func TestPipeline_WhatsAppTemplateForDebtRuns(t *testing.T) {
	svc := "Agua"
	req := dispatch.Request{
		Category: records.CategoryDebt,
		Records: []records.FlatRecord{{
			Cedula: "C001", Nombre: "Ana", Correo: "ana@example.com", Telefono: "88887777",
			Servicio: &svc, CodigoServicio: "01", NumeroDeFinca: "F1",
			ValorDeLaDeuda: decimal.NewFromInt(100),
		}},
		SendWhatsApp: true,
		Actor:        actor,
	}

	cases := []struct {
		name string
		deps dispatch.PipelineDeps
		want string
	}{
		{"built-in fallback", dispatch.PipelineDeps{}, dispatch.FallbackSubject},
		{"configured default subject", dispatch.PipelineDeps{DefaultSubject: "Aviso municipal"}, "Aviso municipal"},
		{"configured template", dispatch.PipelineDeps{DefaultSubject: "Aviso municipal", WhatsAppTemplate: "aviso_cobro"}, "aviso_cobro"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got []string
			tc.deps.Dispatcher = &templateRecorder{names: &got}
			p := newPipeline(nil, tc.deps)

			run, err := p.Plan(context.Background(), req)
			require.NoError(t, err)
			run.Execute(context.Background())
			assert.Equal(t, []string{tc.want}, got)
		})
	}
}

type templateRecorder struct {
	names *[]string
}

func (r *templateRecorder) DispatchBatch(ctx context.Context, batch []dispatch.Item, opts dispatch.BatchOptions) []dispatch.ItemResult {
	*r.names = append(*r.names, opts.WhatsAppTemplate)
	results := make([]dispatch.ItemResult, len(batch))
	for i, item := range batch {
		results[i].Item = item
	}
	return results
}
