package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/records"
)

// State is a step of the run state machine. A run only moves forward.
type State string

const (
	StateValidating  State = "validating"
	StateGrouping    State = "grouping"
	StateBatching    State = "batching"
	StateDispatching State = "dispatching"
	StateAggregating State = "aggregating"
	StatePersisting  State = "persisting"
	StateNotifying   State = "notifying"
	StateDone        State = "done"
)

// ValidationError rejects a request before any dispatch.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Actor is the authenticated user who started a run.
type Actor struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Request is everything needed to plan a run. It is JSON encodable so it can
// travel as a queued task payload.
type Request struct {
	RunID          string               `json:"runId,omitempty"`
	Category       records.Category     `json:"category"`
	Records        []records.FlatRecord `json:"records"`
	Subject        string               `json:"subject,omitempty"`
	Message        string               `json:"message,omitempty"`
	Actor          Actor                `json:"actor"`
	PriorityAccess bool                 `json:"priorityAccess"`
	SendWhatsApp   bool                 `json:"sendWhatsApp"`
}

// Report describes a run to the audit and notification hooks.
type Report struct {
	RunID      string
	Actor      Actor
	Category   records.Category
	Items      int
	Batches    int
	StartedAt  time.Time
	FinishedAt time.Time
	Summary    Summary
}

// PolicySource supplies the batch policy in force when a run is planned.
type PolicySource interface {
	BatchPolicy(ctx context.Context) BatchPolicy
}

// StaticPolicy is a PolicySource that never changes.
type StaticPolicy BatchPolicy

func (p StaticPolicy) BatchPolicy(context.Context) BatchPolicy { return BatchPolicy(p) }

// Recorder persists a finished run. Implementations log their own failures.
type Recorder interface {
	RecordRun(ctx context.Context, report Report)
}

// Notifier tells the actor about a run. Implementations log their own failures.
type Notifier interface {
	NotifyStart(ctx context.Context, report Report)
	NotifyCompletion(ctx context.Context, report Report)
}

// PipelineDeps wires a Pipeline. Recorder and Notifier are optional.
type PipelineDeps struct {
	Dispatcher BatchDispatcher
	Policy     PolicySource
	Recorder   Recorder
	Notifier   Notifier
	// WhatsAppTemplate is the provider template name. When empty, massive
	// runs use their subject and the other categories use DefaultSubject.
	WhatsAppTemplate string
	DefaultSubject   string
}

// FallbackSubject names runs that carry no subject of their own.
const FallbackSubject = "Notificación Sistema"

// Pipeline plans and executes runs.
type Pipeline struct {
	deps PipelineDeps
}

// NewPipeline creates a Pipeline.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{deps: deps}
}

// Run is a planned unit of work. Execute it once.
type Run struct {
	ID      string
	Request Request
	Batches [][]Item

	pipeline *Pipeline
	items    int
	mu       sync.Mutex
	state    State
}

// Plan validates, groups and batches req. It returns a *ValidationError or a
// *PolicyError when the run must not start; nothing has been sent at that point.
func (p *Pipeline) Plan(ctx context.Context, req Request) (*Run, error) {
	run := &Run{Request: req, pipeline: p, state: StateValidating}
	if err := validate(req); err != nil {
		return nil, err
	}

	run.setState(StateGrouping)
	items := buildItems(req)
	if len(items) == 0 {
		return nil, &ValidationError{Field: "personas", Message: fmt.Sprintf("no hay registros válidos de %s", req.Category)}
	}

	run.setState(StateBatching)
	batches, err := p.deps.Policy.BatchPolicy(ctx).Plan(items, req.PriorityAccess)
	if err != nil {
		return nil, err
	}

	run.ID = req.RunID
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.Request.RunID = run.ID
	run.Batches = batches
	run.items = len(items)
	return run, nil
}

func validate(req Request) error {
	switch {
	case !req.Category.Valid():
		return &ValidationError{Field: "category", Message: fmt.Sprintf("categoría desconocida %q", req.Category)}
	case len(req.Records) == 0:
		return &ValidationError{Field: "personas", Message: "Debe enviar una lista de personas"}
	case req.Actor.ID == "":
		return &ValidationError{Field: "actor", Message: "usuario no identificado"}
	case req.Category == records.CategoryMassive && strings.TrimSpace(req.Message) == "":
		return &ValidationError{Field: "mensaje", Message: "Se requiere un mensaje válido"}
	case req.Category == records.CategoryMassive && strings.TrimSpace(req.Subject) == "":
		return &ValidationError{Field: "asunto", Message: "Se requiere un asunto válido"}
	}
	return nil
}

func buildItems(req Request) []Item {
	var items []Item
	switch req.Category {
	case records.CategoryDebt:
		for _, p := range records.GroupDebt(req.Records) {
			items = append(items, Item{Contact: p.Contact, Bindings: map[string]any{"persona": p.Bindings()}})
		}
	case records.CategoryProperty:
		for _, p := range records.GroupProperty(req.Records) {
			items = append(items, Item{Contact: p.Contact, Bindings: map[string]any{"persona": p.Bindings()}})
		}
	case records.CategoryMassive:
		for _, r := range req.Records {
			items = append(items, Item{
				Contact:  r.Contact(),
				Bindings: map[string]any{"persona": r.Bindings(), "mensaje": req.Message},
			})
		}
	}
	return items
}

// State returns the step the run is in.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (p *Pipeline) whatsAppFallback(req Request) string {
	if req.Category == records.CategoryMassive && req.Subject != "" {
		return req.Subject
	}
	if p.deps.DefaultSubject != "" {
		return p.deps.DefaultSubject
	}
	return FallbackSubject
}

func (r *Run) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *Run) report() Report {
	return Report{
		RunID:    r.ID,
		Actor:    r.Request.Actor,
		Category: r.Request.Category,
		Items:    r.items,
		Batches:  len(r.Batches),
	}
}

// Execute sends every batch in order, then records and notifies. Cancelling
// ctx stops the loop before the next batch; audit and notification still run.
func (r *Run) Execute(ctx context.Context) Summary {
	p := r.pipeline
	report := r.report()
	report.StartedAt = time.Now()
	logger := log.WithFields(log.Fields{"run": r.ID, "category": r.Request.Category, "actor": r.Request.Actor.ID})

	r.setState(StateDispatching)
	if p.deps.Notifier != nil {
		p.deps.Notifier.NotifyStart(ctx, report)
	}

	opts := BatchOptions{
		Category:         r.Request.Category,
		SendWhatsApp:     r.Request.SendWhatsApp,
		Subject:          r.Request.Subject,
		WhatsAppTemplate: p.deps.WhatsAppTemplate,
	}
	if opts.WhatsAppTemplate == "" {
		opts.WhatsAppTemplate = p.whatsAppFallback(r.Request)
	}

	agg := NewAggregator(r.Request.Category, r.Request.SendWhatsApp)
	for i, batch := range r.Batches {
		if err := ctx.Err(); err != nil {
			logger.Warnf("Run stopped before batch %d/%d: %v", i+1, len(r.Batches), err)
			break
		}
		results, err := p.dispatchBatch(ctx, batch, opts)
		if err != nil {
			logger.Errorf("Batch %d/%d failed: %v", i+1, len(r.Batches), err)
			agg.AddFailedBatch(len(batch))
			continue
		}
		agg.AddBatch(results)
		logger.Infof("Batch %d/%d done (%d items)", i+1, len(r.Batches), len(batch))
	}

	r.setState(StateAggregating)
	report.Summary = agg.Summary()
	report.FinishedAt = time.Now()

	// Audit and report outlive cancellation of the run.
	after := context.WithoutCancel(ctx)

	r.setState(StatePersisting)
	if p.deps.Recorder != nil {
		p.deps.Recorder.RecordRun(after, report)
	}

	r.setState(StateNotifying)
	if p.deps.Notifier != nil {
		p.deps.Notifier.NotifyCompletion(after, report)
	}

	r.setState(StateDone)
	logger.Infof("Run finished: %d attempted, %d emails, %d WhatsApp", report.Summary.Attempts, report.Summary.EmailOK, report.Summary.WhatsAppOK)
	return report.Summary
}

func (p *Pipeline) dispatchBatch(ctx context.Context, batch []Item, opts BatchOptions) (results []ItemResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	results = p.deps.Dispatcher.DispatchBatch(ctx, batch, opts)
	if len(results) != len(batch) {
		return nil, fmt.Errorf("dispatcher returned %d results for %d items", len(results), len(batch))
	}
	return results, nil
}
