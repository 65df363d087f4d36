package audit_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/audit"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/dispatch"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/models"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/records"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateActivity(ctx context.Context, activity *models.Activity) error {
	return m.Called(ctx, activity).Error(0)
}

func (m *MockStore) CreateMessageDetail(ctx context.Context, detail *models.MessageSendDetail) error {
	return m.Called(ctx, detail).Error(0)
}

func (m *MockStore) ListActivities(ctx context.Context, page, limit int) ([]models.ActivityWithDetail, int64, error) {
	args := m.Called(ctx, page, limit)
	return args.Get(0).([]models.ActivityWithDetail), args.Get(1).(int64), args.Error(2)
}

func sampleReport() dispatch.Report {
	yes, no := true, false
	return dispatch.Report{
		RunID:      "run-1",
		Actor:      dispatch.Actor{ID: "user-1", Email: "ana@muni.go.cr"},
		Category:   records.CategoryDebt,
		Items:      2,
		Batches:    1,
		FinishedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Summary: dispatch.Summary{
			Category:   records.CategoryDebt,
			Attempts:   2,
			EmailOK:    1,
			WhatsAppOK: 1,
			Rows: []dispatch.RecipientRow{
				{Nombre: "Ana", Cedula: "101110111", Correo: "a@x.cr", CorreoOK: true, WhatsAppOK: &no},
				{Nombre: "Luis", Cedula: "202220222", Correo: "l@x.cr", WhatsAppOK: &yes},
			},
		},
	}
}

func TestBuild(t *testing.T) {
	activity, detail, err := audit.Build(sampleReport())
	require.NoError(t, err)

	assert.NotEmpty(t, activity.ID)
	assert.Equal(t, "user-1", activity.UserID)
	assert.Equal(t, models.ActivitySendMessages, activity.Type)
	assert.Equal(t, "Envío masivo de Morosidad finalizado", activity.Detail)
	assert.Equal(t, models.StatusSuccess, activity.Status)

	assert.Equal(t, activity.ID, detail.ActivityID)
	assert.Equal(t, "run-1", detail.RunID)
	assert.Equal(t, 2, detail.Messages)
	assert.Equal(t, 1, detail.EmailsOK)
	assert.Equal(t, 1, detail.WhatsAppOK)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(detail.Rows), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "Ana", rows[0]["nombre"])
	assert.Equal(t, false, rows[0]["whatsapp_ok"])
}

func TestBuild_FailedBatchMarksError(t *testing.T) {
	report := sampleReport()
	report.Summary.FailedBatches = 1

	activity, detail, err := audit.Build(report)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, activity.Status)
	assert.Equal(t, 1, detail.FailedGroups)
}

func TestPersister_WritesActivityThenDetail(t *testing.T) {
	store := new(MockStore)
	var activityID string
	store.On("CreateActivity", mock.Anything, mock.AnythingOfType("*models.Activity")).
		Run(func(args mock.Arguments) { activityID = args.Get(1).(*models.Activity).ID }).
		Return(nil).Once()
	store.On("CreateMessageDetail", mock.Anything, mock.MatchedBy(func(d *models.MessageSendDetail) bool {
		return d.ActivityID == activityID && d.Messages == 2
	})).Return(nil).Once()

	audit.NewPersister(store).RecordRun(context.Background(), sampleReport())

	store.AssertExpectations(t)
}

func TestPersister_SwallowsStoreErrors(t *testing.T) {
	store := new(MockStore)
	store.On("CreateActivity", mock.Anything, mock.Anything).Return(errors.New("connection refused")).Once()

	assert.NotPanics(t, func() {
		audit.NewPersister(store).RecordRun(context.Background(), sampleReport())
	})
	store.AssertExpectations(t)
	store.AssertNotCalled(t, "CreateMessageDetail", mock.Anything, mock.Anything)
}

type okDispatcher struct{}

func (okDispatcher) DispatchBatch(_ context.Context, batch []dispatch.Item, _ dispatch.BatchOptions) []dispatch.ItemResult {
	results := make([]dispatch.ItemResult, len(batch))
	for i, item := range batch {
		results[i] = dispatch.ItemResult{
			Item:  item,
			Email: &dispatch.Outcome{Channel: dispatch.ChannelEmail, Recipient: item.Contact.Correo, OK: true},
		}
	}
	return results
}

func TestPipeline_PersistenceFailureStillReturnsSummary(t *testing.T) {
	store := new(MockStore)
	store.On("CreateActivity", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	pipeline := dispatch.NewPipeline(dispatch.PipelineDeps{
		Dispatcher: okDispatcher{},
		Policy:     dispatch.StaticPolicy{Size: 50, MaxBatches: 4},
		Recorder:   audit.NewPersister(store),
	})
	run, err := pipeline.Plan(context.Background(), dispatch.Request{
		Category: records.CategoryMassive,
		Subject:  "Aviso",
		Message:  "Corte de agua programado",
		Actor:    dispatch.Actor{ID: "user-1"},
		Records: []records.FlatRecord{
			{Cedula: "101110111", Nombre: "Ana", Correo: "a@x.cr"},
			{Cedula: "202220222", Nombre: "Luis", Correo: "l@x.cr"},
		},
	})
	require.NoError(t, err)

	summary := run.Execute(context.Background())

	assert.Equal(t, 2, summary.Attempts)
	assert.Equal(t, 2, summary.EmailOK)
	assert.Equal(t, dispatch.StateDone, run.State())
	store.AssertExpectations(t)
}

func TestPageBounds(t *testing.T) {
	tests := []struct {
		page, limit         int
		wantPage, wantLimit int
	}{
		{0, 0, 1, audit.DefaultPageSize},
		{3, 10, 3, 10},
		{-2, 500, 1, audit.MaxPageSize},
	}
	for _, tt := range tests {
		page, limit := audit.PageBounds(tt.page, tt.limit)
		assert.Equal(t, tt.wantPage, page)
		assert.Equal(t, tt.wantLimit, limit)
	}
}
