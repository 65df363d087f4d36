package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/config"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/dispatch"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/models"
)

type memorySettingsRepo struct {
	mu       sync.Mutex
	settings map[string]models.Setting
}

func newMemorySettingsRepo(settings ...models.Setting) *memorySettingsRepo {
	r := &memorySettingsRepo{settings: map[string]models.Setting{}}
	for _, s := range settings {
		r.settings[s.Key] = s
	}
	return r
}

func (r *memorySettingsRepo) All(context.Context) ([]models.Setting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Setting
	for _, s := range r.settings {
		out = append(out, s)
	}
	return out, nil
}

func (r *memorySettingsRepo) Put(_ context.Context, s models.Setting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[s.Key] = s
	return nil
}

var settingsCfg = &config.Config{AppName: "SEGIREC", DispatchBatchSize: 50, DispatchMaxBatches: 4}

func TestSettingsService_BatchPolicyDefaults(t *testing.T) {
	svc := NewSettingsService(newMemorySettingsRepo(), settingsCfg, nil)
	require.NoError(t, svc.Load(context.Background()))

	assert.Equal(t, dispatch.BatchPolicy{Size: 50, MaxBatches: 4}, svc.BatchPolicy(context.Background()))
}

func TestSettingsService_StoredOverrides(t *testing.T) {
	repo := newMemorySettingsRepo(
		models.Setting{Key: SettingBatchSize, Value: int32(25)},
		models.Setting{Key: SettingMaxBatches, Value: float64(8)},
		models.Setting{Key: "ui.banner", Value: "Mantenimiento el sábado", Public: true},
	)
	svc := NewSettingsService(repo, settingsCfg, nil)
	require.NoError(t, svc.Load(context.Background()))

	assert.Equal(t, dispatch.BatchPolicy{Size: 25, MaxBatches: 8}, svc.BatchPolicy(context.Background()))

	public := svc.GetAllPublic(context.Background())
	assert.Equal(t, "SEGIREC", public["APP_NAME"])
	assert.Equal(t, "Mantenimiento el sábado", public["ui.banner"])
	assert.NotContains(t, public, SettingBatchSize)
}

func TestSettingsService_SetValidatesDispatchKeys(t *testing.T) {
	svc := NewSettingsService(newMemorySettingsRepo(), settingsCfg, nil)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Set(ctx, SettingBatchSize, 0, false), ErrInvalidSetting)
	assert.ErrorIs(t, svc.Set(ctx, SettingMaxBatches, "diez", false), ErrInvalidSetting)
	assert.ErrorIs(t, svc.Set(ctx, SettingMaxBatches, 2.5, false), ErrInvalidSetting)

	require.NoError(t, svc.Set(ctx, SettingMaxBatches, float64(6), false))
	assert.Equal(t, 6, svc.BatchPolicy(ctx).MaxBatches)
}

func TestSettingsService_PropagatesThroughPubSub(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	repo := newMemorySettingsRepo()
	writer := NewSettingsService(repo, settingsCfg, rdb)
	reader := NewSettingsService(repo, settingsCfg, rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- reader.SubscribeToChanges(ctx) }()

	require.Eventually(t, func() bool {
		return len(mr.PubSubChannels("*")) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, writer.Set(context.Background(), SettingBatchSize, 10, false))

	assert.Eventually(t, func() bool {
		return reader.BatchPolicy(context.Background()).Size == 10
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not stop")
	}
}
