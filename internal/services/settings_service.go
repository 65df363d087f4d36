package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/config"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/dispatch"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/models"
)

// Setting keys that override dispatch defaults at runtime.
const (
	SettingBatchSize  = "dispatch.batch_size"
	SettingMaxBatches = "dispatch.max_batches"
)

const (
	settingsCollection    = "settings"
	settingsUpdateChannel = "settings_updates"
)

var ErrInvalidSetting = errors.New("invalid setting value")

// SettingsRepository is where settings are persisted.
type SettingsRepository interface {
	All(ctx context.Context) ([]models.Setting, error)
	Put(ctx context.Context, setting models.Setting) error
}

// ISettingsService reads and writes runtime settings. It also supplies the
// batch policy of every new run.
type ISettingsService interface {
	dispatch.PolicySource
	Load(ctx context.Context) error
	GetAllPublic(ctx context.Context) map[string]any
	GetInt(key string, defaultValue int) int
	Set(ctx context.Context, key string, value any, public bool) error
	SubscribeToChanges(ctx context.Context) error
}

type settingsService struct {
	repo  SettingsRepository
	cfg   *config.Config
	rdb   *redis.Client
	cache map[string]models.Setting
	mutex sync.RWMutex
}

// NewSettingsService creates the service. rdb may be nil, in which case
// changes made by other instances are only seen after a reload.
func NewSettingsService(repo SettingsRepository, cfg *config.Config, rdb *redis.Client) ISettingsService {
	return &settingsService{
		repo:  repo,
		cfg:   cfg,
		rdb:   rdb,
		cache: make(map[string]models.Setting),
	}
}

// Load replaces the cache with what is stored.
func (s *settingsService) Load(ctx context.Context) error {
	settings, err := s.repo.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	cache := make(map[string]models.Setting, len(settings))
	for _, st := range settings {
		cache[st.Key] = st
	}

	s.mutex.Lock()
	s.cache = cache
	s.mutex.Unlock()
	log.Debugf("Loaded %d settings", len(cache))
	return nil
}

func (s *settingsService) GetAllPublic(ctx context.Context) map[string]any {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	out := map[string]any{"APP_NAME": s.cfg.AppName}
	for key, st := range s.cache {
		if st.Public {
			out[key] = st.Value
		}
	}
	return out
}

// GetInt returns a cached integer setting. Mongo may hand back any numeric type.
func (s *settingsService) GetInt(key string, defaultValue int) int {
	s.mutex.RLock()
	st, ok := s.cache[key]
	s.mutex.RUnlock()
	if !ok {
		return defaultValue
	}
	n, ok := toInt(st.Value)
	if !ok {
		log.Warnf("Setting %s is not an integer (%T), using default", key, st.Value)
		return defaultValue
	}
	return n
}

// BatchPolicy implements dispatch.PolicySource.
func (s *settingsService) BatchPolicy(context.Context) dispatch.BatchPolicy {
	return dispatch.BatchPolicy{
		Size:       s.GetInt(SettingBatchSize, s.cfg.DispatchBatchSize),
		MaxBatches: s.GetInt(SettingMaxBatches, s.cfg.DispatchMaxBatches),
	}
}

// Set stores a setting, updates the local cache and tells other instances.
func (s *settingsService) Set(ctx context.Context, key string, value any, public bool) error {
	if key == SettingBatchSize || key == SettingMaxBatches {
		n, ok := toInt(value)
		if !ok || n <= 0 {
			return fmt.Errorf("%w: %s must be a positive integer", ErrInvalidSetting, key)
		}
		value = n
	}

	setting := models.Setting{Key: key, Value: value, Public: public}
	if err := s.repo.Put(ctx, setting); err != nil {
		return fmt.Errorf("failed to store setting %s: %w", key, err)
	}

	s.mutex.Lock()
	s.cache[key] = setting
	s.mutex.Unlock()

	if s.rdb != nil {
		if err := s.rdb.Publish(ctx, settingsUpdateChannel, key).Err(); err != nil {
			log.Warnf("Failed to publish update for setting %s: %v", key, err)
		}
	}
	log.Infof("Setting %s updated", key)
	return nil
}

// SubscribeToChanges reloads the cache on every update message until ctx ends.
func (s *settingsService) SubscribeToChanges(ctx context.Context) error {
	if s.rdb == nil {
		log.Warn("Redis client not configured, settings changes will not propagate")
		return nil
	}

	pubsub := s.rdb.Subscribe(ctx, settingsUpdateChannel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", settingsUpdateChannel, err)
	}

	ch := pubsub.Channel()
	log.Infof("Subscribed to %s", settingsUpdateChannel)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			log.Debugf("Settings update received for %s", msg.Payload)
			if err := s.Load(ctx); err != nil {
				log.Errorf("Failed to reload settings: %v", err)
			}
		}
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

type mongoSettingsRepository struct {
	db *mongo.Database
}

func NewMongoSettingsRepository(db *mongo.Database) SettingsRepository {
	return &mongoSettingsRepository{db: db}
}

func (r *mongoSettingsRepository) All(ctx context.Context) ([]models.Setting, error) {
	cursor, err := r.db.Collection(settingsCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	var settings []models.Setting
	if err := cursor.All(ctx, &settings); err != nil {
		return nil, err
	}
	return settings, nil
}

func (r *mongoSettingsRepository) Put(ctx context.Context, setting models.Setting) error {
	_, err := r.db.Collection(settingsCollection).UpdateOne(ctx,
		bson.M{"key": setting.Key},
		bson.M{"$set": bson.M{"key": setting.Key, "value": setting.Value, "public": setting.Public}},
		options.Update().SetUpsert(true))
	return err
}
