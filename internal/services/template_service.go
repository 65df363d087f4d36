package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/models"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/templates"
)

var ErrUnknownTemplate = errors.New("unknown template key")

// TemplateCompiler checks templates before they are stored and forgets
// compiled copies after they change. *templates.Resolver implements it.
type TemplateCompiler interface {
	Validate(t models.MessageTemplate) error
	Evict(key string)
}

// ITemplateService stores the editable message templates.
type ITemplateService interface {
	templates.Source
	List(ctx context.Context) ([]models.MessageTemplate, error)
	Upsert(ctx context.Context, t models.MessageTemplate) (*models.MessageTemplate, error)
}

const messageTemplatesCollection = "message_templates"

var templateKeys = []string{models.TemplateDebt, models.TemplateProperty, models.TemplateMassive}

type TemplateService struct {
	db       *mongo.Database
	compiler TemplateCompiler
}

// NewTemplateService creates a template service. compiler may be set later
// with SetCompiler because the resolver itself reads from this service.
func NewTemplateService(db *mongo.Database) *TemplateService {
	return &TemplateService{db: db}
}

func (s *TemplateService) SetCompiler(c TemplateCompiler) {
	s.compiler = c
}

// GetTemplate returns the stored template or templates.ErrTemplateNotFound.
func (s *TemplateService) GetTemplate(ctx context.Context, key string) (*models.MessageTemplate, error) {
	var t models.MessageTemplate
	err := s.db.Collection(messageTemplatesCollection).FindOne(ctx, bson.M{"key": key}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, templates.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error finding template %s: %w", key, err)
	}
	return &t, nil
}

// List returns one template per key, stored or built-in.
func (s *TemplateService) List(ctx context.Context) ([]models.MessageTemplate, error) {
	out := make([]models.MessageTemplate, 0, len(templateKeys))
	for _, key := range templateKeys {
		t, err := s.GetTemplate(ctx, key)
		if errors.Is(err, templates.ErrTemplateNotFound) {
			def, _ := templates.Default(key)
			out = append(out, def)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}

// Upsert validates and stores t, then drops the compiled copy.
func (s *TemplateService) Upsert(ctx context.Context, t models.MessageTemplate) (*models.MessageTemplate, error) {
	if _, ok := templates.Default(t.Key); !ok {
		return nil, ErrUnknownTemplate
	}
	if s.compiler != nil {
		if err := s.compiler.Validate(t); err != nil {
			return nil, err
		}
	}

	t.UpdatedAt = time.Now().UTC()
	opts := options.Update().SetUpsert(true)
	_, err := s.db.Collection(messageTemplatesCollection).UpdateOne(ctx,
		bson.M{"key": t.Key},
		bson.M{"$set": bson.M{
			"key":        t.Key,
			"subject":    t.Subject,
			"body_html":  t.BodyHTML,
			"footer":     t.Footer,
			"updated_at": t.UpdatedAt,
		}},
		opts)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert template %s: %w", t.Key, err)
	}

	if s.compiler != nil {
		s.compiler.Evict(t.Key)
	}
	log.Infof("Message template %s updated", t.Key)
	return &t, nil
}
