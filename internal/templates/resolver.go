package templates

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/osteele/liquid"
	log "github.com/sirupsen/logrus"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/dispatch"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/models"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/records"
)

// ErrTemplateNotFound is returned by a Source that has no template for a key.
var ErrTemplateNotFound = errors.New("template not found")

// Source loads a template by key.
type Source interface {
	GetTemplate(ctx context.Context, key string) (*models.MessageTemplate, error)
}

// KeyFor maps a category to its template key.
func KeyFor(category records.Category) (string, error) {
	switch category {
	case records.CategoryDebt:
		return models.TemplateDebt, nil
	case records.CategoryProperty:
		return models.TemplateProperty, nil
	case records.CategoryMassive:
		return models.TemplateMassive, nil
	}
	return "", fmt.Errorf("no template for category %q", category)
}

type compiled struct {
	subject string
	tpl     *liquid.Template
}

// Resolver renders item emails, compiling each template once.
type Resolver struct {
	source         Source
	engine         *liquid.Engine
	defaultSubject string
	cache          sync.Map // key -> *compiled
}

// NewResolver creates a Resolver. defaultSubject is used when neither the
// run nor the template supplies one.
func NewResolver(source Source, defaultSubject string) *Resolver {
	return &Resolver{source: source, engine: NewEngine(), defaultSubject: defaultSubject}
}

// Resolve renders the email of item. Subject precedence is the run subject,
// then the template subject, then the default.
func (r *Resolver) Resolve(ctx context.Context, category records.Category, item dispatch.Item, runSubject string) (dispatch.Content, error) {
	key, err := KeyFor(category)
	if err != nil {
		return dispatch.Content{}, err
	}
	c, err := r.compiled(ctx, key)
	if err != nil {
		return dispatch.Content{}, err
	}

	html, rerr := c.tpl.RenderString(liquid.Bindings(item.Bindings))
	if rerr != nil {
		return dispatch.Content{}, fmt.Errorf("render %s: %w", key, rerr)
	}

	subject := runSubject
	if subject == "" {
		subject = c.subject
	}
	if subject == "" {
		subject = r.defaultSubject
	}
	return dispatch.Content{Subject: subject, HTML: html}, nil
}

// Validate compiles t without caching it.
func (r *Resolver) Validate(t models.MessageTemplate) error {
	if _, err := r.engine.ParseString(fmt.Sprintf(layout, t.BodyHTML, t.Footer)); err != nil {
		return fmt.Errorf("compile template %s: %w", t.Key, err)
	}
	return nil
}

// Evict drops the compiled template for key so the next render reloads it.
func (r *Resolver) Evict(key string) {
	r.cache.Delete(key)
}

func (r *Resolver) compiled(ctx context.Context, key string) (*compiled, error) {
	if c, ok := r.cache.Load(key); ok {
		return c.(*compiled), nil
	}

	t, err := r.source.GetTemplate(ctx, key)
	if errors.Is(err, ErrTemplateNotFound) {
		def, ok := Default(key)
		if !ok {
			return nil, fmt.Errorf("template %s: %w", key, err)
		}
		t = &def
	} else if err != nil {
		return nil, fmt.Errorf("load template %s: %w", key, err)
	}

	tpl, perr := r.engine.ParseString(fmt.Sprintf(layout, t.BodyHTML, t.Footer))
	if perr != nil {
		return nil, fmt.Errorf("compile template %s: %w", key, perr)
	}

	c := &compiled{subject: t.Subject, tpl: tpl}
	actual, loaded := r.cache.LoadOrStore(key, c)
	if !loaded {
		log.Debugf("Compiled message template %s", key)
	}
	return actual.(*compiled), nil
}
