package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/models"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/templates"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/utils"
)

type recordingCompiler struct {
	*templates.Resolver
	evicted []string
}

func (c *recordingCompiler) Evict(key string) {
	c.evicted = append(c.evicted, key)
	c.Resolver.Evict(key)
}

func TestTemplateService_UpsertAndList(t *testing.T) {
	db := utils.SetupTestDB(t, "testdb_template_service", messageTemplatesCollection)
	ctx := context.Background()

	svc := NewTemplateService(db)
	compiler := &recordingCompiler{Resolver: templates.NewResolver(svc, "Notificación Sistema")}
	svc.SetCompiler(compiler)

	_, err := svc.GetTemplate(ctx, models.TemplateDebt)
	assert.ErrorIs(t, err, templates.ErrTemplateNotFound)

	saved, err := svc.Upsert(ctx, models.MessageTemplate{
		Key:      models.TemplateDebt,
		Subject:  "Cobro pendiente",
		BodyHTML: "<p>{{ persona.nombre }}</p>",
	})
	require.NoError(t, err)
	assert.False(t, saved.UpdatedAt.IsZero())
	assert.Equal(t, []string{models.TemplateDebt}, compiler.evicted)

	got, err := svc.GetTemplate(ctx, models.TemplateDebt)
	require.NoError(t, err)
	assert.Equal(t, "Cobro pendiente", got.Subject)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Cobro pendiente", all[0].Subject)
	assert.Equal(t, models.TemplateProperty, all[1].Key)
}

func TestTemplateService_UpsertRejects(t *testing.T) {
	db := utils.SetupTestDB(t, "testdb_template_service_rejects", messageTemplatesCollection)
	svc := NewTemplateService(db)
	svc.SetCompiler(templates.NewResolver(svc, ""))
	ctx := context.Background()

	_, err := svc.Upsert(ctx, models.MessageTemplate{Key: "OTRO", BodyHTML: "x"})
	assert.ErrorIs(t, err, ErrUnknownTemplate)

	_, err = svc.Upsert(ctx, models.MessageTemplate{Key: models.TemplateMassive, BodyHTML: "{% if %}"})
	assert.Error(t, err)
}
