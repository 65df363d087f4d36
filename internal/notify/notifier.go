// Package notify emails the user who started a run when it starts and when it ends.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/osteele/liquid"
	log "github.com/sirupsen/logrus"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/dispatch"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/email"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/logging"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/storage"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/templates"
)

const startBody = `<div style="font-family: Arial, sans-serif; line-height: 1.6;">
  <h2 style="color: #1a73e8;">Proceso Iniciado Correctamente</h2>
  <p>Estimado(a) {{ actor | escape }},</p>
  <p>Se ha iniciado un proceso de envío de <strong>{{ category }}</strong>. Este proceso continuará su ejecución en segundo plano.</p>
  <ul style="list-style-type: none; padding: 0;">
    <li><strong>Identificador:</strong> {{ runId }}</li>
    <li><strong>Destinatarios:</strong> {{ items }} en {{ batches }} lote(s)</li>
    <li><strong>Fecha y Hora de Inicio:</strong> {{ startedAt }}</li>
  </ul>
  <p style="margin-top: 20px; font-size: 0.9em; color: #777;">Recibirá un correo de resumen al finalizar la tarea.</p>
</div>`

const reportBody = `<div style="font-family: sans-serif; line-height: 1.6;">
  <h2 style="color: #2c3e50;">Proceso de Envío Finalizado</h2>
  <p>Resumen de la actividad de <strong>{{ category }}</strong>:</p>
  <ul>
    <li><strong>Total destinatarios:</strong> {{ attempts }}</li>
    <li><strong>Correos exitosos:</strong> {{ emailOK }}</li>
    <li><strong>WhatsApp exitosos:</strong> {{ whatsAppOK }}</li>
    {% if failedBatches > 0 %}<li><strong>Lotes fallidos:</strong> {{ failedBatches }}</li>{% endif %}
  </ul>
  {% if reportURL != "" %}<p><a href="{{ reportURL }}">Descargar el reporte completo</a></p>{% endif %}
</div>`

// Notifier implements dispatch.Notifier over email. Archive is optional.
type Notifier struct {
	mailer  dispatch.Mailer
	archive storage.ReportArchive
	now     func() time.Time

	startTpl  *liquid.Template
	reportTpl *liquid.Template
}

// NewNotifier creates a Notifier. Pass a nil archive to skip report uploads.
func NewNotifier(mailer dispatch.Mailer, archive storage.ReportArchive) *Notifier {
	engine := templates.NewEngine()
	return &Notifier{
		mailer:    mailer,
		archive:   archive,
		now:       time.Now,
		startTpl:  mustParse(engine, startBody),
		reportTpl: mustParse(engine, reportBody),
	}
}

func mustParse(engine *liquid.Engine, src string) *liquid.Template {
	tpl, err := engine.ParseString(src)
	if err != nil {
		panic(fmt.Sprintf("notify: invalid built-in template: %v", err))
	}
	return tpl
}

// NotifyStart sends the "run started" email. Failures are logged.
func (n *Notifier) NotifyStart(ctx context.Context, report dispatch.Report) {
	if report.Actor.Email == "" {
		log.WithField("run", report.RunID).Warn("No actor email, skipping start notification")
		return
	}
	actor := report.Actor.Name
	if actor == "" {
		actor = "usuario"
	}
	html, err := n.startTpl.RenderString(liquid.Bindings{
		"actor":     actor,
		"category":  string(report.Category),
		"runId":     report.RunID,
		"items":     report.Items,
		"batches":   report.Batches,
		"startedAt": n.now().Format("02/01/2006 15:04:05"),
	})
	if err != nil {
		log.WithField("run", report.RunID).Errorf("Failed to render start notification: %v", err)
		return
	}

	msg := email.Message{To: []string{report.Actor.Email}, Subject: email.SubjectRunStarted, HTML: html}
	if err := n.mailer.Send(ctx, msg); err != nil {
		log.WithField("run", report.RunID).Errorf("Failed to send start notification to %s: %v", logging.RedactEmail(report.Actor.Email), err)
	}
}

// NotifyCompletion sends the final report with the CSV attached. It is
// attempted once; failures are logged.
func (n *Notifier) NotifyCompletion(ctx context.Context, report dispatch.Report) {
	logger := log.WithField("run", report.RunID)
	if report.Actor.Email == "" {
		logger.Warn("No actor email, skipping completion report")
		return
	}
	msg, err := n.completionMessage(ctx, report)
	if err != nil {
		logger.Errorf("Failed to build completion report: %v", err)
		return
	}
	if err := n.mailer.Send(ctx, msg); err != nil {
		logger.Errorf("Failed to send completion report to %s: %v", logging.RedactEmail(report.Actor.Email), err)
		return
	}
	logger.Info("Completion report sent")
}

func (n *Notifier) completionMessage(ctx context.Context, report dispatch.Report) (email.Message, error) {
	s := report.Summary
	msg := email.Message{
		To:      []string{report.Actor.Email},
		Subject: fmt.Sprintf("%s - Envío de %s", email.SubjectRunReport, report.Category),
	}

	var reportURL string
	if len(s.Rows) > 0 {
		data, err := ReportCSV(s.Rows)
		if err != nil {
			return msg, err
		}
		now := n.now()
		msg.Attachments = []email.Attachment{{
			Filename:    fmt.Sprintf("reporte_envio_%d.csv", now.UnixMilli()),
			ContentType: "text/csv",
			Data:        data,
		}}
		if n.archive != nil {
			if reportURL, err = n.archive.Archive(ctx, report.RunID, now, "text/csv", data); err != nil {
				log.WithField("run", report.RunID).Warnf("Report archive failed, sending attachment only: %v", err)
				reportURL = ""
			}
		}
	}

	html, err := n.reportTpl.RenderString(liquid.Bindings{
		"category":      string(report.Category),
		"attempts":      s.Attempts,
		"emailOK":       s.EmailOK,
		"whatsAppOK":    s.WhatsAppOK,
		"failedBatches": s.FailedBatches,
		"reportURL":     reportURL,
	})
	if err != nil {
		return msg, fmt.Errorf("render report: %w", err)
	}
	msg.HTML = html
	return msg, nil
}
