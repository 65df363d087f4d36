package dispatch

import (
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/records"
)

// RecipientRow is the per-recipient line of a run report.
// WhatsAppOK is nil when the run did not send WhatsApp.
type RecipientRow struct {
	Nombre     string `json:"nombre"`
	Cedula     string `json:"cedula"`
	Telefono   string `json:"telefono"`
	Correo     string `json:"correo"`
	CorreoOK   bool   `json:"correo_ok"`
	WhatsAppOK *bool  `json:"whatsapp_ok"`
}

// Summary is the aggregated result of a run.
type Summary struct {
	Category      records.Category `json:"categoria"`
	Attempts      int              `json:"intentosTotales"`
	EmailOK       int              `json:"correosEnviados"`
	WhatsAppOK    int              `json:"whatsappEnviados"`
	FailedBatches int              `json:"lotesFallidos"`
	Rows          []RecipientRow   `json:"resultadosIndividuales"`
}

// Aggregator folds batch results into a Summary in the order they are added.
type Aggregator struct {
	sendWhatsApp bool
	summary      Summary
}

// NewAggregator creates an empty Aggregator.
func NewAggregator(category records.Category, sendWhatsApp bool) *Aggregator {
	return &Aggregator{
		sendWhatsApp: sendWhatsApp,
		summary:      Summary{Category: category, Rows: []RecipientRow{}},
	}
}

// AddBatch counts every item of the batch as attempted and adds one row per result.
func (a *Aggregator) AddBatch(results []ItemResult) {
	a.summary.Attempts += len(results)
	for _, r := range results {
		row := RecipientRow{
			Nombre:   r.Item.Contact.Nombre,
			Cedula:   r.Item.Contact.Cedula,
			Telefono: r.Item.Contact.Telefono,
			Correo:   r.Item.Contact.Correo,
			CorreoOK: r.Email != nil && r.Email.OK,
		}
		if row.CorreoOK {
			a.summary.EmailOK++
		}
		if a.sendWhatsApp {
			ok := r.WhatsApp != nil && r.WhatsApp.OK
			row.WhatsAppOK = &ok
			if ok {
				a.summary.WhatsAppOK++
			}
		}
		a.summary.Rows = append(a.summary.Rows, row)
	}
}

// AddFailedBatch counts a batch that produced no results. Its items still
// count as attempted but contribute no rows.
func (a *Aggregator) AddFailedBatch(size int) {
	a.summary.Attempts += size
	a.summary.FailedBatches++
}

// Summary returns the aggregate so far.
func (a *Aggregator) Summary() Summary {
	return a.summary
}
