package notify

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/dispatch"
)

var reportHeader = []string{"Nombre", "Cedula", "Correo", "Telefono", "Correo_OK", "WhatsApp_OK"}

// ReportCSV renders the per-recipient rows of a run.
func ReportCSV(rows []dispatch.RecipientRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(reportHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		record := []string{r.Nombre, r.Cedula, r.Correo, r.Telefono, sentLabel(r.CorreoOK), "-"}
		if r.WhatsAppOK != nil {
			record[5] = sentLabel(*r.WhatsAppOK)
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func sentLabel(ok bool) string {
	if ok {
		return "Enviado"
	}
	return "Fallo"
}
