package models

import "time"

// Activity types and statuses.
const (
	ActivitySendMessages = "EnvioMensajes"
	StatusSuccess        = "Éxito"
	StatusError          = "Error"
)

// Activity is the parent audit record of an action taken by a user.
type Activity struct {
	Base      `bson:",inline"`
	UserID    string    `bson:"IdUsuario" json:"idUsuario"`
	Type      string    `bson:"Tipo" json:"tipo"`
	Detail    string    `bson:"Detalle" json:"detalle"`
	Status    string    `bson:"Estado" json:"estado"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// MessageSendDetail is the child record of a send-messages activity.
// Rows holds the per-recipient results as a JSON array.
type MessageSendDetail struct {
	Base         `bson:",inline"`
	ActivityID   string `bson:"IdActividad" json:"idActividad"`
	Messages     int    `bson:"NumeroDeMensajes" json:"numeroDeMensajes"`
	EmailsOK     int    `bson:"NumeroDeCorreosEnviadosCorrectamente" json:"numeroDeCorreosEnviadosCorrectamente"`
	WhatsAppOK   int    `bson:"NumeroDeWhatsAppEnviadosCorrectamente" json:"numeroDeWhatsAppEnviadosCorrectamente"`
	Rows         string `bson:"DetalleIndividual" json:"detalleIndividual"`
	RunID        string `bson:"runId,omitempty" json:"runId,omitempty"`
	FailedGroups int    `bson:"LotesFallidos" json:"lotesFallidos"`
}

// ActivityWithDetail pairs an activity with its message detail, if any.
type ActivityWithDetail struct {
	Activity   `bson:",inline"`
	SendDetail *MessageSendDetail `bson:"detalleEnvio,omitempty" json:"detalleEnvio,omitempty"`
}
