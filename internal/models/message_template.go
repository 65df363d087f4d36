package models

import "time"

// Template keys, one per notification category.
const (
	TemplateDebt     = "MOROSIDAD"
	TemplateProperty = "PROPIEDADES"
	TemplateMassive  = "MASIVO"
)

// MessageTemplate is an editable email template stored in the message_templates collection.
// BodyHTML and Footer are liquid sources.
type MessageTemplate struct {
	Key       string    `bson:"key" json:"key"`
	Subject   string    `bson:"subject" json:"subject"`
	BodyHTML  string    `bson:"body_html" json:"body_html"`
	Footer    string    `bson:"footer" json:"footer"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
