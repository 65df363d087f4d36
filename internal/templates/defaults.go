package templates

import (
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/models"
)

// layout wraps a template body and footer into the HTML document every email shares.
const layout = `<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6;">
  <div style="max-width: 650px; margin: auto; padding: 20px; border: 1px solid #ccc; border-radius: 8px;">
    %s
    <div style="margin-top: 30px; padding-top: 15px; border-top: 1px solid #ccc; font-size: 12px;">
      %s
    </div>
  </div>
</body>
</html>`

const defaultFooter = `<p>Este es un mensaje automático de la Municipalidad, por favor no responda a este correo.</p>`

var defaults = map[string]models.MessageTemplate{
	models.TemplateDebt: {
		Key:     models.TemplateDebt,
		Subject: "Aviso de cobro",
		BodyHTML: `<h2>Estimado(a) {{ persona.nombre }}</h2>
<p>Le informamos que a la fecha registra un saldo pendiente de <strong>₡{{ persona.totalDeuda | currency }}</strong>.</p>
{% for finca in persona.fincas %}
<h3>Finca {{ finca.numero }} (cuenta {{ finca.numeroDeCuenta }})</h3>
<table style="border-collapse: collapse; width: 100%;">
  <tr><th align="left">Servicio</th><th align="left">Periodos</th><th align="right">Monto</th></tr>
  {% for servicio in finca.servicios %}
  <tr>
    <td>{{ servicio.nombre }}</td>
    <td>{{ servicio.periodoDesde }} - {{ servicio.periodoHasta }} ({{ servicio.periodosAtrasados }})</td>
    <td align="right">₡{{ servicio.totalDeuda | currency }}</td>
  </tr>
  {% endfor %}
</table>
{% endfor %}
<p>Le invitamos a ponerse al día en cualquiera de nuestras plataformas de pago.</p>`,
		Footer: defaultFooter,
	},
	models.TemplateProperty: {
		Key:     models.TemplateProperty,
		Subject: "Declaración de bienes inmuebles",
		BodyHTML: `<h2>Estimado(a) {{ persona.nombre }}</h2>
<p>Nuestros registros indican que las siguientes propiedades a su nombre requieren actualizar la declaración de bienes inmuebles:</p>
<ul>
{% for finca in persona.fincas %}
  <li>Finca {{ finca.numero }}, derecho {{ finca.derecho | or_default: "-" }}, valor registrado ₡{{ finca.valor | currency }}</li>
{% endfor %}
</ul>`,
		Footer: defaultFooter,
	},
	models.TemplateMassive: {
		Key:      models.TemplateMassive,
		Subject:  "",
		BodyHTML: `<h2>Estimado(a) {{ persona.nombre }}</h2><p>{{ mensaje }}</p>`,
		Footer:   defaultFooter,
	},
}

// Default returns the built-in template for key.
func Default(key string) (models.MessageTemplate, bool) {
	t, ok := defaults[key]
	return t, ok
}
