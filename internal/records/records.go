package records

import (
	"github.com/shopspring/decimal"
)

// Category identifies the kind of notification a run sends.
type Category string

const (
	CategoryDebt     Category = "Morosidad"
	CategoryProperty Category = "Propiedad"
	CategoryMassive  Category = "Masivo"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryDebt, CategoryProperty, CategoryMassive:
		return true
	}
	return false
}

// FlatRecord is one row of a query result as posted by the front end.
// Debt rows carry a service name; property rows do not.
type FlatRecord struct {
	Cedula              string          `json:"cedula" binding:"omitempty,cedula"`
	Nombre              string          `json:"nombre"`
	Correo              string          `json:"correo"`
	Telefono            string          `json:"telefono"`
	Direccion           string          `json:"direccion"`
	NumeroDeCuenta      int64           `json:"numeroDeCuenta"`
	NumeroDeFinca       string          `json:"numeroDeFinca"`
	Servicio            *string         `json:"servicio"`
	CodigoServicio      string          `json:"codigoServicio"`
	ValorDeLaDeuda      decimal.Decimal `json:"valorDeLaDeuda"`
	FechaVencimiento    string          `json:"fechaVencimiento"`
	Periodo             decimal.Decimal `json:"periodo"`
	Distrito            string          `json:"distrito"`
	AreaDeLaPropiedad   *float64        `json:"areaDeLaPropiedad,omitempty"`
	FechaVigencia       string          `json:"fechaVigencia,omitempty"`
	EstadoPropiedad     string          `json:"estadoPropiedad,omitempty"`
	MontoImponible      decimal.Decimal `json:"montoImponible"`
	CodigoBaseImponible string          `json:"codigoBaseImponible,omitempty"`
	NumeroDeDerecho     string          `json:"numeroDeDerecho,omitempty"`
}

// IsDebt reports whether the row belongs to the debt category.
func (r FlatRecord) IsDebt() bool {
	return r.Servicio != nil && *r.Servicio != ""
}

// Contact is the part of a person every category shares.
type Contact struct {
	Cedula   string `json:"cedula"`
	Nombre   string `json:"nombre"`
	Correo   string `json:"correo"`
	Telefono string `json:"telefono"`
}

// Account is one overdue period of a service.
type Account struct {
	Deuda       decimal.Decimal `json:"deuda"`
	Vencimiento string          `json:"vencimiento"`
	Periodo     int64           `json:"periodo"`
}

// DebtService aggregates the accounts of one service on one finca.
type DebtService struct {
	CodigoServicio    string          `json:"codigoServicio"`
	Nombre            string          `json:"nombre"`
	TotalDeuda        decimal.Decimal `json:"totalDeuda"`
	PeriodoDesde      int64           `json:"periodoDesde"`
	PeriodoHasta      int64           `json:"periodoHasta"`
	PeriodosAtrasados int             `json:"periodosAtrasados"`
	Cuentas           []Account       `json:"cuentas"`
}

// DebtFinca groups services by property.
type DebtFinca struct {
	Numero         string         `json:"numero"`
	NumeroDeCuenta int64          `json:"numeroDeCuenta"`
	Servicios      []*DebtService `json:"servicios"`
}

// DebtPerson is everything a person owes, grouped by finca and service.
type DebtPerson struct {
	Contact
	Direccion  string          `json:"direccion"`
	TotalDeuda decimal.Decimal `json:"totalDeuda"`
	Fincas     []*DebtFinca    `json:"fincas"`
}

// PropertyFinca is one declared property right.
type PropertyFinca struct {
	Numero  string          `json:"numero"`
	Derecho string          `json:"derecho,omitempty"`
	Valor   decimal.Decimal `json:"valor"`
}

// PropertyPerson lists the properties registered to a person.
type PropertyPerson struct {
	Contact
	Fincas []PropertyFinca `json:"fincas"`
}
