package records

import (
	"strings"

	log "github.com/sirupsen/logrus"
)

// GroupDebt folds debt rows into one DebtPerson per cedula.
// Rows without a service are ignored; rows without a cedula are skipped.
// Persons, fincas and services keep the order in which they first appear.
func GroupDebt(rows []FlatRecord) []*DebtPerson {
	var (
		persons []*DebtPerson
		byID    = make(map[string]*DebtPerson)
	)

	for i, r := range rows {
		if !r.IsDebt() {
			continue
		}
		cedula := strings.TrimSpace(r.Cedula)
		if cedula == "" {
			log.Warnf("records: skipping debt row %d without cedula", i)
			continue
		}

		person, ok := byID[cedula]
		if !ok {
			person = &DebtPerson{
				Contact: Contact{
					Cedula:   cedula,
					Nombre:   r.Nombre,
					Correo:   r.Correo,
					Telefono: r.Telefono,
				},
				Direccion: r.Direccion,
			}
			byID[cedula] = person
			persons = append(persons, person)
		}

		finca := person.finca(r.NumeroDeFinca)
		if finca == nil {
			finca = &DebtFinca{Numero: r.NumeroDeFinca, NumeroDeCuenta: r.NumeroDeCuenta}
			person.Fincas = append(person.Fincas, finca)
		}

		periodo := r.Periodo.IntPart()
		service := finca.service(r.CodigoServicio)
		if service == nil {
			service = &DebtService{
				CodigoServicio: r.CodigoServicio,
				Nombre:         *r.Servicio,
				PeriodoDesde:   periodo,
				PeriodoHasta:   periodo,
			}
			finca.Servicios = append(finca.Servicios, service)
		}

		service.Cuentas = append(service.Cuentas, Account{
			Deuda:       r.ValorDeLaDeuda,
			Vencimiento: r.FechaVencimiento,
			Periodo:     periodo,
		})
		service.TotalDeuda = service.TotalDeuda.Add(r.ValorDeLaDeuda)
		if periodo < service.PeriodoDesde {
			service.PeriodoDesde = periodo
		}
		if periodo > service.PeriodoHasta {
			service.PeriodoHasta = periodo
		}
		service.PeriodosAtrasados = len(service.Cuentas)

		person.TotalDeuda = person.TotalDeuda.Add(r.ValorDeLaDeuda)
	}

	return persons
}

// GroupProperty folds property rows (no service) into one PropertyPerson per cedula.
// Every row contributes one finca entry.
func GroupProperty(rows []FlatRecord) []*PropertyPerson {
	var (
		persons []*PropertyPerson
		byID    = make(map[string]*PropertyPerson)
	)

	for i, r := range rows {
		if r.IsDebt() {
			continue
		}
		cedula := strings.TrimSpace(r.Cedula)
		if cedula == "" {
			log.Warnf("records: skipping property row %d without cedula", i)
			continue
		}

		person, ok := byID[cedula]
		if !ok {
			person = &PropertyPerson{
				Contact: Contact{
					Cedula:   cedula,
					Nombre:   r.Nombre,
					Correo:   r.Correo,
					Telefono: r.Telefono,
				},
			}
			byID[cedula] = person
			persons = append(persons, person)
		}
		person.Fincas = append(person.Fincas, PropertyFinca{
			Numero:  r.NumeroDeFinca,
			Derecho: r.NumeroDeDerecho,
			Valor:   r.MontoImponible,
		})
	}

	return persons
}

func (p *DebtPerson) finca(numero string) *DebtFinca {
	for _, f := range p.Fincas {
		if f.Numero == numero {
			return f
		}
	}
	return nil
}

func (f *DebtFinca) service(code string) *DebtService {
	for _, s := range f.Servicios {
		if s.CodigoServicio == code {
			return s
		}
	}
	return nil
}
