package records

// Template bindings use plain maps so liquid can walk them without reflection
// on decimal internals. Amounts are exposed as float64 for the currency filter.

// Bindings returns the template view of a debt person.
func (p *DebtPerson) Bindings() map[string]any {
	fincas := make([]any, 0, len(p.Fincas))
	for _, f := range p.Fincas {
		servicios := make([]any, 0, len(f.Servicios))
		for _, s := range f.Servicios {
			cuentas := make([]any, 0, len(s.Cuentas))
			for _, c := range s.Cuentas {
				cuentas = append(cuentas, map[string]any{
					"deuda":       c.Deuda.InexactFloat64(),
					"vencimiento": c.Vencimiento,
					"periodo":     c.Periodo,
				})
			}
			servicios = append(servicios, map[string]any{
				"codigoServicio":    s.CodigoServicio,
				"nombre":            s.Nombre,
				"totalDeuda":        s.TotalDeuda.InexactFloat64(),
				"periodoDesde":      s.PeriodoDesde,
				"periodoHasta":      s.PeriodoHasta,
				"periodosAtrasados": s.PeriodosAtrasados,
				"cuentas":           cuentas,
			})
		}
		fincas = append(fincas, map[string]any{
			"numero":         f.Numero,
			"numeroDeCuenta": f.NumeroDeCuenta,
			"servicios":      servicios,
		})
	}
	b := p.Contact.bindings()
	b["direccion"] = p.Direccion
	b["totalDeuda"] = p.TotalDeuda.InexactFloat64()
	b["fincas"] = fincas
	return b
}

// Bindings returns the template view of a property person.
func (p *PropertyPerson) Bindings() map[string]any {
	fincas := make([]any, 0, len(p.Fincas))
	for _, f := range p.Fincas {
		fincas = append(fincas, map[string]any{
			"numero":  f.Numero,
			"derecho": f.Derecho,
			"valor":   f.Valor.InexactFloat64(),
		})
	}
	b := p.Contact.bindings()
	b["fincas"] = fincas
	return b
}

// Bindings returns the template view of an ungrouped row.
func (r FlatRecord) Bindings() map[string]any {
	b := r.Contact().bindings()
	b["direccion"] = r.Direccion
	b["distrito"] = r.Distrito
	return b
}

// Contact extracts the recipient fields of a row.
func (r FlatRecord) Contact() Contact {
	return Contact{Cedula: r.Cedula, Nombre: r.Nombre, Correo: r.Correo, Telefono: r.Telefono}
}

func (c Contact) bindings() map[string]any {
	return map[string]any{
		"cedula":   c.Cedula,
		"nombre":   c.Nombre,
		"correo":   c.Correo,
		"telefono": c.Telefono,
	}
}
