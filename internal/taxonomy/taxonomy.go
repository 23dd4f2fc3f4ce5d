// Package taxonomy holds the closed category sets for each transaction type.
//
// The sets are static. Lookups accept either the human label or the key, in
// any letter case, and always resolve to the canonical label that is stored.
package taxonomy

import (
	"strings"

	"matador/internal/core"
)

// Category is one (key, label) pair of a type's closed set.
type Category struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

var sets = map[core.TransactionType][]Category{
	core.Income: {
		{"SUELDO_FIJO", "Sueldo Fijo"},
		{"FREELANCE", "Ingresos por Freelance"},
		{"INVERSIONES", "Rendimientos de Inversiones"},
		{"ALQUILERES", "Alquileres"},
		{"BONOS", "Bonos o Comisiones Variables"},
	},
	core.FixedExpense: {
		{"RENTA", "Renta o Hipotecario"},
		{"SERVICIOS", "Servicios Fijos (Luz, Agua, Gas)"},
		{"TELEFONIA", "Telefonía e Internet"},
		{"EDUCACION", "Colegiaturas o Cursos"},
		{"SEGUROS", "Seguros (Médicos, Auto, Casa)"},
		{"TRANSPORTE", "Transporte Público Mensual"},
		{"DEUDAS", "Deudas con cuota fija"},
	},
	core.VariableExpense: {
		{"SUPERMERCADO", "Supermercado y Comida"},
		{"ENTRETENIMIENTO", "Entretenimiento"},
		{"ROPA", "Ropa y Accesorios"},
		{"GASOLINA", "Gasolina o Mantenimiento de Auto"},
		{"EMERGENCIAS", "Emergencias o Reparaciones"},
	},
	core.AntExpense: {
		{"CAFE", "Café o bebida diaria"},
		{"SUSCRIPCIONES", "Suscripciones digitales no utilizadas"},
		{"COMISIONES", "Comisiones bancarias"},
		{"COMPRAS_IMPULSIVAS", "Compras impulsivas en línea"},
		{"COMIDA_DOMICILIO", "Comida a domicilio"},
		{"SNACKS", "Snacks y golosinas"},
		{"OTROS", "Otros gastos hormiga"},
	},
}

// Categories returns the ordered set for t, or nil for an unknown type.
func Categories(t core.TransactionType) []Category {
	set := sets[t]
	out := make([]Category, len(set))
	copy(out, set)
	return out
}

// Labels returns the valid category labels for t in declaration order.
func Labels(t core.TransactionType) []string {
	set := sets[t]
	labels := make([]string, 0, len(set))
	for _, c := range set {
		labels = append(labels, c.Label)
	}
	return labels
}

// IsValid reports whether category is exactly one of t's labels.
func IsValid(t core.TransactionType, category string) bool {
	for _, c := range sets[t] {
		if c.Label == category {
			return true
		}
	}
	return false
}

// Canonical resolves category to its stored label. Matching is on the label
// or the key after trimming, case-insensitive.
func Canonical(t core.TransactionType, category string) (string, bool) {
	category = strings.TrimSpace(category)
	if category == "" {
		return "", false
	}
	for _, c := range sets[t] {
		if strings.EqualFold(c.Label, category) || strings.EqualFold(c.Key, category) {
			return c.Label, true
		}
	}
	return "", false
}

// Resolve is Canonical returning a ValidationError for unknown categories.
func Resolve(t core.TransactionType, category string) (string, error) {
	if !t.Valid() {
		return "", core.NewValidationError("type", string(t), core.ErrUnknownType)
	}
	label, ok := Canonical(t, category)
	if !ok {
		return "", core.NewValidationError("category", category, core.ErrUnknownCategory)
	}
	return label, nil
}

// TypeOf finds the type whose set contains category. Used when a correction
// changes the category without naming a type.
func TypeOf(category string) (core.TransactionType, bool) {
	for _, t := range core.TransactionTypes {
		if _, ok := Canonical(t, category); ok {
			return t, true
		}
	}
	return "", false
}

// TypeLabel is the Spanish name of a transaction type.
func TypeLabel(t core.TransactionType) string {
	switch t {
	case core.Income:
		return "Ingresos"
	case core.FixedExpense:
		return "Gastos Fijos"
	case core.VariableExpense:
		return "Gastos Variables"
	case core.AntExpense:
		return "Gastos Hormiga"
	}
	return string(t)
}
