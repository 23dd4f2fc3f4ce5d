// Package sheets mirrors stored transactions into a spreadsheet for manual
// review. The database stays the source of truth.
package sheets

import (
	"context"

	"matador/internal/core"
)

// Ports for outbound adapters.
type (
	// TransactionExporter keeps one row per transaction, keyed by ID.
	TransactionExporter interface {
		// Upsert writes the row for t, replacing an existing row with the same ID.
		Upsert(ctx context.Context, t core.Transaction) error
		// Delete removes the row for id. Missing rows are not an error.
		Delete(ctx context.Context, id int64) error
	}
)

// Header is the column layout shared by every exporter.
var Header = []string{"ID", "Fecha", "Teléfono", "Tipo", "Categoría", "Monto", "Descripción", "Recurrente", "Actualizado"}
