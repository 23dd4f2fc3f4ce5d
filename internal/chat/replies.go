package chat

import (
	"errors"
	"fmt"
	"strings"

	"matador/internal/core"
	"matador/internal/extractor"
	"matador/internal/gamification"
	"matador/internal/services"
	"matador/internal/taxonomy"
)

const WelcomeText = "¡Hola! Soy *El Matador*, tu asistente financiero personal. 🎯\n\n" +
	"Estoy aquí para ayudarte a controlar tus gastos hormiga.\n\n" +
	"Solo dime tus gastos de forma natural:\n" +
	"• \"Compré un café de $25\"\n" +
	"• \"Pagué mi renta, $5000\"\n" +
	"• \"Me pagaron mi sueldo, $15000\"\n\n" +
	"También puedes preguntarme:\n" +
	"• \"¿Cuánto he gastado este mes?\"\n" +
	"• \"¿Cuáles son mis gastos hormiga?\"\n" +
	"• \"Dame un resumen\"\n\n" +
	"¡Empecemos a cazar esos gastos hormiga! 🐜"

const QueryHelpText = "Puedo mostrarte:\n\n" +
	"• \"Resumen del mes\"\n" +
	"• \"Resumen de la semana\"\n" +
	"• \"Mis gastos hormiga\"\n\n" +
	"¿Qué te gustaría ver?"

const FallbackText = "No pude procesar tu mensaje. 🤔\n\n" +
	"Intenta algo como:\n" +
	"• \"Compré un café de $25\"\n" +
	"• \"Me pagaron $15000 de sueldo\"\n" +
	"• \"Resumen del mes\"\n" +
	"• \"No, eran $30\" para corregir el último registro"

const (
	ApologyText          = "Disculpa, tuve un problema. Intenta de nuevo."
	RegisterFailedText   = "Hubo un error al guardar tu transacción. Intenta de nuevo."
	CorrectFailedText    = "Hubo un error al corregir. Intenta de nuevo."
	QueryFailedText      = "Hubo un error al obtener tus estadísticas."
	NothingToCorrectText = "No encontré una transacción reciente para corregir."
	NoAntExpensesText    = "¡No has registrado gastos hormiga este mes! 🎉"
	UnknownReplyText     = "No entendí bien. ¿Podrías reformular tu mensaje?"
)

// Render formats an outcome as a WhatsApp message.
func Render(out services.Outcome) string {
	switch out.Kind {
	case services.OutcomeRegistered:
		return renderRegistered(out)
	case services.OutcomeCorrected:
		t := out.Transaction
		return fmt.Sprintf("✅ *Corregido!*\n\n💰 Nuevo monto: $%s\n📁 %s\n📝 %s", t.Amount, t.Category, t.Description)
	case services.OutcomeNothingToCorrect:
		return NothingToCorrectText
	case services.OutcomeMonthlySummary:
		return renderMonthly(*out.Monthly)
	case services.OutcomeWeeklySummary:
		return renderWeekly(*out.Weekly)
	case services.OutcomeAntBreakdown:
		return renderAntBreakdown(out.Breakdown)
	case services.OutcomeQueryHelp:
		return QueryHelpText
	case services.OutcomeReply:
		if strings.TrimSpace(out.Response) == "" {
			return UnknownReplyText
		}
		return out.Response
	default:
		return FallbackText
	}
}

func renderRegistered(out services.Outcome) string {
	t := out.Transaction
	var sb strings.Builder
	sb.WriteString("✅ *Registrado!*\n\n")
	fmt.Fprintf(&sb, "💰 Monto: $%s\n", t.Amount)
	fmt.Fprintf(&sb, "📁 Categoría: %s\n", t.Category)
	fmt.Fprintf(&sb, "📝 %s\n\n", t.Description)

	if t.Type != core.AntExpense {
		sb.WriteString(out.Response)
		return strings.TrimRight(sb.String(), "\n")
	}

	sb.WriteString("🐜 *Gasto Hormiga detectado*\n")
	if w := out.Weekly; w != nil {
		fmt.Fprintf(&sb, "Esta semana: %d gastos hormiga ($%s)\n\n", w.AntExpenses.Count, w.AntExpenses.Total)
	}
	if out.Advice != "" {
		fmt.Fprintf(&sb, "💡 %s\n\n", out.Advice)
	}
	fmt.Fprintf(&sb, "⭐ +%d puntos | Nivel: %s", out.PointsAwarded, out.User.Level)
	if next, remaining := gamification.Progress(out.User.Points); next != "" {
		fmt.Fprintf(&sb, "\n🎯 Te faltan %d puntos para %s", remaining, next)
	}
	return sb.String()
}

func renderMonthly(sum services.MonthlySummary) string {
	s := sum.Stats
	var sb strings.Builder
	sb.WriteString("📊 *Resumen del Mes*\n\n")
	fmt.Fprintf(&sb, "💵 Ingresos: $%s\n", s.Income)
	fmt.Fprintf(&sb, "📌 Gastos Fijos: $%s\n", s.FixedExpenses)
	fmt.Fprintf(&sb, "📊 Gastos Variables: $%s\n", s.VariableExpenses)
	fmt.Fprintf(&sb, "🐜 Gastos Hormiga: $%s (%d transacciones)\n\n", s.AntExpenses.Total, s.AntExpenses.Count)
	fmt.Fprintf(&sb, "💰 Balance: $%s", s.Balance)

	if sh := s.AntShare; sh != nil && !s.AntExpenses.Total.IsZero() {
		fmt.Fprintf(&sb, "\n\n⚠️ Los gastos hormiga representan el %s%% de tus gastos totales.", sh.Percent.StringFixed(1))
		switch sh.Tier {
		case services.TierWarning, services.TierCaution:
			fmt.Fprintf(&sb, "\n\n💡 *Recomendación:* Si reduces tus gastos hormiga en 20%%, ahorrarías $%s al mes.", sh.SavingsHint)
		default:
			sb.WriteString("\n\n🎉 ¡Vas muy bien! Tus gastos hormiga están bajo control.")
		}
	}

	if len(sum.Breakdown) > 0 {
		sb.WriteString("\n\n🏆 *Top categorías*\n")
		for i, c := range sum.Breakdown {
			if i == 3 {
				break
			}
			fmt.Fprintf(&sb, "• %s: $%s\n", c.Category, c.Total)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderWeekly(w services.WeeklyStats) string {
	var sb strings.Builder
	sb.WriteString("📊 *Resumen de la Semana*\n\n")
	fmt.Fprintf(&sb, "📝 Transacciones: %d\n", w.TransactionCount)
	fmt.Fprintf(&sb, "💵 Ingresos: $%s\n", w.Income)
	fmt.Fprintf(&sb, "💸 Gastos Totales: $%s\n\n", w.TotalExpenses)
	fmt.Fprintf(&sb, "🐜 Gastos Hormiga: %d ($%s)", w.AntExpenses.Count, w.AntExpenses.Total)
	if w.AntExpenses.Count > 0 {
		fmt.Fprintf(&sb, "\n\n📈 Promedio diario en gastos hormiga: $%s", w.AntDailyAverage)
	}
	return sb.String()
}

func renderAntBreakdown(b core.Breakdown) string {
	if len(b) == 0 {
		return NoAntExpensesText
	}
	var sb strings.Builder
	sb.WriteString("🐜 *Tus Gastos Hormiga del Mes*\n\n")
	for _, c := range b {
		fmt.Fprintf(&sb, "• %s: $%s (%d veces)\n", c.Category, c.Total, c.Count)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// validationReply explains a rejected intent. Unknown categories list the
// valid ones for the intended type.
func validationReply(err error, in extractor.Intent) string {
	switch {
	case errors.Is(err, core.ErrUnknownCategory):
		var ve *core.ValidationError
		category := ""
		if errors.As(err, &ve) {
			category = ve.Value
		}
		var typ core.TransactionType
		if in.Transaction != nil {
			typ, _ = core.ParseTransactionType(in.Transaction.Type)
		}
		var sb strings.Builder
		if typ == "" {
			fmt.Fprintf(&sb, "No reconocí la categoría \"%s\".", category)
			return sb.String() + "\n\n" + CategoriesText()
		}
		fmt.Fprintf(&sb, "No reconocí la categoría \"%s\" para %s. Las categorías válidas son:\n", category, taxonomy.TypeLabel(typ))
		for _, label := range taxonomy.Labels(typ) {
			fmt.Fprintf(&sb, "• %s\n", label)
		}
		return strings.TrimRight(sb.String(), "\n")
	case errors.Is(err, core.ErrInvalidAmount):
		return "El monto debe ser un número mayor a cero. Ejemplo: \"Compré un café de $25\""
	case errors.Is(err, core.ErrUnknownType):
		return "No pude identificar si es un ingreso o un gasto. ¿Podrías reformularlo?"
	case errors.Is(err, core.ErrDescriptionLong):
		return fmt.Sprintf("La descripción es muy larga (máximo %d caracteres).", core.MaxDescriptionLength)
	default:
		return FallbackText
	}
}

// CategoriesText lists every type with its categories.
func CategoriesText() string {
	var sb strings.Builder
	sb.WriteString("Estas son las categorías que conozco:")
	for _, t := range core.TransactionTypes {
		fmt.Fprintf(&sb, "\n\n*%s*", taxonomy.TypeLabel(t))
		for _, label := range taxonomy.Labels(t) {
			fmt.Fprintf(&sb, "\n• %s", label)
		}
	}
	return sb.String()
}
