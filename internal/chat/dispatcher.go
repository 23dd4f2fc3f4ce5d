// Package chat turns one inbound WhatsApp message into one reply. It never
// talks to the transport itself.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"matador/internal/core"
	"matador/internal/extractor"
	"matador/internal/ledger"
	"matador/internal/log"
	"matador/internal/services"
)

// DefaultExtractorTimeout bounds one extractor call.
const DefaultExtractorTimeout = 15 * time.Second

// Inbound is a message already stripped of transport details.
type Inbound struct {
	Phone string
	Name  string
	Text  string
}

type Dispatcher struct {
	users     ledger.UserStore
	service   *services.TransactionService
	extractor extractor.Extractor
	timeout   time.Duration
}

func NewDispatcher(users ledger.UserStore, service *services.TransactionService, ex extractor.Extractor, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultExtractorTimeout
	}
	return &Dispatcher{
		users:     users,
		service:   service,
		extractor: ex,
		timeout:   timeout,
	}
}

// HandleMessage always returns a reply. The extractor runs before any write
// and holds no lock.
func (d *Dispatcher) HandleMessage(ctx context.Context, in Inbound) string {
	logger := log.FromContext(ctx).WithComponent(log.ComponentChat)

	phone := core.NormalizePhone(in.Phone)
	if phone == "" {
		logger.WarnContext(ctx, "Message without sender phone")
		return ApologyText
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return QueryHelpText
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = core.DefaultUserName
	}
	user, created, err := d.users.FindOrCreateUser(ctx, phone, name)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load user", log.NewFields().WithError(err).WithOperation(log.OpRead).ToSlice()...)
		return ApologyText
	}
	if created {
		logger.InfoContext(ctx, "New user registered", log.FieldUserID, user.ID)
		return WelcomeText
	}

	if err := d.users.TouchUser(ctx, user.ID); err != nil {
		logger.WarnContext(ctx, "Failed to update last interaction", log.FieldUserID, user.ID, log.FieldError, err)
	}

	weekly, err := d.service.Stats().WeeklyStats(ctx, user.ID, d.service.Now())
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load weekly context", log.FieldUserID, user.ID, log.FieldError, err)
		return ApologyText
	}

	intent, err := d.extract(ctx, text, extractor.Context{
		WeeklyAntCount: weekly.AntExpenses.Count,
		WeeklyAntTotal: weekly.AntExpenses.Total,
	})
	if err != nil {
		logger.WarnContext(ctx, "Extractor failed",
			log.NewFields().WithUser(user.ID).WithError(err).WithOperation(log.OpExtract).ToSlice()...)
		return FallbackText
	}

	out, err := d.service.Apply(ctx, user, intent, text)
	if err != nil {
		if core.IsValidationError(err) {
			logger.InfoContext(ctx, "Rejected intent",
				log.NewFields().WithUser(user.ID).WithError(err).WithOperation(log.OpValidate).ToSlice()...)
			return validationReply(err, intent)
		}
		logger.ErrorContext(ctx, "Failed to apply intent",
			log.NewFields().WithUser(user.ID).WithError(err).ToSlice()...)
		return failureReply(intent.Action)
	}

	if out.Transaction != nil {
		logger.InfoContext(ctx, "Applied intent",
			append(log.NewFields().WithTransaction(*out.Transaction).ToSlice(), log.FieldAction, intent.Action)...)
	}
	return Render(out)
}

func (d *Dispatcher) extract(ctx context.Context, text string, uc extractor.Context) (extractor.Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	intent, err := d.extractor.Extract(ctx, text, uc)
	if err != nil && !errors.Is(err, extractor.ErrExtractorFailure) {
		err = errors.Join(extractor.ErrExtractorFailure, err)
	}
	return intent, err
}

func failureReply(action extractor.Action) string {
	switch action {
	case extractor.ActionRegister:
		return RegisterFailedText
	case extractor.ActionCorrection:
		return CorrectFailedText
	case extractor.ActionQuery:
		return QueryFailedText
	}
	return ApologyText
}
