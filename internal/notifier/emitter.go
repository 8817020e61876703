// Package notifier maps domain events onto mail templates and queues the
// rendered messages. Delivery is fire-and-forget after the business
// transaction commits: a notification failure is reported, never raised.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/models"
)

var ErrUnknownTemplate = errors.New("no active mail template for this code")

type Emitter struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewEmitter(db *gorm.DB, log *zap.Logger) *Emitter {
	return &Emitter{db: db, log: log}
}

// Emit renders the template identified by code with the given variables
// and queues one outbox message per recipient. Errors are logged and
// returned so callers can report them, but callers never roll back on an
// Emit failure.
func (e *Emitter) Emit(ctx context.Context, code string, vars map[string]string, recipients ...string) error {
	if len(recipients) == 0 {
		return nil
	}

	var tpl models.MailTemplate
	err := e.db.WithContext(ctx).Where("code = ? AND active = ?", code, true).First(&tpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		e.log.Warn("mail template missing", zap.String("code", code))
		return fmt.Errorf("%w: %s", ErrUnknownTemplate, code)
	}
	if err != nil {
		return err
	}

	subject := Substitute(tpl.Subject, vars)
	body := Substitute(tpl.Body, vars)

	for _, rcpt := range recipients {
		if rcpt == "" {
			continue
		}
		msg := models.OutboxMessage{Recipient: rcpt, Subject: subject, Body: body}
		if err := e.db.WithContext(ctx).Create(&msg).Error; err != nil {
			e.log.Error("failed to queue notification",
				zap.String("code", code), zap.String("recipient", rcpt), zap.Error(err))
			return err
		}
	}

	e.log.Debug("notification queued",
		zap.String("code", code), zap.Int("recipients", len(recipients)))
	return nil
}

// Substitute replaces ${name} placeholders with their values. Unknown
// placeholders are left in place so broken templates are visible.
func Substitute(text string, vars map[string]string) string {
	for name, val := range vars {
		text = strings.ReplaceAll(text, "${"+name+"}", val)
	}
	return text
}
