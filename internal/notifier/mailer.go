package notifier

import (
	"context"
	"fmt"
	"net/smtp"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/models"
)

// Mailer delivers one rendered message. Rendering and queueing live in
// the Emitter; implementations only transport.
type Mailer interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// SMTPMailer is the plain SMTP transport.
type SMTPMailer struct {
	Addr string // host:port
	From string
}

func (m *SMTPMailer) Send(_ context.Context, recipient, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		m.From, recipient, subject, body)
	return smtp.SendMail(m.Addr, nil, m.From, []string{recipient}, []byte(msg))
}

// DrainOutbox hands unsent outbox rows to the mailer. Failed rows keep
// their error and stay queued for the next run. Returns the number of
// messages delivered.
func DrainOutbox(ctx context.Context, db *gorm.DB, mailer Mailer, log *zap.Logger, batch int) (int, error) {
	var pending []models.OutboxMessage
	err := db.WithContext(ctx).
		Where("sent_at IS NULL").Order("id").Limit(batch).Find(&pending).Error
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range pending {
		msg := &pending[i]
		if err := mailer.Send(ctx, msg.Recipient, msg.Subject, msg.Body); err != nil {
			log.Warn("mail delivery failed",
				zap.String("recipient", msg.Recipient), zap.Error(err))
			db.WithContext(ctx).Model(msg).Updates(map[string]interface{}{
				"last_error": err.Error(),
				"attempts":   msg.Attempts + 1,
			})
			continue
		}
		now := time.Now()
		if err := db.WithContext(ctx).Model(msg).Updates(map[string]interface{}{
			"sent_at":  &now,
			"attempts": msg.Attempts + 1,
		}).Error; err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}
