package notifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.MailTemplate{}, &models.OutboxMessage{}))
	return db
}

func TestSubstitute(t *testing.T) {
	out := Substitute("Hello ${first_name}, slot on ${date}", map[string]string{
		"first_name": "Ada",
		"date":       "2025-03-10",
	})
	assert.Equal(t, "Hello Ada, slot on 2025-03-10", out)

	// Unknown placeholders stay visible.
	out = Substitute("Hi ${unknown}", nil)
	assert.Equal(t, "Hi ${unknown}", out)
}

func TestEmitQueuesPerRecipient(t *testing.T) {
	db := testDB(t)
	db.Create(&models.MailTemplate{
		Code:    models.TplImmersionConfirm,
		Label:   "Registration confirmed",
		Subject: "Registration confirmed: ${slot}",
		Body:    "Dear ${first_name}, you are registered on ${slot}.",
		Active:  true,
	})

	e := NewEmitter(db, zap.NewNop())
	err := e.Emit(context.Background(), models.TplImmersionConfirm,
		map[string]string{"first_name": "Ada", "slot": "Maths on 2025-03-10"},
		"ada@example.org", "tutor@example.org")
	require.NoError(t, err)

	var msgs []models.OutboxMessage
	require.NoError(t, db.Order("id").Find(&msgs).Error)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Registration confirmed: Maths on 2025-03-10", msgs[0].Subject)
	assert.Contains(t, msgs[0].Body, "Dear Ada")
	assert.Nil(t, msgs[0].SentAt)
}

func TestEmitUnknownTemplate(t *testing.T) {
	db := testDB(t)
	e := NewEmitter(db, zap.NewNop())
	err := e.Emit(context.Background(), "NOPE", nil, "x@y.z")
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

type fakeMailer struct {
	sent []string
	fail map[string]bool
}

func (m *fakeMailer) Send(_ context.Context, recipient, _, _ string) error {
	if m.fail[recipient] {
		return errors.New("smtp refused")
	}
	m.sent = append(m.sent, recipient)
	return nil
}

func TestDrainOutbox(t *testing.T) {
	db := testDB(t)
	db.Create(&models.OutboxMessage{Recipient: "a@x.fr", Subject: "s", Body: "b"})
	db.Create(&models.OutboxMessage{Recipient: "bad@x.fr", Subject: "s", Body: "b"})

	mailer := &fakeMailer{fail: map[string]bool{"bad@x.fr": true}}
	sent, err := DrainOutbox(context.Background(), db, mailer, zap.NewNop(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	// The failed row stays queued with its error recorded.
	var failed models.OutboxMessage
	require.NoError(t, db.Where("recipient = ?", "bad@x.fr").First(&failed).Error)
	assert.Nil(t, failed.SentAt)
	assert.Equal(t, 1, failed.Attempts)
	assert.Contains(t, failed.LastError, "smtp refused")

	// A second drain does not resend delivered mail.
	sent, err = DrainOutbox(context.Background(), db, &fakeMailer{}, zap.NewNop(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}
