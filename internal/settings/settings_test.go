package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.GeneralSetting{}))
	return NewStore(db, nil, zap.NewNop())
}

func TestDefaultsWhenMissing(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	assert.False(t, s.Bool(ctx, models.SettingActivateTrainingQuotas, false))
	assert.Equal(t, 4, s.Int(ctx, models.SettingSlotRegistrationLimit, 4))
	assert.Equal(t, "x@y.z", s.String(ctx, models.SettingMailContactRefEtab, "x@y.z"))

	_, err := s.Require(ctx, models.SettingGlobalMailingList)
	assert.ErrorIs(t, err, ErrMissing)
}

func TestSetAndGet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, models.SettingActivateTrainingQuotas, "boolean", true))
	assert.True(t, s.Bool(ctx, models.SettingActivateTrainingQuotas, false))

	require.NoError(t, s.Set(ctx, models.SettingAttestationDepositDelay, "integer", 30))
	assert.Equal(t, 30, s.Int(ctx, models.SettingAttestationDepositDelay, 0))

	require.NoError(t, s.Set(ctx, models.SettingGlobalMailingList, "text", "all@immersup.fr"))
	v, err := s.Require(ctx, models.SettingGlobalMailingList)
	require.NoError(t, err)
	assert.Equal(t, "all@immersup.fr", v)

	// Upsert replaces the previous value.
	require.NoError(t, s.Set(ctx, models.SettingAttestationDepositDelay, "integer", 15))
	assert.Equal(t, 15, s.Int(ctx, models.SettingAttestationDepositDelay, 0))
}
