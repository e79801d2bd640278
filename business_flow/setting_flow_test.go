package businessflow

import (
	"context"
	"testing"

	"github.com/sepehrad/broadcastd/app/dto"
	"github.com/sepehrad/broadcastd/models"
	"github.com/sepehrad/broadcastd/repository"
	testhelpers "github.com/sepehrad/broadcastd/testing"
	"github.com/sepehrad/broadcastd/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type settingTestEnv struct {
	tdb      *testhelpers.TestDB
	fixtures *testhelpers.TestFixtures
	flow     SettingFlow
}

func newSettingTestEnv(tdb *testhelpers.TestDB) *settingTestEnv {
	db := tdb.DB
	flow := NewSettingFlow(
		repository.NewBroadcastRepository(db),
		repository.NewBroadcastSettingRepository(db),
		db,
	)
	return &settingTestEnv{
		tdb:      tdb,
		fixtures: testhelpers.NewTestFixtures(tdb),
		flow:     flow,
	}
}

func (env *settingTestEnv) buildBroadcast(t *testing.T) (*models.Customer, *models.Broadcast) {
	customer, err := env.fixtures.CreateTestCustomer(100)
	require.NoError(t, err)
	lineNumber, err := env.fixtures.CreateTestLineNumber(customer.ID)
	require.NoError(t, err)
	broadcast, err := env.fixtures.CreateTestBroadcast(customer.ID, lineNumber.ID, models.BroadcastStatusActive)
	require.NoError(t, err)
	return customer, broadcast
}

func (env *settingTestEnv) addSetting(t *testing.T, customer *models.Customer, broadcast *models.Broadcast, typ string, day *int) *dto.AddSettingResponse {
	resp, err := env.flow.AddSetting(context.Background(), &dto.AddSettingRequest{
		BroadcastUUID: broadcast.UUID.String(),
		CustomerID:    customer.ID,
		Type:          &typ,
		Day:           day,
		Content:       utils.ToPtr("step content"),
	}, NewClientMetadata("127.0.0.1", "test"))
	require.NoError(t, err)
	return resp
}

func TestAddSettingReranksChain(t *testing.T) {
	err := testhelpers.TestWithDB(func(tdb *testhelpers.TestDB) error {
		env := newSettingTestEnv(tdb)
		customer, broadcast := env.buildBroadcast(t)

		// A scheduled step alone ranks first
		scheduled := env.addSetting(t, customer, broadcast, "schedule", utils.ToPtr(2))
		assert.Equal(t, 0, scheduled.Priority)

		// An immediate step added later still outranks it
		immediate := env.addSetting(t, customer, broadcast, "immediate", nil)
		assert.Equal(t, 0, immediate.Priority)

		var settings []models.BroadcastSetting
		require.NoError(t, tdb.DB.Where("broadcast_id = ?", broadcast.ID).Order("priority").Find(&settings).Error)
		require.Len(t, settings, 2)
		assert.Equal(t, immediate.ID, settings[0].ID)
		assert.Equal(t, scheduled.ID, settings[1].ID)
		assert.Equal(t, 1, settings[1].Priority)

		return nil
	})
	require.NoError(t, err)
}

func TestAddSettingValidation(t *testing.T) {
	err := testhelpers.TestWithDB(func(tdb *testhelpers.TestDB) error {
		env := newSettingTestEnv(tdb)
		ctx := context.Background()
		metadata := NewClientMetadata("127.0.0.1", "test")
		customer, broadcast := env.buildBroadcast(t)

		request := func(typ string, day *int, content *string) *dto.AddSettingRequest {
			return &dto.AddSettingRequest{
				BroadcastUUID: broadcast.UUID.String(),
				CustomerID:    customer.ID,
				Type:          &typ,
				Day:           day,
				Content:       content,
			}
		}

		t.Run("unknown type", func(t *testing.T) {
			_, err := env.flow.AddSetting(ctx, request("eventually", nil, utils.ToPtr("x")), metadata)
			assert.ErrorIs(t, err, ErrInvalidSettingType)
		})

		t.Run("empty content", func(t *testing.T) {
			_, err := env.flow.AddSetting(ctx, request("immediate", nil, utils.ToPtr("")), metadata)
			assert.ErrorIs(t, err, ErrContentRequired)
		})

		t.Run("scheduled step without day", func(t *testing.T) {
			_, err := env.flow.AddSetting(ctx, request("schedule", nil, utils.ToPtr("x")), metadata)
			assert.ErrorIs(t, err, ErrDayRequired)
		})

		t.Run("recurring step with zero interval", func(t *testing.T) {
			_, err := env.flow.AddSetting(ctx, request("recurring", utils.ToPtr(0), utils.ToPtr("x")), metadata)
			assert.ErrorIs(t, err, ErrInvalidDayInterval)
		})

		t.Run("stopped broadcast", func(t *testing.T) {
			require.NoError(t, tdb.DB.Model(&models.Broadcast{}).
				Where("id = ?", broadcast.ID).
				Update("status", models.BroadcastStatusStopped).Error)

			_, err := env.flow.AddSetting(ctx, request("immediate", nil, utils.ToPtr("x")), metadata)
			assert.ErrorIs(t, err, ErrBroadcastTerminal)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestDeleteSettingReranksRemainder(t *testing.T) {
	err := testhelpers.TestWithDB(func(tdb *testhelpers.TestDB) error {
		env := newSettingTestEnv(tdb)
		ctx := context.Background()
		metadata := NewClientMetadata("127.0.0.1", "test")
		customer, broadcast := env.buildBroadcast(t)

		first := env.addSetting(t, customer, broadcast, "immediate", nil)
		second := env.addSetting(t, customer, broadcast, "schedule", utils.ToPtr(1))

		_, err := env.flow.DeleteSetting(ctx, &dto.DeleteSettingRequest{
			BroadcastUUID: broadcast.UUID.String(),
			CustomerID:    customer.ID,
			SettingID:     first.ID,
		}, metadata)
		require.NoError(t, err)

		// The deleted step keeps its row, the survivor takes the head slot
		var deleted models.BroadcastSetting
		require.NoError(t, tdb.DB.First(&deleted, first.ID).Error)
		assert.Equal(t, models.SettingStatusDeleted, deleted.Status)

		var survivor models.BroadcastSetting
		require.NoError(t, tdb.DB.First(&survivor, second.ID).Error)
		assert.Equal(t, 0, survivor.Priority)

		// Deleting it again is rejected
		_, err = env.flow.DeleteSetting(ctx, &dto.DeleteSettingRequest{
			BroadcastUUID: broadcast.UUID.String(),
			CustomerID:    customer.ID,
			SettingID:     first.ID,
		}, metadata)
		assert.ErrorIs(t, err, ErrSettingNotActive)

		return nil
	})
	require.NoError(t, err)
}
