package businessflow

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/sepehrad/broadcastd/config"
	"github.com/sepehrad/broadcastd/models"
	"github.com/sepehrad/broadcastd/repository"
	testhelpers "github.com/sepehrad/broadcastd/testing"
	"github.com/sepehrad/broadcastd/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type schedulerTestEnv struct {
	tdb      *testhelpers.TestDB
	fixtures *testhelpers.TestFixtures
	flow     SchedulerFlow
}

func newSchedulerTestEnv(tdb *testhelpers.TestDB) *schedulerTestEnv {
	db := tdb.DB
	locks := NewContactChainLocks(nil, &config.CacheConfig{})
	flow := NewSchedulerFlow(
		repository.NewBroadcastRepository(db),
		repository.NewBroadcastSettingRepository(db),
		repository.NewBroadcastContactRepository(db),
		repository.NewQueueEntryRepository(db),
		repository.NewBroadcastMessageLogRepository(db),
		locks,
		db,
	)
	return &schedulerTestEnv{
		tdb:      tdb,
		fixtures: testhelpers.NewTestFixtures(tdb),
		flow:     flow,
	}
}

func TestScheduleChain(t *testing.T) {
	err := testhelpers.TestWithDB(func(tdb *testhelpers.TestDB) error {
		env := newSchedulerTestEnv(tdb)
		ctx := context.Background()

		customer, err := env.fixtures.CreateTestCustomer(100)
		require.NoError(t, err)
		lineNumber, err := env.fixtures.CreateTestLineNumber(customer.ID)
		require.NoError(t, err)
		contact, err := env.fixtures.CreateTestContact(customer.ID, nil)
		require.NoError(t, err)
		broadcast, err := env.fixtures.CreateTestBroadcast(customer.ID, lineNumber.ID, models.BroadcastStatusRunning)
		require.NoError(t, err)
		setting, err := env.fixtures.CreateTestSetting(broadcast.ID, models.SettingTypeImmediate, nil, 0)
		require.NoError(t, err)
		_, err = env.fixtures.CreateTestEnrollment(broadcast.ID, contact.ID, models.EnrollmentStatusRunning)
		require.NoError(t, err)

		require.NoError(t, env.flow.ScheduleChain(ctx, broadcast.ID, contact.ID))

		var entries []models.QueueEntry
		require.NoError(t, tdb.DB.Where("broadcast_id = ? AND contact_id = ?", broadcast.ID, contact.ID).Find(&entries).Error)
		require.Len(t, entries, 1)
		assert.Equal(t, setting.ID, entries[0].SettingID)
		assert.Equal(t, models.QueueEntryStatusPending, entries[0].Status)
		assert.False(t, entries[0].ScheduledAt.After(utils.UTCNow().Add(time.Minute)))

		// Scheduling again must not create a duplicate entry
		require.NoError(t, env.flow.ScheduleChain(ctx, broadcast.ID, contact.ID))
		require.NoError(t, tdb.DB.Where("broadcast_id = ? AND contact_id = ?", broadcast.ID, contact.ID).Find(&entries).Error)
		assert.Len(t, entries, 1)

		return nil
	})
	require.NoError(t, err)
}

func TestScheduleChainHoldsHigherRungs(t *testing.T) {
	err := testhelpers.TestWithDB(func(tdb *testhelpers.TestDB) error {
		env := newSchedulerTestEnv(tdb)
		ctx := context.Background()

		customer, err := env.fixtures.CreateTestCustomer(100)
		require.NoError(t, err)
		lineNumber, err := env.fixtures.CreateTestLineNumber(customer.ID)
		require.NoError(t, err)
		contact, err := env.fixtures.CreateTestContact(customer.ID, nil)
		require.NoError(t, err)
		broadcast, err := env.fixtures.CreateTestBroadcast(customer.ID, lineNumber.ID, models.BroadcastStatusRunning)
		require.NoError(t, err)

		first, err := env.fixtures.CreateTestSetting(broadcast.ID, models.SettingTypeImmediate, nil, 0)
		require.NoError(t, err)
		second, err := env.fixtures.CreateTestSetting(broadcast.ID, models.SettingTypeSchedule, utils.ToPtr(0), 1)
		require.NoError(t, err)
		_, err = env.fixtures.CreateTestEnrollment(broadcast.ID, contact.ID, models.EnrollmentStatusRunning)
		require.NoError(t, err)

		require.NoError(t, env.flow.ScheduleChain(ctx, broadcast.ID, contact.ID))

		// Only the first rung is queued until it is delivered
		var entries []models.QueueEntry
		require.NoError(t, tdb.DB.Where("broadcast_id = ?", broadcast.ID).Find(&entries).Error)
		require.Len(t, entries, 1)
		assert.Equal(t, first.ID, entries[0].SettingID)

		// Record the first step as delivered and clear its queue row
		require.NoError(t, tdb.DB.Delete(&models.QueueEntry{}, entries[0].ID).Error)
		logRow := &models.BroadcastMessageLog{
			BroadcastID: broadcast.ID,
			ContactID:   contact.ID,
			SettingID:   first.ID,
			Kind:        models.MessageLogKindDelivery,
			Delivered:   true,
		}
		require.NoError(t, tdb.DB.Create(logRow).Error)

		require.NoError(t, env.flow.ScheduleChain(ctx, broadcast.ID, contact.ID))

		require.NoError(t, tdb.DB.Where("broadcast_id = ?", broadcast.ID).Find(&entries).Error)
		require.Len(t, entries, 1)
		assert.Equal(t, second.ID, entries[0].SettingID)

		// The delivered step is never queued again
		require.NoError(t, env.flow.ScheduleChain(ctx, broadcast.ID, contact.ID))
		require.NoError(t, tdb.DB.Where("broadcast_id = ? AND setting_id = ?", broadcast.ID, first.ID).Find(&entries).Error)
		assert.Empty(t, entries)

		return nil
	})
	require.NoError(t, err)
}

func TestScheduleChainRecurring(t *testing.T) {
	err := testhelpers.TestWithDB(func(tdb *testhelpers.TestDB) error {
		env := newSchedulerTestEnv(tdb)
		ctx := context.Background()

		customer, err := env.fixtures.CreateTestCustomer(100)
		require.NoError(t, err)
		lineNumber, err := env.fixtures.CreateTestLineNumber(customer.ID)
		require.NoError(t, err)

		newScenario := func(t *testing.T) (*models.Broadcast, *models.Contact, *models.BroadcastContact) {
			contact, err := env.fixtures.CreateTestContact(customer.ID, nil)
			require.NoError(t, err)
			broadcast, err := env.fixtures.CreateTestBroadcast(customer.ID, lineNumber.ID, models.BroadcastStatusRunning)
			require.NoError(t, err)
			enrollment, err := env.fixtures.CreateTestEnrollment(broadcast.ID, contact.ID, models.EnrollmentStatusRunning)
			require.NoError(t, err)
			return broadcast, contact, enrollment
		}
		createRecurring := func(t *testing.T, broadcastID uint, days int) *models.BroadcastSetting {
			setting := &models.BroadcastSetting{
				BroadcastID: broadcastID,
				Type:        models.SettingTypeRecurring,
				Day:         utils.ToPtr(days),
				Time:        utils.ToPtr("09:00"),
				Content:     "recurring message",
				Status:      models.SettingStatusActive,
			}
			require.NoError(t, tdb.DB.Create(setting).Error)
			return setting
		}
		nineAM := func(day time.Time) time.Time {
			return time.Date(day.Year(), day.Month(), day.Day(), 9, 0, 0, 0, time.UTC)
		}

		t.Run("first occurrence counts from the entry date", func(t *testing.T) {
			broadcast, contact, enrollment := newScenario(t)
			setting := createRecurring(t, broadcast.ID, 3)

			require.NoError(t, env.flow.ScheduleChain(ctx, broadcast.ID, contact.ID))

			var entries []models.QueueEntry
			require.NoError(t, tdb.DB.Where("broadcast_id = ?", broadcast.ID).Find(&entries).Error)
			require.Len(t, entries, 1)
			assert.Equal(t, setting.ID, entries[0].SettingID)
			assert.Equal(t, models.QueueEntryStatusPending, entries[0].Status)
			assert.WithinDuration(t, nineAM(enrollment.EntryDate.AddDate(0, 0, 3)), entries[0].ScheduledAt, time.Second)

			// Re-running must not queue the open occurrence twice
			require.NoError(t, env.flow.ScheduleChain(ctx, broadcast.ID, contact.ID))
			require.NoError(t, tdb.DB.Where("broadcast_id = ?", broadcast.ID).Find(&entries).Error)
			assert.Len(t, entries, 1)
		})

		t.Run("repeats from the last delivery", func(t *testing.T) {
			broadcast, contact, _ := newScenario(t)
			setting := createRecurring(t, broadcast.ID, 3)

			deliveredAt := utils.UTCNow().Add(-24 * time.Hour)
			logRow := &models.BroadcastMessageLog{
				BroadcastID: broadcast.ID,
				ContactID:   contact.ID,
				SettingID:   setting.ID,
				Kind:        models.MessageLogKindDelivery,
				Delivered:   true,
				CreatedAt:   deliveredAt,
			}
			require.NoError(t, tdb.DB.Create(logRow).Error)

			require.NoError(t, env.flow.ScheduleChain(ctx, broadcast.ID, contact.ID))

			var entries []models.QueueEntry
			require.NoError(t, tdb.DB.Where("broadcast_id = ?", broadcast.ID).Find(&entries).Error)
			require.Len(t, entries, 1)
			assert.Equal(t, setting.ID, entries[0].SettingID)
			assert.WithinDuration(t, nineAM(deliveredAt.AddDate(0, 0, 3)), entries[0].ScheduledAt, time.Second)
		})

		t.Run("ruled-out day advances by the step cadence", func(t *testing.T) {
			broadcast, contact, enrollment := newScenario(t)
			setting := createRecurring(t, broadcast.ID, 3)

			// Allow only the weekday six days out, so the three-day target
			// lands on a forbidden day and the next try is a cadence later
			allowedDay := enrollment.EntryDate.AddDate(0, 0, 6)
			require.NoError(t, tdb.DB.Model(&models.Broadcast{}).Where("id = ?", broadcast.ID).
				Update("weekdays", pq.StringArray{allowedDay.Weekday().String()}).Error)

			require.NoError(t, env.flow.ScheduleChain(ctx, broadcast.ID, contact.ID))

			var entries []models.QueueEntry
			require.NoError(t, tdb.DB.Where("broadcast_id = ?", broadcast.ID).Find(&entries).Error)
			require.Len(t, entries, 1)
			assert.Equal(t, setting.ID, entries[0].SettingID)

			windowStart := time.Date(allowedDay.Year(), allowedDay.Month(), allowedDay.Day(), 0, 0, 0, 0, time.UTC)
			assert.WithinDuration(t, windowStart, entries[0].ScheduledAt, time.Second)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestScheduleChainSkipsDeletedDeliveredStep(t *testing.T) {
	err := testhelpers.TestWithDB(func(tdb *testhelpers.TestDB) error {
		env := newSchedulerTestEnv(tdb)
		ctx := context.Background()

		customer, err := env.fixtures.CreateTestCustomer(100)
		require.NoError(t, err)
		lineNumber, err := env.fixtures.CreateTestLineNumber(customer.ID)
		require.NoError(t, err)
		contact, err := env.fixtures.CreateTestContact(customer.ID, nil)
		require.NoError(t, err)
		broadcast, err := env.fixtures.CreateTestBroadcast(customer.ID, lineNumber.ID, models.BroadcastStatusRunning)
		require.NoError(t, err)

		first, err := env.fixtures.CreateTestSetting(broadcast.ID, models.SettingTypeImmediate, nil, 0)
		require.NoError(t, err)
		second, err := env.fixtures.CreateTestSetting(broadcast.ID, models.SettingTypeSchedule, utils.ToPtr(1), 1)
		require.NoError(t, err)
		enrollment, err := env.fixtures.CreateTestEnrollment(broadcast.ID, contact.ID, models.EnrollmentStatusRunning)
		require.NoError(t, err)

		// The first step was delivered, then removed from the chain; setting
		// deletion reranks the survivor down to priority 0
		logRow := &models.BroadcastMessageLog{
			BroadcastID: broadcast.ID,
			ContactID:   contact.ID,
			SettingID:   first.ID,
			Kind:        models.MessageLogKindDelivery,
			Delivered:   true,
		}
		require.NoError(t, tdb.DB.Create(logRow).Error)
		require.NoError(t, tdb.DB.Model(&models.BroadcastSetting{}).Where("id = ?", first.ID).
			Update("status", models.SettingStatusDeleted).Error)
		require.NoError(t, tdb.DB.Model(&models.BroadcastSetting{}).Where("id = ?", second.ID).
			Update("priority", 0).Error)

		require.NoError(t, env.flow.ScheduleChain(ctx, broadcast.ID, contact.ID))

		// The deleted step's old priority must not hide the remaining rung
		var entries []models.QueueEntry
		require.NoError(t, tdb.DB.Where("broadcast_id = ?", broadcast.ID).Find(&entries).Error)
		require.Len(t, entries, 1)
		assert.Equal(t, second.ID, entries[0].SettingID)
		assert.WithinDuration(t, enrollment.EntryDate.AddDate(0, 0, 1), entries[0].ScheduledAt, time.Minute)

		return nil
	})
	require.NoError(t, err)
}

func TestScheduleChainGuards(t *testing.T) {
	err := testhelpers.TestWithDB(func(tdb *testhelpers.TestDB) error {
		env := newSchedulerTestEnv(tdb)
		ctx := context.Background()

		customer, err := env.fixtures.CreateTestCustomer(100)
		require.NoError(t, err)
		lineNumber, err := env.fixtures.CreateTestLineNumber(customer.ID)
		require.NoError(t, err)
		contact, err := env.fixtures.CreateTestContact(customer.ID, nil)
		require.NoError(t, err)

		t.Run("missing broadcast", func(t *testing.T) {
			err := env.flow.ScheduleChain(ctx, 99999, contact.ID)
			assert.True(t, IsBroadcastNotFound(err))
		})

		t.Run("broadcast not running", func(t *testing.T) {
			paused, err := env.fixtures.CreateTestBroadcast(customer.ID, lineNumber.ID, models.BroadcastStatusPaused)
			require.NoError(t, err)
			err = env.flow.ScheduleChain(ctx, paused.ID, contact.ID)
			assert.True(t, IsBroadcastNotRunning(err))
		})

		t.Run("missing enrollment", func(t *testing.T) {
			running, err := env.fixtures.CreateTestBroadcast(customer.ID, lineNumber.ID, models.BroadcastStatusRunning)
			require.NoError(t, err)
			err = env.flow.ScheduleChain(ctx, running.ID, contact.ID)
			assert.True(t, IsEnrollmentNotFound(err))
		})

		t.Run("paused enrollment", func(t *testing.T) {
			running, err := env.fixtures.CreateTestBroadcast(customer.ID, lineNumber.ID, models.BroadcastStatusRunning)
			require.NoError(t, err)
			_, err = env.fixtures.CreateTestEnrollment(running.ID, contact.ID, models.EnrollmentStatusPaused)
			require.NoError(t, err)
			err = env.flow.ScheduleChain(ctx, running.ID, contact.ID)
			assert.ErrorIs(t, err, ErrEnrollmentNotRunning)
		})

		return nil
	})
	require.NoError(t, err)
}
