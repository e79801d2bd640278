package businessflow

import (
	"context"
	"strconv"
	"testing"

	"github.com/sepehrad/broadcastd/app/services"
	"github.com/sepehrad/broadcastd/config"
	"github.com/sepehrad/broadcastd/models"
	"github.com/sepehrad/broadcastd/repository"
	testhelpers "github.com/sepehrad/broadcastd/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entryTestEnv struct {
	tdb      *testhelpers.TestDB
	fixtures *testhelpers.TestFixtures
	flow     ContactEntryFlow
}

func newEntryTestEnv(tdb *testhelpers.TestDB) *entryTestEnv {
	db := tdb.DB
	contactRepo := repository.NewContactRepository(db)
	optOutRepo := repository.NewOptOutRepository(db)
	optOuts := NewOptOutCache(nil, &config.CacheConfig{}, optOutRepo)
	locks := NewContactChainLocks(nil, &config.CacheConfig{})
	scheduler := NewSchedulerFlow(
		repository.NewBroadcastRepository(db),
		repository.NewBroadcastSettingRepository(db),
		repository.NewBroadcastContactRepository(db),
		repository.NewQueueEntryRepository(db),
		repository.NewBroadcastMessageLogRepository(db),
		locks,
		db,
	)
	flow := NewContactEntryFlow(
		repository.NewBroadcastRepository(db),
		contactRepo,
		repository.NewBroadcastContactRepository(db),
		repository.NewEnrollmentSourceRepository(db),
		repository.NewBroadcastSummaryRepository(db),
		optOuts,
		services.NewContactSourceService(contactRepo),
		scheduler,
		db,
	)
	return &entryTestEnv{
		tdb:      tdb,
		fixtures: testhelpers.NewTestFixtures(tdb),
		flow:     flow,
	}
}

func (env *entryTestEnv) buildBroadcast(t *testing.T, status models.BroadcastStatus) (*models.Customer, *models.Broadcast) {
	customer, err := env.fixtures.CreateTestCustomer(100)
	require.NoError(t, err)
	lineNumber, err := env.fixtures.CreateTestLineNumber(customer.ID)
	require.NoError(t, err)
	broadcast, err := env.fixtures.CreateTestBroadcast(customer.ID, lineNumber.ID, status)
	require.NoError(t, err)
	_, err = env.fixtures.CreateTestSetting(broadcast.ID, models.SettingTypeImmediate, nil, 0)
	require.NoError(t, err)
	return customer, broadcast
}

func TestEnrollContact(t *testing.T) {
	err := testhelpers.TestWithDB(func(tdb *testhelpers.TestDB) error {
		env := newEntryTestEnv(tdb)
		ctx := context.Background()

		customer, broadcast := env.buildBroadcast(t, models.BroadcastStatusRunning)
		contact, err := env.fixtures.CreateTestContact(customer.ID, nil)
		require.NoError(t, err)

		require.NoError(t, env.flow.EnrollContact(ctx, broadcast.ID, contact.ID))

		var enrollment models.BroadcastContact
		require.NoError(t, tdb.DB.Where("broadcast_id = ? AND contact_id = ?", broadcast.ID, contact.ID).First(&enrollment).Error)
		assert.Equal(t, models.EnrollmentStatusRunning, enrollment.Status)
		assert.False(t, enrollment.EntryDate.IsZero())

		var summary models.BroadcastSummary
		require.NoError(t, tdb.DB.Where("broadcast_id = ?", broadcast.ID).First(&summary).Error)
		assert.Equal(t, int64(1), summary.TotalEnrolled)

		// Running broadcast schedules the first rung right away
		var count int64
		require.NoError(t, tdb.DB.Model(&models.QueueEntry{}).
			Where("broadcast_id = ? AND contact_id = ?", broadcast.ID, contact.ID).Count(&count).Error)
		assert.Equal(t, int64(1), count)

		return nil
	})
	require.NoError(t, err)
}

func TestEnrollContactRejections(t *testing.T) {
	err := testhelpers.TestWithDB(func(tdb *testhelpers.TestDB) error {
		env := newEntryTestEnv(tdb)
		ctx := context.Background()

		customer, broadcast := env.buildBroadcast(t, models.BroadcastStatusRunning)
		contact, err := env.fixtures.CreateTestContact(customer.ID, nil)
		require.NoError(t, err)

		t.Run("duplicate enrollment", func(t *testing.T) {
			require.NoError(t, env.flow.EnrollContact(ctx, broadcast.ID, contact.ID))
			err := env.flow.EnrollContact(ctx, broadcast.ID, contact.ID)
			assert.ErrorIs(t, err, ErrAlreadyEnrolled)
		})

		t.Run("opted-out contact", func(t *testing.T) {
			optedOut, err := env.fixtures.CreateTestContact(customer.ID, nil)
			require.NoError(t, err)
			require.NoError(t, tdb.DB.Create(&models.OptOut{
				CustomerID: customer.ID,
				ContactID:  optedOut.ID,
				Action:     models.ControlActionOptOut,
			}).Error)

			err = env.flow.EnrollContact(ctx, broadcast.ID, optedOut.ID)
			assert.ErrorIs(t, err, ErrContactOptedOut)
		})

		t.Run("inactive contact", func(t *testing.T) {
			inactive, err := env.fixtures.CreateTestContact(customer.ID, nil)
			require.NoError(t, err)
			require.NoError(t, tdb.DB.Model(&models.Contact{}).
				Where("id = ?", inactive.ID).
				Update("is_active", false).Error)

			err = env.flow.EnrollContact(ctx, broadcast.ID, inactive.ID)
			assert.ErrorIs(t, err, ErrContactInactive)
		})

		t.Run("missing broadcast", func(t *testing.T) {
			err := env.flow.EnrollContact(ctx, 99999, contact.ID)
			assert.True(t, IsBroadcastNotFound(err))
		})

		t.Run("terminal broadcast", func(t *testing.T) {
			_, stopped := env.buildBroadcast(t, models.BroadcastStatusStopped)
			err := env.flow.EnrollContact(ctx, stopped.ID, contact.ID)
			assert.ErrorIs(t, err, ErrBroadcastTerminal)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestExpandSource(t *testing.T) {
	err := testhelpers.TestWithDB(func(tdb *testhelpers.TestDB) error {
		env := newEntryTestEnv(tdb)
		ctx := context.Background()

		customer, broadcast := env.buildBroadcast(t, models.BroadcastStatusRunning)

		listID := uint(42)
		var contactIDs []uint
		for i := 0; i < 3; i++ {
			contact, err := env.fixtures.CreateTestContact(customer.ID, &listID)
			require.NoError(t, err)
			contactIDs = append(contactIDs, contact.ID)
		}
		// A contact outside the list must not be pulled in
		_, err := env.fixtures.CreateTestContact(customer.ID, nil)
		require.NoError(t, err)

		source := &models.EnrollmentSource{
			BroadcastID: broadcast.ID,
			Type:        models.SourceTypeList,
			SourceRef:   strconv.FormatUint(uint64(listID), 10),
			Status:      models.SourceStatusProcessing,
		}
		require.NoError(t, tdb.DB.Create(source).Error)

		require.NoError(t, env.flow.ExpandSource(ctx, source.ID))

		var enrollments []models.BroadcastContact
		require.NoError(t, tdb.DB.Where("broadcast_id = ?", broadcast.ID).Order("contact_id").Find(&enrollments).Error)
		require.Len(t, enrollments, 3)
		for i, enrollment := range enrollments {
			assert.Equal(t, contactIDs[i], enrollment.ContactID)
		}

		var updated models.EnrollmentSource
		require.NoError(t, tdb.DB.First(&updated, source.ID).Error)
		assert.Equal(t, models.SourceStatusCompleted, updated.Status)
		assert.Equal(t, contactIDs[len(contactIDs)-1], updated.Cursor)

		var summary models.BroadcastSummary
		require.NoError(t, tdb.DB.Where("broadcast_id = ?", broadcast.ID).First(&summary).Error)
		assert.Equal(t, int64(3), summary.TotalEnrolled)

		return nil
	})
	require.NoError(t, err)
}

func TestExpandSourceSkipsRejectedContacts(t *testing.T) {
	err := testhelpers.TestWithDB(func(tdb *testhelpers.TestDB) error {
		env := newEntryTestEnv(tdb)
		ctx := context.Background()

		customer, broadcast := env.buildBroadcast(t, models.BroadcastStatusRunning)

		listID := uint(7)
		kept, err := env.fixtures.CreateTestContact(customer.ID, &listID)
		require.NoError(t, err)
		already, err := env.fixtures.CreateTestContact(customer.ID, &listID)
		require.NoError(t, err)
		require.NoError(t, env.flow.EnrollContact(ctx, broadcast.ID, already.ID))

		source := &models.EnrollmentSource{
			BroadcastID: broadcast.ID,
			Type:        models.SourceTypeList,
			SourceRef:   strconv.FormatUint(uint64(listID), 10),
			Status:      models.SourceStatusProcessing,
		}
		require.NoError(t, tdb.DB.Create(source).Error)

		require.NoError(t, env.flow.ExpandSource(ctx, source.ID))

		// The duplicate is skipped, the new contact lands, the source completes
		var count int64
		require.NoError(t, tdb.DB.Model(&models.BroadcastContact{}).
			Where("broadcast_id = ?", broadcast.ID).Count(&count).Error)
		assert.Equal(t, int64(2), count)

		var enrollment models.BroadcastContact
		require.NoError(t, tdb.DB.Where("broadcast_id = ? AND contact_id = ?", broadcast.ID, kept.ID).First(&enrollment).Error)
		assert.Equal(t, models.EnrollmentStatusRunning, enrollment.Status)

		var updated models.EnrollmentSource
		require.NoError(t, tdb.DB.First(&updated, source.ID).Error)
		assert.Equal(t, models.SourceStatusCompleted, updated.Status)

		return nil
	})
	require.NoError(t, err)
}

func TestExpandSourceMalformedRefFails(t *testing.T) {
	err := testhelpers.TestWithDB(func(tdb *testhelpers.TestDB) error {
		env := newEntryTestEnv(tdb)
		ctx := context.Background()

		_, broadcast := env.buildBroadcast(t, models.BroadcastStatusRunning)

		source := &models.EnrollmentSource{
			BroadcastID: broadcast.ID,
			Type:        models.SourceTypeList,
			SourceRef:   "not-a-number",
			Status:      models.SourceStatusProcessing,
		}
		require.NoError(t, tdb.DB.Create(source).Error)

		err := env.flow.ExpandSource(ctx, source.ID)
		require.Error(t, err)

		var updated models.EnrollmentSource
		require.NoError(t, tdb.DB.First(&updated, source.ID).Error)
		assert.Equal(t, models.SourceStatusFailed, updated.Status)
		require.NotNil(t, updated.FailedReason)
		assert.Contains(t, *updated.FailedReason, "source expansion failed")

		return nil
	})
	require.NoError(t, err)
}
