package businessflow

import (
	"context"
	"testing"

	"github.com/sepehrad/broadcastd/config"
	"github.com/sepehrad/broadcastd/models"
	"github.com/sepehrad/broadcastd/repository"
	testhelpers "github.com/sepehrad/broadcastd/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type controlTestEnv struct {
	tdb      *testhelpers.TestDB
	fixtures *testhelpers.TestFixtures
	flow     ControlFlow
}

func newControlTestEnv(tdb *testhelpers.TestDB) *controlTestEnv {
	db := tdb.DB
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
	flow := NewControlFlow(
		repository.NewControlRequestRepository(db),
		repository.NewBroadcastRepository(db),
		repository.NewBroadcastContactRepository(db),
		repository.NewQueueEntryRepository(db),
		repository.NewBroadcastSummaryRepository(db),
		optOutRepo,
		optOuts,
		scheduler,
		db,
	)
	return &controlTestEnv{
		tdb:      tdb,
		fixtures: testhelpers.NewTestFixtures(tdb),
		flow:     flow,
	}
}

// controlScenario is a running broadcast with one running enrollment and a
// pending queue entry for its immediate step
type controlScenario struct {
	customer  *models.Customer
	contact   *models.Contact
	broadcast *models.Broadcast
	setting   *models.BroadcastSetting
	entry     *models.QueueEntry
}

func (env *controlTestEnv) buildScenario(t *testing.T) *controlScenario {
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
	entry, err := env.fixtures.CreateTestQueueEntry(broadcast.ID, contact.ID, setting.ID)
	require.NoError(t, err)
	return &controlScenario{
		customer:  customer,
		contact:   contact,
		broadcast: broadcast,
		setting:   setting,
		entry:     entry,
	}
}

func (env *controlTestEnv) claimRequest(t *testing.T, scope models.ControlScope, action models.ControlAction, broadcastID uint, contactID *uint) *models.ControlRequest {
	request := &models.ControlRequest{
		Scope:       scope,
		Action:      action,
		BroadcastID: broadcastID,
		ContactID:   contactID,
		Status:      models.ControlRequestStatusProcessing,
	}
	require.NoError(t, env.tdb.DB.Create(request).Error)
	return request
}

func TestControlPausesBroadcast(t *testing.T) {
	err := testhelpers.TestWithDB(func(tdb *testhelpers.TestDB) error {
		env := newControlTestEnv(tdb)
		ctx := context.Background()
		sc := env.buildScenario(t)

		request := env.claimRequest(t, models.ControlScopeBroadcast, models.ControlActionPause, sc.broadcast.ID, nil)
		require.NoError(t, env.flow.Apply(ctx, request.ID))

		var broadcast models.Broadcast
		require.NoError(t, tdb.DB.First(&broadcast, sc.broadcast.ID).Error)
		assert.Equal(t, models.BroadcastStatusPaused, broadcast.Status)

		// Pending entries are swept out with the pause
		var count int64
		require.NoError(t, tdb.DB.Model(&models.QueueEntry{}).Where("broadcast_id = ?", sc.broadcast.ID).Count(&count).Error)
		assert.Zero(t, count)

		var updated models.ControlRequest
		require.NoError(t, tdb.DB.First(&updated, request.ID).Error)
		assert.Equal(t, models.ControlRequestStatusCompleted, updated.Status)
		assert.NotNil(t, updated.ProcessedAt)

		return nil
	})
	require.NoError(t, err)
}

func TestControlResumeReschedulesChains(t *testing.T) {
	err := testhelpers.TestWithDB(func(tdb *testhelpers.TestDB) error {
		env := newControlTestEnv(tdb)
		ctx := context.Background()
		sc := env.buildScenario(t)

		pause := env.claimRequest(t, models.ControlScopeBroadcast, models.ControlActionPause, sc.broadcast.ID, nil)
		require.NoError(t, env.flow.Apply(ctx, pause.ID))

		resume := env.claimRequest(t, models.ControlScopeBroadcast, models.ControlActionResume, sc.broadcast.ID, nil)
		require.NoError(t, env.flow.Apply(ctx, resume.ID))

		var broadcast models.Broadcast
		require.NoError(t, tdb.DB.First(&broadcast, sc.broadcast.ID).Error)
		assert.Equal(t, models.BroadcastStatusRunning, broadcast.Status)

		// The running enrollment gets its chain rebuilt
		var entries []models.QueueEntry
		require.NoError(t, tdb.DB.Where("broadcast_id = ? AND contact_id = ?", sc.broadcast.ID, sc.contact.ID).Find(&entries).Error)
		require.Len(t, entries, 1)
		assert.Equal(t, sc.setting.ID, entries[0].SettingID)

		return nil
	})
	require.NoError(t, err)
}

func TestControlPauseAndResumeEnrollment(t *testing.T) {
	err := testhelpers.TestWithDB(func(tdb *testhelpers.TestDB) error {
		env := newControlTestEnv(tdb)
		ctx := context.Background()
		sc := env.buildScenario(t)

		pause := env.claimRequest(t, models.ControlScopeContact, models.ControlActionPause, sc.broadcast.ID, &sc.contact.ID)
		require.NoError(t, env.flow.Apply(ctx, pause.ID))

		var enrollment models.BroadcastContact
		require.NoError(t, tdb.DB.Where("broadcast_id = ? AND contact_id = ?", sc.broadcast.ID, sc.contact.ID).First(&enrollment).Error)
		assert.Equal(t, models.EnrollmentStatusPaused, enrollment.Status)

		var count int64
		require.NoError(t, tdb.DB.Model(&models.QueueEntry{}).Where("broadcast_id = ?", sc.broadcast.ID).Count(&count).Error)
		assert.Zero(t, count)

		var summary models.BroadcastSummary
		require.NoError(t, tdb.DB.Where("broadcast_id = ?", sc.broadcast.ID).First(&summary).Error)
		assert.Equal(t, int64(1), summary.Paused)

		priorEntryDate := enrollment.EntryDate

		resume := env.claimRequest(t, models.ControlScopeContact, models.ControlActionResume, sc.broadcast.ID, &sc.contact.ID)
		require.NoError(t, env.flow.Apply(ctx, resume.ID))

		require.NoError(t, tdb.DB.Where("broadcast_id = ? AND contact_id = ?", sc.broadcast.ID, sc.contact.ID).First(&enrollment).Error)
		assert.Equal(t, models.EnrollmentStatusRunning, enrollment.Status)
		assert.False(t, enrollment.EntryDate.Before(priorEntryDate), "entry date resets to the re-entry instant")

		require.NoError(t, tdb.DB.Where("broadcast_id = ?", sc.broadcast.ID).First(&summary).Error)
		assert.Equal(t, int64(0), summary.Paused)

		// Chain rebuilt against the running broadcast
		require.NoError(t, tdb.DB.Model(&models.QueueEntry{}).Where("broadcast_id = ?", sc.broadcast.ID).Count(&count).Error)
		assert.Equal(t, int64(1), count)

		return nil
	})
	require.NoError(t, err)
}

func TestControlOptOutClosesEnrollment(t *testing.T) {
	err := testhelpers.TestWithDB(func(tdb *testhelpers.TestDB) error {
		env := newControlTestEnv(tdb)
		ctx := context.Background()
		sc := env.buildScenario(t)

		request := env.claimRequest(t, models.ControlScopeContact, models.ControlActionOptOut, sc.broadcast.ID, &sc.contact.ID)
		require.NoError(t, env.flow.Apply(ctx, request.ID))

		var enrollment models.BroadcastContact
		require.NoError(t, tdb.DB.Where("broadcast_id = ? AND contact_id = ?", sc.broadcast.ID, sc.contact.ID).First(&enrollment).Error)
		assert.Equal(t, models.EnrollmentStatusOptOut, enrollment.Status)

		var count int64
		require.NoError(t, tdb.DB.Model(&models.QueueEntry{}).Where("broadcast_id = ?", sc.broadcast.ID).Count(&count).Error)
		assert.Zero(t, count)

		// The opt-out is customer wide, recorded against the source broadcast
		var optOut models.OptOut
		require.NoError(t, tdb.DB.Where("customer_id = ? AND contact_id = ?", sc.customer.ID, sc.contact.ID).First(&optOut).Error)
		assert.Equal(t, models.ControlActionOptOut, optOut.Action)
		require.NotNil(t, optOut.SourceBroadcastID)
		assert.Equal(t, sc.broadcast.ID, *optOut.SourceBroadcastID)

		var summary models.BroadcastSummary
		require.NoError(t, tdb.DB.Where("broadcast_id = ?", sc.broadcast.ID).First(&summary).Error)
		assert.Equal(t, int64(1), summary.OptedOut)

		return nil
	})
	require.NoError(t, err)
}

func TestControlMarksInvalidRequestFailed(t *testing.T) {
	err := testhelpers.TestWithDB(func(tdb *testhelpers.TestDB) error {
		env := newControlTestEnv(tdb)
		ctx := context.Background()
		sc := env.buildScenario(t)

		require.NoError(t, tdb.DB.Model(&models.Broadcast{}).
			Where("id = ?", sc.broadcast.ID).
			Update("status", models.BroadcastStatusStopped).Error)

		request := env.claimRequest(t, models.ControlScopeBroadcast, models.ControlActionResume, sc.broadcast.ID, nil)
		require.NoError(t, env.flow.Apply(ctx, request.ID))

		// Stopped is terminal, so the request fails instead of resuming
		var updated models.ControlRequest
		require.NoError(t, tdb.DB.First(&updated, request.ID).Error)
		assert.Equal(t, models.ControlRequestStatusFailed, updated.Status)
		require.NotNil(t, updated.FailedReason)
		assert.Contains(t, *updated.FailedReason, "cannot move")

		var broadcast models.Broadcast
		require.NoError(t, tdb.DB.First(&broadcast, sc.broadcast.ID).Error)
		assert.Equal(t, models.BroadcastStatusStopped, broadcast.Status)

		return nil
	})
	require.NoError(t, err)
}

func TestControlSkipsRequestNotInProcessing(t *testing.T) {
	err := testhelpers.TestWithDB(func(tdb *testhelpers.TestDB) error {
		env := newControlTestEnv(tdb)
		ctx := context.Background()
		sc := env.buildScenario(t)

		request := &models.ControlRequest{
			Scope:       models.ControlScopeBroadcast,
			Action:      models.ControlActionPause,
			BroadcastID: sc.broadcast.ID,
			Status:      models.ControlRequestStatusPending,
		}
		require.NoError(t, tdb.DB.Create(request).Error)

		require.NoError(t, env.flow.Apply(ctx, request.ID))

		var broadcast models.Broadcast
		require.NoError(t, tdb.DB.First(&broadcast, sc.broadcast.ID).Error)
		assert.Equal(t, models.BroadcastStatusRunning, broadcast.Status, "unclaimed requests are never applied")

		return nil
	})
	require.NoError(t, err)
}
