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

type broadcastTestEnv struct {
	tdb      *testhelpers.TestDB
	fixtures *testhelpers.TestFixtures
	flow     BroadcastFlow
}

func newBroadcastTestEnv(tdb *testhelpers.TestDB) *broadcastTestEnv {
	db := tdb.DB
	flow := NewBroadcastFlow(
		repository.NewBroadcastRepository(db),
		repository.NewCustomerRepository(db),
		repository.NewLineNumberRepository(db),
		repository.NewControlRequestRepository(db),
		repository.NewEnrollmentSourceRepository(db),
		db,
	)
	return &broadcastTestEnv{
		tdb:      tdb,
		fixtures: testhelpers.NewTestFixtures(tdb),
		flow:     flow,
	}
}

func TestCreateBroadcast(t *testing.T) {
	err := testhelpers.TestWithDB(func(tdb *testhelpers.TestDB) error {
		env := newBroadcastTestEnv(tdb)
		ctx := context.Background()
		metadata := NewClientMetadata("127.0.0.1", "test")

		customer, err := env.fixtures.CreateTestCustomer(100)
		require.NoError(t, err)
		lineNumber, err := env.fixtures.CreateTestLineNumber(customer.ID)
		require.NoError(t, err)

		resp, err := env.flow.CreateBroadcast(ctx, &dto.CreateBroadcastRequest{
			CustomerID:   customer.ID,
			Title:        utils.ToPtr("Spring launch"),
			Weekdays:     []string{"monday", "wednesday"},
			StartTime:    utils.ToPtr("09:00"),
			EndTime:      utils.ToPtr("17:00"),
			Timezone:     utils.ToPtr("UTC"),
			LineNumberID: &lineNumber.ID,
		}, metadata)
		require.NoError(t, err)
		require.NotEmpty(t, resp.UUID)
		assert.Equal(t, models.BroadcastStatusActive.String(), resp.Status)

		var broadcast models.Broadcast
		require.NoError(t, tdb.DB.Where("uuid = ?", resp.UUID).First(&broadcast).Error)
		assert.Equal(t, "Spring launch", broadcast.Title)
		assert.Equal(t, models.BroadcastStatusActive, broadcast.Status)
		assert.Equal(t, lineNumber.ID, broadcast.LineNumberID)

		return nil
	})
	require.NoError(t, err)
}

func TestCreateBroadcastValidation(t *testing.T) {
	err := testhelpers.TestWithDB(func(tdb *testhelpers.TestDB) error {
		env := newBroadcastTestEnv(tdb)
		ctx := context.Background()
		metadata := NewClientMetadata("127.0.0.1", "test")

		customer, err := env.fixtures.CreateTestCustomer(100)
		require.NoError(t, err)
		lineNumber, err := env.fixtures.CreateTestLineNumber(customer.ID)
		require.NoError(t, err)

		valid := func() *dto.CreateBroadcastRequest {
			return &dto.CreateBroadcastRequest{
				CustomerID:   customer.ID,
				Title:        utils.ToPtr("Valid"),
				StartTime:    utils.ToPtr("09:00"),
				EndTime:      utils.ToPtr("17:00"),
				LineNumberID: &lineNumber.ID,
			}
		}

		t.Run("missing title", func(t *testing.T) {
			req := valid()
			req.Title = utils.ToPtr("   ")
			_, err := env.flow.CreateBroadcast(ctx, req, metadata)
			assert.ErrorIs(t, err, ErrTitleRequired)
		})

		t.Run("malformed start time", func(t *testing.T) {
			req := valid()
			req.StartTime = utils.ToPtr("25:99")
			_, err := env.flow.CreateBroadcast(ctx, req, metadata)
			assert.ErrorIs(t, err, ErrInvalidWindow)
		})

		t.Run("unknown weekday", func(t *testing.T) {
			req := valid()
			req.Weekdays = []string{"someday"}
			_, err := env.flow.CreateBroadcast(ctx, req, metadata)
			assert.ErrorIs(t, err, ErrInvalidWeekday)
		})

		t.Run("inverted date range", func(t *testing.T) {
			req := valid()
			from := utils.UTCNow()
			to := from.AddDate(0, 0, -3)
			req.FromDate = &from
			req.ToDate = &to
			_, err := env.flow.CreateBroadcast(ctx, req, metadata)
			assert.ErrorIs(t, err, ErrInvalidWindow)
		})

		t.Run("unverified line number", func(t *testing.T) {
			unverified, err := env.fixtures.CreateTestLineNumber(customer.ID)
			require.NoError(t, err)
			require.NoError(t, tdb.DB.Model(&models.LineNumber{}).
				Where("id = ?", unverified.ID).
				Update("is_verified", false).Error)

			req := valid()
			req.LineNumberID = &unverified.ID
			_, err = env.flow.CreateBroadcast(ctx, req, metadata)
			assert.ErrorIs(t, err, ErrLineNumberNotUsable)
		})

		t.Run("inactive customer", func(t *testing.T) {
			inactive, err := env.fixtures.CreateTestCustomer(100)
			require.NoError(t, err)
			require.NoError(t, tdb.DB.Model(&models.Customer{}).
				Where("id = ?", inactive.ID).
				Update("is_active", false).Error)

			req := valid()
			req.CustomerID = inactive.ID
			_, err = env.flow.CreateBroadcast(ctx, req, metadata)
			assert.True(t, IsAccountInactive(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestSubmitControl(t *testing.T) {
	err := testhelpers.TestWithDB(func(tdb *testhelpers.TestDB) error {
		env := newBroadcastTestEnv(tdb)
		ctx := context.Background()
		metadata := NewClientMetadata("127.0.0.1", "test")

		customer, err := env.fixtures.CreateTestCustomer(100)
		require.NoError(t, err)
		lineNumber, err := env.fixtures.CreateTestLineNumber(customer.ID)
		require.NoError(t, err)
		broadcast, err := env.fixtures.CreateTestBroadcast(customer.ID, lineNumber.ID, models.BroadcastStatusRunning)
		require.NoError(t, err)
		contact, err := env.fixtures.CreateTestContact(customer.ID, nil)
		require.NoError(t, err)

		t.Run("broadcast pause", func(t *testing.T) {
			resp, err := env.flow.SubmitControl(ctx, &dto.SubmitControlRequest{
				BroadcastUUID: broadcast.UUID.String(),
				CustomerID:    customer.ID,
				Action:        utils.ToPtr("pause"),
			}, metadata)
			require.NoError(t, err)

			var request models.ControlRequest
			require.NoError(t, tdb.DB.First(&request, resp.RequestID).Error)
			assert.Equal(t, models.ControlScopeBroadcast, request.Scope)
			assert.Equal(t, models.ControlActionPause, request.Action)
			assert.Equal(t, models.ControlRequestStatusPending, request.Status)
			assert.Nil(t, request.ContactID)
		})

		t.Run("contact opt-out", func(t *testing.T) {
			resp, err := env.flow.SubmitControl(ctx, &dto.SubmitControlRequest{
				BroadcastUUID: broadcast.UUID.String(),
				CustomerID:    customer.ID,
				ContactID:     &contact.ID,
				Action:        utils.ToPtr("opt-out"),
			}, metadata)
			require.NoError(t, err)

			var request models.ControlRequest
			require.NoError(t, tdb.DB.First(&request, resp.RequestID).Error)
			assert.Equal(t, models.ControlScopeContact, request.Scope)
			require.NotNil(t, request.ContactID)
			assert.Equal(t, contact.ID, *request.ContactID)
		})

		t.Run("stop is broadcast scope only", func(t *testing.T) {
			_, err := env.flow.SubmitControl(ctx, &dto.SubmitControlRequest{
				BroadcastUUID: broadcast.UUID.String(),
				CustomerID:    customer.ID,
				ContactID:     &contact.ID,
				Action:        utils.ToPtr("stop"),
			}, metadata)
			assert.True(t, IsInvalidAction(err))
		})

		t.Run("foreign broadcast", func(t *testing.T) {
			other, err := env.fixtures.CreateTestCustomer(100)
			require.NoError(t, err)
			_, err = env.flow.SubmitControl(ctx, &dto.SubmitControlRequest{
				BroadcastUUID: broadcast.UUID.String(),
				CustomerID:    other.ID,
				Action:        utils.ToPtr("pause"),
			}, metadata)
			assert.True(t, IsBroadcastNotFound(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestRegisterSource(t *testing.T) {
	err := testhelpers.TestWithDB(func(tdb *testhelpers.TestDB) error {
		env := newBroadcastTestEnv(tdb)
		ctx := context.Background()
		metadata := NewClientMetadata("127.0.0.1", "test")

		customer, err := env.fixtures.CreateTestCustomer(100)
		require.NoError(t, err)
		lineNumber, err := env.fixtures.CreateTestLineNumber(customer.ID)
		require.NoError(t, err)
		broadcast, err := env.fixtures.CreateTestBroadcast(customer.ID, lineNumber.ID, models.BroadcastStatusActive)
		require.NoError(t, err)

		resp, err := env.flow.RegisterSource(ctx, &dto.RegisterSourceRequest{
			BroadcastUUID: broadcast.UUID.String(),
			CustomerID:    customer.ID,
			Type:          utils.ToPtr("list"),
			SourceRef:     utils.ToPtr("42"),
		}, metadata)
		require.NoError(t, err)

		var source models.EnrollmentSource
		require.NoError(t, tdb.DB.First(&source, resp.SourceID).Error)
		assert.Equal(t, models.SourceTypeList, source.Type)
		assert.Equal(t, "42", source.SourceRef)
		assert.Equal(t, models.SourceStatusPending, source.Status)

		t.Run("unknown type", func(t *testing.T) {
			_, err := env.flow.RegisterSource(ctx, &dto.RegisterSourceRequest{
				BroadcastUUID: broadcast.UUID.String(),
				CustomerID:    customer.ID,
				Type:          utils.ToPtr("carrier-pigeon"),
				SourceRef:     utils.ToPtr("42"),
			}, metadata)
			assert.ErrorIs(t, err, ErrInvalidSourceType)
		})

		t.Run("terminal broadcast", func(t *testing.T) {
			stopped, err := env.fixtures.CreateTestBroadcast(customer.ID, lineNumber.ID, models.BroadcastStatusStopped)
			require.NoError(t, err)
			_, err = env.flow.RegisterSource(ctx, &dto.RegisterSourceRequest{
				BroadcastUUID: stopped.UUID.String(),
				CustomerID:    customer.ID,
				Type:          utils.ToPtr("list"),
				SourceRef:     utils.ToPtr("42"),
			}, metadata)
			assert.ErrorIs(t, err, ErrBroadcastTerminal)
		})

		return nil
	})
	require.NoError(t, err)
}
