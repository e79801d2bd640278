package schedule

import (
	"testing"
	"time"

	"github.com/sepehrad/broadcastd/models"
	"github.com/sepehrad/broadcastd/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setting(id uint, typ models.SettingType, day *int, tod *string, createdAt time.Time) *models.BroadcastSetting {
	return &models.BroadcastSetting{
		ID:        id,
		Type:      typ,
		Day:       day,
		Time:      tod,
		Status:    models.SettingStatusActive,
		CreatedAt: createdAt,
	}
}

func TestRankOrdersByTypeThenDayThenTime(t *testing.T) {
	base := time.Date(2026, time.January, 10, 8, 0, 0, 0, time.UTC)

	recurring := setting(1, models.SettingTypeRecurring, utils.ToPtr(7), nil, base)
	immediate := setting(2, models.SettingTypeImmediate, nil, nil, base)
	scheduleLate := setting(3, models.SettingTypeSchedule, utils.ToPtr(3), nil, base)
	scheduleEarly := setting(4, models.SettingTypeSchedule, utils.ToPtr(1), nil, base)

	ranked := Rank([]*models.BroadcastSetting{recurring, immediate, scheduleLate, scheduleEarly})
	require.Len(t, ranked, 4)

	assert.Equal(t, uint(2), ranked[0].ID, "immediate first")
	assert.Equal(t, uint(4), ranked[1].ID, "schedule steps by ascending day")
	assert.Equal(t, uint(3), ranked[2].ID)
	assert.Equal(t, uint(1), ranked[3].ID, "recurring last")

	for i, s := range ranked {
		assert.Equal(t, i, s.Priority)
	}
}

func TestRankBreaksDayTiesByTimeOfDay(t *testing.T) {
	base := time.Date(2026, time.January, 10, 8, 0, 0, 0, time.UTC)

	evening := setting(1, models.SettingTypeSchedule, utils.ToPtr(2), utils.ToPtr("18:00"), base)
	morning := setting(2, models.SettingTypeSchedule, utils.ToPtr(2), utils.ToPtr("08:30"), base)
	noTime := setting(3, models.SettingTypeSchedule, utils.ToPtr(2), nil, base)

	ranked := Rank([]*models.BroadcastSetting{evening, morning, noTime})
	require.Len(t, ranked, 3)

	assert.Equal(t, uint(2), ranked[0].ID)
	assert.Equal(t, uint(1), ranked[1].ID)
	assert.Equal(t, uint(3), ranked[2].ID, "missing time sorts last within the day")
}

func TestRankBreaksFullTiesByCreationThenID(t *testing.T) {
	earlier := time.Date(2026, time.January, 10, 8, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Hour)

	a := setting(9, models.SettingTypeImmediate, nil, nil, later)
	b := setting(5, models.SettingTypeImmediate, nil, nil, earlier)
	c := setting(7, models.SettingTypeImmediate, nil, nil, later)

	ranked := Rank([]*models.BroadcastSetting{a, b, c})
	require.Len(t, ranked, 3)

	assert.Equal(t, uint(5), ranked[0].ID, "earlier creation wins")
	assert.Equal(t, uint(7), ranked[1].ID, "equal creation falls back to id")
	assert.Equal(t, uint(9), ranked[2].ID)
}

func TestRankSkipsDeletedSettings(t *testing.T) {
	base := time.Date(2026, time.January, 10, 8, 0, 0, 0, time.UTC)

	active := setting(1, models.SettingTypeImmediate, nil, nil, base)
	deleted := setting(2, models.SettingTypeImmediate, nil, nil, base)
	deleted.Status = models.SettingStatusDeleted

	ranked := Rank([]*models.BroadcastSetting{active, deleted})
	require.Len(t, ranked, 1)
	assert.Equal(t, uint(1), ranked[0].ID)
	assert.Equal(t, 0, ranked[0].Priority)
}

func TestRankEmptyInput(t *testing.T) {
	assert.Empty(t, Rank(nil))
	assert.Empty(t, Rank([]*models.BroadcastSetting{}))
}
