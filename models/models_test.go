package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBroadcastCanTransitionTo(t *testing.T) {
	cases := []struct {
		from    BroadcastStatus
		to      BroadcastStatus
		allowed bool
	}{
		{BroadcastStatusActive, BroadcastStatusRunning, true},
		{BroadcastStatusActive, BroadcastStatusStopped, true},
		{BroadcastStatusActive, BroadcastStatusPaused, false},
		{BroadcastStatusRunning, BroadcastStatusPaused, true},
		{BroadcastStatusRunning, BroadcastStatusPausedForCredit, true},
		{BroadcastStatusRunning, BroadcastStatusCompleted, true},
		{BroadcastStatusRunning, BroadcastStatusActive, false},
		{BroadcastStatusPaused, BroadcastStatusRunning, true},
		{BroadcastStatusPausedForCredit, BroadcastStatusRunning, true},
		{BroadcastStatusPaused, BroadcastStatusCompleted, false},
		{BroadcastStatusStopped, BroadcastStatusRunning, false},
		{BroadcastStatusCompleted, BroadcastStatusRunning, false},
		{BroadcastStatusDeleted, BroadcastStatusRunning, false},
	}

	for _, tc := range cases {
		b := &Broadcast{Status: tc.from}
		assert.Equal(t, tc.allowed, b.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestBroadcastStatusIsTerminal(t *testing.T) {
	assert.True(t, BroadcastStatusStopped.IsTerminal())
	assert.True(t, BroadcastStatusDeleted.IsTerminal())
	assert.True(t, BroadcastStatusCompleted.IsTerminal())
	assert.False(t, BroadcastStatusActive.IsTerminal())
	assert.False(t, BroadcastStatusRunning.IsTerminal())
	assert.False(t, BroadcastStatusPaused.IsTerminal())
	assert.False(t, BroadcastStatusPausedForCredit.IsTerminal())
}

func TestControlActionValidForScope(t *testing.T) {
	assert.True(t, ControlActionPause.ValidForScope(ControlScopeBroadcast))
	assert.True(t, ControlActionResume.ValidForScope(ControlScopeBroadcast))
	assert.True(t, ControlActionStop.ValidForScope(ControlScopeBroadcast))
	assert.False(t, ControlActionOptOut.ValidForScope(ControlScopeBroadcast))
	assert.False(t, ControlActionUnsubscribe.ValidForScope(ControlScopeBroadcast))

	assert.True(t, ControlActionPause.ValidForScope(ControlScopeContact))
	assert.True(t, ControlActionResume.ValidForScope(ControlScopeContact))
	assert.True(t, ControlActionOptOut.ValidForScope(ControlScopeContact))
	assert.True(t, ControlActionUnsubscribe.ValidForScope(ControlScopeContact))
	assert.False(t, ControlActionStop.ValidForScope(ControlScopeContact))
}

func TestSettingTypeRank(t *testing.T) {
	assert.Less(t, SettingTypeImmediate.Rank(), SettingTypeSchedule.Rank())
	assert.Less(t, SettingTypeSchedule.Rank(), SettingTypeRecurring.Rank())
}

func TestCustomerBillingCustomerID(t *testing.T) {
	parent := uint(42)

	own := &Customer{ID: 7}
	assert.Equal(t, uint(7), own.BillingCustomerID())

	delegated := &Customer{ID: 7, BillingParentID: &parent}
	assert.Equal(t, uint(42), delegated.BillingCustomerID())
}

func TestSettingDayInterval(t *testing.T) {
	days := 5

	assert.Equal(t, 0, (&BroadcastSetting{}).DayInterval())
	assert.Equal(t, 5, (&BroadcastSetting{Day: &days}).DayInterval())
}
