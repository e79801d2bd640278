package schedule

import (
	"math"
	"sort"

	"github.com/sepehrad/broadcastd/models"
)

// Rank orders the active settings of one broadcast into their execution
// chain and assigns priorities 0..N-1 in place. The sort key is
// (type rank, day, time of day, creation time, id), all ascending; a missing
// day or time sorts last within its type. Callers persist the result in one
// batch before any scheduling decision reads priorities.
func Rank(settings []*models.BroadcastSetting) []*models.BroadcastSetting {
	ranked := make([]*models.BroadcastSetting, 0, len(settings))
	for _, s := range settings {
		if s.Status == models.SettingStatusActive {
			ranked = append(ranked, s)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if ar, br := a.Type.Rank(), b.Type.Rank(); ar != br {
			return ar < br
		}
		if ad, bd := dayKey(a), dayKey(b); ad != bd {
			return ad < bd
		}
		if at, bt := timeKey(a), timeKey(b); at != bt {
			return at < bt
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	for i, s := range ranked {
		s.Priority = i
	}
	return ranked
}

func dayKey(s *models.BroadcastSetting) int64 {
	if s.Day == nil {
		return math.MaxInt64
	}
	return int64(*s.Day)
}

func timeKey(s *models.BroadcastSetting) int64 {
	if s.Time == nil {
		return math.MaxInt64
	}
	tod, err := ParseTimeOfDay(*s.Time)
	if err != nil {
		return math.MaxInt64
	}
	return tod.Millis()
}
