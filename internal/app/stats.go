package app

import (
	"context"
	"time"

	"github.com/graaaaa/scr-multilauncher/internal/store"
)

// DayLayout is the format of the day in stats requests and responses.
const DayLayout = time.DateOnly

// StatsResult is the unlock summary for one local calendar day.
type StatsResult struct {
	Day          string     `json:"day"`
	Unlocks      int        `json:"unlocks"`
	PIDs         int        `json:"pids"`
	TotalUnlocks int        `json:"total_unlocks"`
	StoredLines  int64      `json:"stored_lines"`
	LastUnlockAt *time.Time `json:"last_unlock_at,omitempty"`
}

// StatsUsecase summarizes the history.
type StatsUsecase interface {
	// Stats summarizes the day containing day. A zero day means today.
	Stats(ctx context.Context, day time.Time) (StatsResult, error)
}

// StatsStore is the part of the store StatsService reads.
type StatsStore interface {
	UnlockStats(ctx context.Context, since, until time.Time) (store.UnlockStats, error)
}

// StatsService implements StatsUsecase on top of the history store.
type StatsService struct {
	store StatsStore
	now   func() time.Time
}

func NewStatsService(st StatsStore) *StatsService {
	return &StatsService{store: st, now: time.Now}
}

func (s *StatsService) Stats(ctx context.Context, day time.Time) (StatsResult, error) {
	if day.IsZero() {
		day = s.now()
	}
	since, until := store.DayBounds(day)

	st, err := s.store.UnlockStats(ctx, since, until)
	if err != nil {
		return StatsResult{}, err
	}
	return StatsResult{
		Day:          since.Format(DayLayout),
		Unlocks:      st.Unlocks,
		PIDs:         st.PIDs,
		TotalUnlocks: st.TotalUnlocks,
		StoredLines:  st.StoredLines,
		LastUnlockAt: st.LastUnlockAt,
	}, nil
}
