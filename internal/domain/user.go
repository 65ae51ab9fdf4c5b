package domain

import (
	"sort"
)

// UserStat holds the totals for one actor across all repositories of a run.
type UserStat struct {
	Nickname         string  `json:"nickname"`
	PipelineCount    int     `json:"pipeline_count"`
	TimeSpentMinutes float64 `json:"time_spent_minutes"`
}

// UserStats is the per-run aggregation context for actors, keyed by nickname.
// It is purely additive: adding the same pipeline twice counts it twice.
// It is not safe for concurrent use.
type UserStats struct {
	byNickname map[string]*UserStat
}

// NewUserStats returns an empty UserStats.
func NewUserStats() *UserStats {
	return &UserStats{byNickname: make(map[string]*UserStat)}
}

// Add records one pipeline run. Runs without a creator are ignored.
func (u *UserStats) Add(p Pipeline) {
	if p.CreatorNickname == "" {
		return
	}
	stat := u.ensure(p.CreatorNickname)
	stat.PipelineCount++
	stat.TimeSpentMinutes += p.Minutes()
}

// Merge adds every entry of other into u.
func (u *UserStats) Merge(other *UserStats) {
	for nickname, s := range other.byNickname {
		stat := u.ensure(nickname)
		stat.PipelineCount += s.PipelineCount
		stat.TimeSpentMinutes += s.TimeSpentMinutes
	}
}

// Len returns the number of distinct actors.
func (u *UserStats) Len() int {
	return len(u.byNickname)
}

// Sorted returns all stats ordered by pipeline count descending, then nickname.
func (u *UserStats) Sorted() []UserStat {
	out := make([]UserStat, 0, len(u.byNickname))
	for _, s := range u.byNickname {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PipelineCount != out[j].PipelineCount {
			return out[i].PipelineCount > out[j].PipelineCount
		}
		return out[i].Nickname < out[j].Nickname
	})
	return out
}

// TopByCount returns the actor with the most pipelines.
// Ties go to the lexicographically smallest nickname.
func (u *UserStats) TopByCount() (UserStat, bool) {
	return u.top(func(s *UserStat) float64 { return float64(s.PipelineCount) })
}

// TopByTime returns the actor with the most minutes spent.
// Ties go to the lexicographically smallest nickname.
func (u *UserStats) TopByTime() (UserStat, bool) {
	return u.top(func(s *UserStat) float64 { return s.TimeSpentMinutes })
}

func (u *UserStats) top(value func(*UserStat) float64) (UserStat, bool) {
	var best *UserStat
	for _, s := range u.byNickname {
		if best == nil {
			best = s
			continue
		}
		v, bv := value(s), value(best)
		if v > bv || (v == bv && s.Nickname < best.Nickname) {
			best = s
		}
	}
	if best == nil {
		return UserStat{}, false
	}
	return *best, true
}

func (u *UserStats) ensure(nickname string) *UserStat {
	stat, ok := u.byNickname[nickname]
	if !ok {
		stat = &UserStat{Nickname: nickname}
		u.byNickname[nickname] = stat
	}
	return stat
}
