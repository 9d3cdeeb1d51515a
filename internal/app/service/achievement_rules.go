package service

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// StatsSnapshot is what achievement requirements are evaluated against.
type StatsSnapshot struct {
	TotalSolved      int
	EasySolved       int
	MediumSolved     int
	HardSolved       int
	Languages        int
	Tags             int
	Streak           int
	SolvedNoHints    int
	Level            int
	SubmissionHour   int // UTC
	FirstTryAccepted bool
}

// Requirement kinds. Counted kinds take a threshold, as in "solved:10".
const (
	ReqSolved    = "solved"
	ReqEasy      = "easy"
	ReqMedium    = "medium"
	ReqHard      = "hard"
	ReqStreak    = "streak"
	ReqLanguages = "languages"
	ReqTags      = "tags"
	ReqNoHints   = "no_hints"
	ReqLevel     = "level"

	ReqNightOwl  = "night_owl"
	ReqEarlyBird = "early_bird"
	ReqFirstTry  = "first_try"
)

var countedKinds = map[string]func(StatsSnapshot) int{
	ReqSolved:    func(s StatsSnapshot) int { return s.TotalSolved },
	ReqEasy:      func(s StatsSnapshot) int { return s.EasySolved },
	ReqMedium:    func(s StatsSnapshot) int { return s.MediumSolved },
	ReqHard:      func(s StatsSnapshot) int { return s.HardSolved },
	ReqStreak:    func(s StatsSnapshot) int { return s.Streak },
	ReqLanguages: func(s StatsSnapshot) int { return s.Languages },
	ReqTags:      func(s StatsSnapshot) int { return s.Tags },
	ReqNoHints:   func(s StatsSnapshot) int { return s.SolvedNoHints },
	ReqLevel:     func(s StatsSnapshot) int { return s.Level },
}

var flagKinds = map[string]func(StatsSnapshot) bool{
	ReqNightOwl:  func(s StatsSnapshot) bool { return s.SubmissionHour >= 0 && s.SubmissionHour < 5 },
	ReqEarlyBird: func(s StatsSnapshot) bool { return s.SubmissionHour >= 5 && s.SubmissionHour < 8 },
	ReqFirstTry:  func(s StatsSnapshot) bool { return s.FirstTryAccepted },
}

// ValidRequirement reports whether tag is understood by Satisfies.
func ValidRequirement(tag string) bool {
	kind, n, hasN := splitRequirement(tag)
	if _, ok := flagKinds[kind]; ok {
		return !hasN
	}
	_, ok := countedKinds[kind]
	return ok && hasN && n > 0
}

// Satisfies evaluates one requirement tag. Unknown or malformed tags never
// match.
func Satisfies(tag string, snap StatsSnapshot) bool {
	if !ValidRequirement(tag) {
		return false
	}
	kind, n, _ := splitRequirement(tag)
	if flag, ok := flagKinds[kind]; ok {
		return flag(snap)
	}
	return countedKinds[kind](snap) >= n
}

func splitRequirement(tag string) (kind string, n int, hasN bool) {
	kind, arg, hasN := strings.Cut(strings.TrimSpace(tag), ":")
	if !hasN {
		return kind, 0, false
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return kind, 0, true
	}
	return kind, n, true
}

// CurrentStreak counts consecutive UTC days with a solve, ending today or
// yesterday. dates may be unordered and may repeat.
func CurrentStreak(dates []time.Time, now time.Time) int {
	if len(dates) == 0 {
		return 0
	}
	days := make(map[string]bool, len(dates))
	sorted := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		day := truncateDay(d)
		key := day.Format(time.DateOnly)
		if !days[key] {
			days[key] = true
			sorted = append(sorted, day)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].After(sorted[j]) })

	today := truncateDay(now)
	latest := sorted[0]
	if !latest.Equal(today) && !latest.Equal(today.AddDate(0, 0, -1)) {
		return 0
	}

	streak := 1
	for i := 1; i < len(sorted); i++ {
		if !sorted[i].Equal(sorted[i-1].AddDate(0, 0, -1)) {
			break
		}
		streak++
	}
	return streak
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
