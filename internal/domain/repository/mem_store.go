package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gosimple/slug"

	"codequest/internal/common"
	"codequest/internal/domain/model"
)

// MemStore is an in-memory implementation of every repository in this
// package. It backs service tests and local runs without Postgres.
// RunSerializable holds the store lock for the whole callback, so ledger
// transactions are trivially serial.
type MemStore struct {
	mu sync.Mutex

	users        map[string]model.User
	problems     map[string]model.Problem
	testCases    map[string][]model.TestCase // by problem id, ordered
	problemTags  map[string][]string
	submissions  map[string]model.Submission
	results      map[string][]model.TestResult // by submission id
	stats        map[statKey]model.ProblemStat
	achievements map[string]model.Achievement
	unlocks      map[statKey]model.UserAchievement // user id, achievement id
	daily        map[string]model.DailyChallenge   // by YYYY-MM-DD
	scores       map[string]int
}

type statKey struct{ a, b string }

func NewMemStore() *MemStore {
	return &MemStore{
		users:        make(map[string]model.User),
		problems:     make(map[string]model.Problem),
		testCases:    make(map[string][]model.TestCase),
		problemTags:  make(map[string][]string),
		submissions:  make(map[string]model.Submission),
		results:      make(map[string][]model.TestResult),
		stats:        make(map[statKey]model.ProblemStat),
		achievements: make(map[string]model.Achievement),
		unlocks:      make(map[statKey]model.UserAchievement),
		daily:        make(map[string]model.DailyChallenge),
		scores:       make(map[string]int),
	}
}

var (
	_ ProblemRepository        = (*MemStore)(nil)
	_ UserRepository           = (*MemStore)(nil)
	_ SubmissionRepository     = (*MemStore)(nil)
	_ ProblemStatRepository    = (*MemStore)(nil)
	_ AchievementRepository    = (*MemStore)(nil)
	_ DailyChallengeRepository = (*MemStore)(nil)
	_ LeaderboardRepository    = (*MemStore)(nil)
)

// problems

func (m *MemStore) CreateProblem(_ context.Context, _ *sql.Tx, p *model.Problem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.problems {
		if existing.Slug == p.Slug {
			return fmt.Errorf("problem with this slug already exists: %w", common.ErrConflict)
		}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	stored := *p
	stored.TestCases = nil
	m.problems[p.ID] = stored
	return nil
}

func (m *MemStore) FindProblemByID(_ context.Context, id string) (*model.Problem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.problems[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &p, nil
}

func (m *MemStore) FindProblemBySlug(_ context.Context, s string) (*model.Problem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.problems {
		if p.Slug == s {
			return &p, nil
		}
	}
	return nil, common.ErrNotFound
}

func (m *MemStore) AddTestCasesToProblem(_ context.Context, _ *sql.Tx, problemID string, testCases []model.TestCase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tc := range testCases {
		tc.ProblemID = problemID
		tc.AlternativeOutputs = append([]string(nil), tc.AlternativeOutputs...)
		m.testCases[problemID] = append(m.testCases[problemID], tc)
	}
	sort.SliceStable(m.testCases[problemID], func(i, j int) bool {
		return m.testCases[problemID][i].OrderIndex < m.testCases[problemID][j].OrderIndex
	})
	return nil
}

func (m *MemStore) GetTestCasesByProblemID(_ context.Context, problemID string) ([]model.TestCase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.TestCase(nil), m.testCases[problemID]...), nil
}

func (m *MemStore) CountTestCases(_ context.Context, problemID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.testCases[problemID]), nil
}

func (m *MemStore) AddTagsToProblem(_ context.Context, _ *sql.Tx, problemID string, tagNames []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range tagNames {
		m.problemTags[problemID] = append(m.problemTags[problemID], slug.Make(name))
	}
	return nil
}

// users

func (m *MemStore) Create(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; ok {
		return fmt.Errorf("user with given id or username already exists: %w", common.ErrConflict)
	}
	if user.Level == 0 {
		user.Level = model.LevelForXP(user.XP)
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	m.users[user.ID] = *user
	return nil
}

func (m *MemStore) FindByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &u, nil
}

// submissions and test results

func (m *MemStore) CreateSubmission(_ context.Context, _ *sql.Tx, s *model.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	stored := *s
	stored.TestResults = nil
	m.submissions[s.ID] = stored
	return nil
}

func (m *MemStore) GetSubmissionByID(_ context.Context, id string) (*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &s, nil
}

func (m *MemStore) FinalizeSubmission(_ context.Context, id string, f SubmissionFinal) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok || s.Verdict != model.VerdictPending {
		return false, nil
	}
	s.Verdict = f.Verdict
	s.RuntimeMs = f.RuntimeMs
	s.MemoryKb = f.MemoryKb
	s.TestCasesPassed = f.TestCasesPassed
	completed := f.CompletedAt
	s.CompletedAt = &completed
	m.submissions[id] = s
	return true, nil
}

func (m *MemStore) CreateTestResult(_ context.Context, tr *model.TestResult) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.results[tr.SubmissionID] {
		if existing.TestCaseID == tr.TestCaseID {
			return false, nil
		}
	}
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = time.Now().UTC()
	}
	m.results[tr.SubmissionID] = append(m.results[tr.SubmissionID], *tr)
	return true, nil
}

func (m *MemStore) GetSubmissionTestResults(_ context.Context, submissionID string) ([]model.TestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]model.TestResult(nil), m.results[submissionID]...)

	order := make(map[string]int)
	if s, ok := m.submissions[submissionID]; ok {
		for _, tc := range m.testCases[s.ProblemID] {
			order[tc.ID] = tc.OrderIndex
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return order[out[i].TestCaseID] < order[out[j].TestCaseID] })
	return out, nil
}

func (m *MemStore) CountTestResults(_ context.Context, submissionID string) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	passed := 0
	for _, r := range m.results[submissionID] {
		if r.Passed {
			passed++
		}
	}
	return passed, len(m.results[submissionID]), nil
}

func (m *MemStore) ListAcceptedLanguages(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var langs []string
	for _, s := range m.submissions {
		if s.UserID == userID && s.Verdict == model.VerdictAccepted && !seen[s.Language] {
			seen[s.Language] = true
			langs = append(langs, s.Language)
		}
	}
	sort.Strings(langs)
	return langs, nil
}

// problem stats

func (m *MemStore) RunSerializable(_ context.Context, fn func(tx LedgerTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memLedgerTx{
		store: m,
		stats: make(map[statKey]model.ProblemStat),
		xp:    make(map[string][2]int),
	}
	if err := fn(tx); err != nil {
		return err
	}
	for k, st := range tx.stats {
		m.stats[k] = st
	}
	for id, v := range tx.xp {
		u := m.users[id]
		u.XP, u.Level = v[0], v[1]
		u.UpdatedAt = time.Now().UTC()
		m.users[id] = u
	}
	return nil
}

func (m *MemStore) GetProblemStat(_ context.Context, userID, problemID string) (*model.ProblemStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stats[statKey{userID, problemID}]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &st, nil
}

func (m *MemStore) RecordAttempt(_ context.Context, userID, problemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := statKey{userID, problemID}
	st, ok := m.stats[k]
	if !ok {
		st = model.ProblemStat{UserID: userID, ProblemID: problemID, Status: model.StatAttempted}
	}
	st.Attempts++
	m.stats[k] = st
	return nil
}

func (m *MemStore) SolvedSummary(_ context.Context, userID string) (SolvedSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s SolvedSummary
	for k, st := range m.stats {
		if k.a != userID || !st.Solved {
			continue
		}
		s.Total++
		switch m.problems[k.b].Difficulty {
		case model.DifficultyEasy:
			s.Easy++
		case model.DifficultyMedium:
			s.Medium++
		case model.DifficultyHard:
			s.Hard++
		}
		if !st.HintsUsed {
			s.WithoutHints++
		}
	}
	return s, nil
}

func (m *MemStore) SolveDates(_ context.Context, userID string) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var dates []time.Time
	for k, st := range m.stats {
		if k.a != userID || !st.Solved || st.SolvedAt == nil {
			continue
		}
		key := st.SolvedAt.UTC().Format(time.DateOnly)
		if seen[key] {
			continue
		}
		seen[key] = true
		d, _ := time.Parse(time.DateOnly, key)
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })
	return dates, nil
}

func (m *MemStore) CountSolvedTags(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tags := make(map[string]bool)
	for k, st := range m.stats {
		if k.a != userID || !st.Solved {
			continue
		}
		for _, t := range m.problemTags[k.b] {
			tags[t] = true
		}
	}
	return len(tags), nil
}

type memLedgerTx struct {
	store *MemStore
	stats map[statKey]model.ProblemStat
	xp    map[string][2]int // xp, level
}

func (t *memLedgerTx) GetProblemStat(_ context.Context, userID, problemID string) (*model.ProblemStat, error) {
	k := statKey{userID, problemID}
	if st, ok := t.stats[k]; ok {
		return &st, nil
	}
	if st, ok := t.store.stats[k]; ok {
		return &st, nil
	}
	return nil, nil
}

func (t *memLedgerTx) SaveProblemStat(_ context.Context, st *model.ProblemStat) error {
	t.stats[statKey{st.UserID, st.ProblemID}] = *st
	return nil
}

func (t *memLedgerTx) GetUserXP(_ context.Context, userID string) (int, error) {
	if v, ok := t.xp[userID]; ok {
		return v[0], nil
	}
	u, ok := t.store.users[userID]
	if !ok {
		return 0, common.ErrNotFound
	}
	return u.XP, nil
}

func (t *memLedgerTx) SetUserXP(_ context.Context, userID string, xp, level int) error {
	if _, ok := t.store.users[userID]; !ok {
		return common.ErrNotFound
	}
	t.xp[userID] = [2]int{xp, level}
	return nil
}

// achievements

func (m *MemStore) UpsertAchievement(_ context.Context, a model.Achievement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.achievements[a.ID] = a
	return nil
}

func (m *MemStore) ListAchievements(_ context.Context) ([]model.Achievement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Achievement, 0, len(m.achievements))
	for _, a := range m.achievements {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) ListUnlockedIDs(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for k := range m.unlocks {
		if k.a == userID {
			ids = append(ids, k.b)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemStore) Unlock(_ context.Context, userID string, a model.Achievement, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := statKey{userID, a.ID}
	if _, ok := m.unlocks[k]; ok {
		return false, nil
	}
	u, ok := m.users[userID]
	if !ok {
		return false, common.ErrNotFound
	}
	m.unlocks[k] = model.UserAchievement{UserID: userID, AchievementID: a.ID, UnlockedAt: at, Achievement: a}
	if a.XPReward > 0 {
		u.XP += a.XPReward
		u.Level = model.LevelForXP(u.XP)
		m.users[userID] = u
	}
	return true, nil
}

func (m *MemStore) ListUnlockedBetween(_ context.Context, userID string, from, to time.Time) ([]model.UserAchievement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.UserAchievement
	for k, ua := range m.unlocks {
		if k.a != userID || ua.UnlockedAt.Before(from) || ua.UnlockedAt.After(to) {
			continue
		}
		ua.Achievement = m.achievements[ua.AchievementID]
		out = append(out, ua)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UnlockedAt.Equal(out[j].UnlockedAt) {
			return out[i].AchievementID < out[j].AchievementID
		}
		return out[i].UnlockedAt.Before(out[j].UnlockedAt)
	})
	return out, nil
}

// daily challenges

func (m *MemStore) FindByDate(_ context.Context, day time.Time) (*model.DailyChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dc, ok := m.daily[day.UTC().Format(time.DateOnly)]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &dc, nil
}

func (m *MemStore) Upsert(_ context.Context, dc model.DailyChallenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.daily[dc.Date.UTC().Format(time.DateOnly)] = dc
	return nil
}

// leaderboard

func (m *MemStore) UpdateScore(_ context.Context, userID string, xp int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[userID] = xp
	return nil
}

func (m *MemStore) Score(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	xp, ok := m.scores[userID]
	if !ok {
		return 0, common.ErrNotFound
	}
	return xp, nil
}
