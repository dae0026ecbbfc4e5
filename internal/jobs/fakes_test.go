package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"triage/internal/apperr"
	"triage/internal/config"
	"triage/internal/llm"
	"triage/internal/models"
	"triage/internal/search"
	"triage/internal/staff"
)

// memStore is an in-memory Store with the same claim semantics as the SQL store
type memStore struct {
	mu          sync.Mutex
	emails      map[int64]*models.Email
	threads     map[int64]*models.Thread
	users       map[int64]*models.User
	generations map[int64]*models.Generation
	tasks       []*models.Task
	leases      map[int64]time.Time
	nextID      int64

	failCreateTaskAfter int // fail CreateTask once this many tasks exist, 0 disables
}

func newMemStore() *memStore {
	return &memStore{
		emails:      map[int64]*models.Email{},
		threads:     map[int64]*models.Thread{},
		users:       map[int64]*models.User{},
		generations: map[int64]*models.Generation{},
		leases:      map[int64]time.Time{},
		nextID:      1000,
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) addThread(id int64, title string, emails ...models.Email) *models.Thread {
	m.mu.Lock()
	defer m.mu.Unlock()
	th := &models.Thread{ID: id, Title: title, Status: models.ThreadActive}
	for i := range emails {
		emails[i].ThreadID = id
		e := emails[i]
		m.emails[e.ID] = &e
	}
	m.threads[id] = th
	return th
}

func (m *memStore) GetEmail(ctx context.Context, id int64) (*models.Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.emails[id]
	if !ok {
		return nil, apperr.NotFound("email %d not found", id)
	}
	cp := *e
	return &cp, nil
}

func (m *memStore) GetThreadWithEmails(ctx context.Context, id int64) (*models.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	th, ok := m.threads[id]
	if !ok {
		return nil, apperr.NotFound("thread %d not found", id)
	}
	cp := *th
	cp.Emails = nil
	for _, e := range m.emails {
		if e.ThreadID == id {
			cp.Emails = append(cp.Emails, *e)
		}
	}
	sort.Slice(cp.Emails, func(i, j int) bool { return cp.Emails[i].ReceivedAt.Before(cp.Emails[j].ReceivedAt) })
	return &cp, nil
}

func (m *memStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("user %d not found", id)
	}
	return u, nil
}

func (m *memStore) CreateGeneration(ctx context.Context, g *models.Generation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g.ID = m.id()
	g.CreatedAt = time.Now()
	cp := *g
	cp.Metadata = copyMap(g.Metadata)
	m.generations[g.ID] = &cp
	return nil
}

func (m *memStore) GetGeneration(ctx context.Context, id int64) (*models.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.generations[id]
	if !ok {
		return nil, apperr.NotFound("generation %d not found", id)
	}
	cp := *g
	cp.Metadata = copyMap(g.Metadata)
	return &cp, nil
}

func (m *memStore) LatestAnalyses(ctx context.Context, emailIDs []int64) (map[int64]*models.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[int64]bool{}
	for _, id := range emailIDs {
		want[id] = true
	}
	out := map[int64]*models.Generation{}
	for _, g := range m.generations {
		if g.Type != models.GenerationAnalysis || g.Status != models.GenerationSuccess || g.EmailID == nil || !want[*g.EmailID] {
			continue
		}
		if cur, ok := out[*g.EmailID]; !ok || g.ID > cur.ID {
			out[*g.EmailID] = g
		}
	}
	return out, nil
}

func (m *memStore) ListUnprocessedAnalyses(ctx context.Context, limit int, force bool) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id, g := range m.generations {
		if g.Type != models.GenerationAnalysis || g.Status != models.GenerationSuccess {
			continue
		}
		if !force && g.TasksCreated() {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *memStore) MergeGenerationMetadata(ctx context.Context, id int64, patch models.JSONMap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.generations[id]
	if !ok {
		return apperr.NotFound("generation %d not found", id)
	}
	if g.Metadata == nil {
		g.Metadata = models.JSONMap{}
	}
	for k, v := range patch {
		g.Metadata[k] = v
	}
	if v, ok := patch["fanout_claimed_until"]; ok && v == nil {
		delete(m.leases, id)
	}
	return nil
}

func (m *memStore) ClaimGenerationForFanout(ctx context.Context, id int64, token string, now time.Time, lease time.Duration, force bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.generations[id]
	if !ok {
		return false, nil
	}
	if !force && g.TasksCreated() {
		return false, nil
	}
	if until, held := m.leases[id]; held && !until.Before(now) {
		return false, nil
	}
	m.leases[id] = now.Add(lease)
	if g.Metadata == nil {
		g.Metadata = models.JSONMap{}
	}
	g.Metadata["fanout_claim"] = token
	return true, nil
}

func (m *memStore) ReleaseFanoutClaim(ctx context.Context, id int64, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.generations[id]; ok && g.Metadata["fanout_claim"] == token {
		delete(g.Metadata, "fanout_claim")
		delete(m.leases, id)
	}
	return nil
}

func (m *memStore) CreateTask(ctx context.Context, t *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateTaskAfter > 0 && len(m.tasks) >= m.failCreateTaskAfter {
		return errors.New("connection reset by peer")
	}
	t.ID = m.id()
	t.CreatedAt = time.Now()
	m.tasks = append(m.tasks, t)
	return nil
}

func (m *memStore) taskCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

func copyMap(in models.JSONMap) models.JSONMap {
	out := models.JSONMap{}
	for k, v := range in {
		out[k] = v
	}
	return out
}

// scriptedGateway returns canned completions and records prompts
type scriptedGateway struct {
	mu      sync.Mutex
	text    string
	usage   llm.Usage
	err     error
	prompts []string
}

func (g *scriptedGateway) Complete(ctx context.Context, prompt string, model llm.ModelConfig) (*llm.Completion, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return nil, g.err
	}
	return &llm.Completion{
		Alternatives: []llm.Alternative{{Text: g.text, Status: "stop"}},
		Usage:        g.usage,
		RequestID:    "req-1",
		ModelVersion: model.Model + "-2024",
	}, nil
}

func (g *scriptedGateway) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

// stubSearcher returns a fixed result or error
type stubSearcher struct {
	result  *search.Result
	err     error
	queries []string
}

func (s *stubSearcher) Search(ctx context.Context, indexID, query string, topK int) (*search.Result, error) {
	s.queries = append(s.queries, query)
	return s.result, s.err
}

// stubSelector returns fixed executors per department and role set
type stubSelector struct {
	leastLoaded map[string]int64
	byRole      map[string]int64
	calls       []string
}

func (s *stubSelector) SelectLeastLoaded(ctx context.Context, dept string) (*int64, error) {
	s.calls = append(s.calls, "least_loaded:"+dept)
	if id, ok := s.leastLoaded[dept]; ok {
		return &id, nil
	}
	return nil, nil
}

func (s *stubSelector) SelectByRole(ctx context.Context, dept string, roles []models.Role, order staff.Order) (*int64, error) {
	s.calls = append(s.calls, "by_role:"+dept+":"+order.String())
	if id, ok := s.byRole[dept]; ok {
		return &id, nil
	}
	return nil, nil
}

type recordingDispatcher struct {
	fanouts []int64
	err     error
}

func (d *recordingDispatcher) EnqueueFanout(ctx context.Context, generationID int64, force bool) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	d.fanouts = append(d.fanouts, generationID)
	return "job-1", nil
}

type recordingTracker struct {
	mu     sync.Mutex
	events map[string]int
}

func (t *recordingTracker) TrackEvent(eventType string, count int, metadata map[string]interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.events == nil {
		t.events = map[string]int{}
	}
	t.events[eventType] += count
	return nil
}

type recordingNotifier struct {
	notified []int64
}

func (n *recordingNotifier) NotifyTask(ctx context.Context, task *models.Task, executor *models.User) error {
	n.notified = append(n.notified, task.ID)
	return nil
}

func testPipeline() config.Pipeline {
	return config.Pipeline{
		Model: config.Model{
			Name:        "gpt-4o-mini",
			Model:       "gpt-4o-mini",
			Version:     "latest",
			Temperature: 0.2,
			MaxTokens:   2000,
			Endpoint:    "chat/completions",
			Rates:       config.ModelRates{Input: 0.000002, Output: 0.000004, Currency: "USD"},
		},
		AnalysisTemplate: "EMAIL:\n{{email_content}}\nSEARCH:\n{{search_context}}\nFORMAT:\n{{response_format}}",
		ReplyTemplate:    "THREAD:\n{{thread_content}}\nANALYSIS:\n{{analysis_context}}\nSEARCH:\n{{search_context}}\nFORMAT:\n{{response_format}}",
		JobTimeout:       2 * time.Minute,
		SearchTopK:       5,
	}
}
