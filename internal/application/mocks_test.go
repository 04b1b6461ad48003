package application_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ericfisherdev/giteemirror/internal/domain/model"
	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
)

// --- Mock implementations ---

type credKey struct {
	userID   int64
	platform model.Platform
}

type mockCredentialStore struct {
	mu       sync.Mutex
	creds    map[credKey]model.Credential
	err      error
	replaces int
	unlinks  int
}

func newMockCredentialStore(creds ...model.Credential) *mockCredentialStore {
	m := &mockCredentialStore{creds: map[credKey]model.Credential{}}
	for _, c := range creds {
		m.creds[credKey{c.UserID, c.Platform}] = c
	}
	return m
}

func (m *mockCredentialStore) Link(_ context.Context, cred model.Credential) (model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return model.Credential{}, m.err
	}
	key := credKey{cred.UserID, cred.Platform}
	if _, ok := m.creds[key]; ok {
		return model.Credential{}, driven.ErrConflict
	}
	m.creds[key] = cred
	return cred, nil
}

func (m *mockCredentialStore) Replace(_ context.Context, cred model.Credential) (model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return model.Credential{}, m.err
	}
	m.replaces++
	m.creds[credKey{cred.UserID, cred.Platform}] = cred
	return cred, nil
}

func (m *mockCredentialStore) Unlink(_ context.Context, userID int64, platform model.Platform) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unlinks++
	delete(m.creds, credKey{userID, platform})
	return m.err
}

func (m *mockCredentialStore) Get(_ context.Context, userID int64, platform model.Platform) (model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[credKey{userID, platform}]
	if !ok {
		return model.Credential{}, driven.ErrNotFound
	}
	return c, nil
}

func (m *mockCredentialStore) Usernames(_ context.Context, userID int64) (map[model.Platform]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := map[model.Platform]string{}
	for k, c := range m.creds {
		if k.userID == userID {
			names[k.platform] = c.Username
		}
	}
	return names, m.err
}

func (m *mockCredentialStore) ListFullyLinkedUsers(_ context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []int64
	for k := range m.creds {
		if k.platform != model.PlatformGitHub {
			continue
		}
		if _, ok := m.creds[credKey{k.userID, model.PlatformGitee}]; ok {
			users = append(users, k.userID)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users, m.err
}

// mockJobStore is an in-memory JobStore with the same dedup and
// forward-only rules as the SQLite adapter.
type mockJobStore struct {
	mu      sync.Mutex
	nextID  int64
	jobs    map[int64]*model.SyncJob
	entries []model.SyncLogEntry
	claimed []int64
	failErr error
}

func newMockJobStore() *mockJobStore {
	return &mockJobStore{jobs: map[int64]*model.SyncJob{}}
}

func (m *mockJobStore) Create(_ context.Context, job model.SyncJob) (model.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.UserID == job.UserID && j.SourceRepoURL == job.SourceRepoURL && j.Status.IsInFlight() {
			return model.SyncJob{}, fmt.Errorf("job for %s: %w", job.SourceRepoURL, driven.ErrConflict)
		}
	}
	m.nextID++
	job.ID = m.nextID
	job.Status = model.JobStatusPending
	m.jobs[job.ID] = &job
	return job, nil
}

func (m *mockJobStore) ClaimNext(_ context.Context, now time.Time) (*model.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var next *model.SyncJob
	for _, j := range m.jobs {
		if j.Status == model.JobStatusPending && (next == nil || j.ID < next.ID) {
			next = j
		}
	}
	if next == nil {
		return nil, nil
	}
	next.Status = model.JobStatusSyncing
	next.StartedAt = now
	m.claimed = append(m.claimed, next.ID)
	claimed := *next
	return &claimed, nil
}

func (m *mockJobStore) Finish(_ context.Context, jobID int64, status model.JobStatus, msg string, now time.Time) (model.SyncLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return model.SyncLogEntry{}, m.failErr
	}
	j, ok := m.jobs[jobID]
	if !ok || j.Status != model.JobStatusSyncing {
		return model.SyncLogEntry{}, driven.ErrNotFound
	}
	return m.finishLocked(j, status, msg, now), nil
}

func (m *mockJobStore) finishLocked(j *model.SyncJob, status model.JobStatus, msg string, now time.Time) model.SyncLogEntry {
	j.Status = status
	j.ErrorMessage = msg
	j.FinishedAt = now
	entry := model.SyncLogEntry{
		ID:            j.ID,
		UserID:        j.UserID,
		GitHubRepoURL: j.SourceRepoURL,
		GiteeRepoURL:  j.DestinationRepoURL,
		Status:        status,
		ErrorMessage:  msg,
		CreatedAt:     j.RequestedAt,
		UpdatedAt:     now,
	}
	m.entries = append(m.entries, entry)
	return entry
}

func (m *mockJobStore) FailSyncing(_ context.Context, cutoff time.Time, msg string, now time.Time) ([]model.SyncLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SyncLogEntry
	for _, j := range m.jobs {
		if j.Status != model.JobStatusSyncing {
			continue
		}
		if !cutoff.IsZero() && !j.StartedAt.Before(cutoff) {
			continue
		}
		out = append(out, m.finishLocked(j, model.JobStatusFailed, msg, now))
	}
	return out, nil
}

func (m *mockJobStore) Get(_ context.Context, jobID int64) (model.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return model.SyncJob{}, driven.ErrNotFound
	}
	return *j, nil
}

func (m *mockJobStore) CountPending(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, j := range m.jobs {
		if j.Status == model.JobStatusPending {
			n++
		}
	}
	return n, nil
}

// add inserts a job in an arbitrary state, bypassing Create.
func (m *mockJobStore) add(job model.SyncJob) model.SyncJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	job.ID = m.nextID
	m.jobs[job.ID] = &job
	return job
}

func (m *mockJobStore) job(id int64) model.SyncJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.jobs[id]
}

type mockLogStore struct {
	entries []model.SyncLogEntry
	err     error
	calls   []logQuery
}

type logQuery struct {
	filter        model.StatusFilter
	limit, offset int
}

func (m *mockLogStore) Query(_ context.Context, _ int64, filter model.StatusFilter, limit, offset int) ([]model.SyncLogEntry, error) {
	m.calls = append(m.calls, logQuery{filter: filter, limit: limit, offset: offset})
	if m.err != nil {
		return nil, m.err
	}
	var out []model.SyncLogEntry
	for _, e := range m.entries {
		if filter.Matches(e.Status) {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockRepoCache struct {
	mu       sync.Mutex
	listings map[int64]model.RepoListing
	puts     int
}

func newMockRepoCache() *mockRepoCache {
	return &mockRepoCache{listings: map[int64]model.RepoListing{}}
}

func (m *mockRepoCache) Get(_ context.Context, userID int64) (model.RepoListing, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[userID]
	return l, ok, nil
}

func (m *mockRepoCache) Put(_ context.Context, listing model.RepoListing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings[listing.UserID] = listing
	m.puts++
	return nil
}

func (m *mockRepoCache) Invalidate(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listings, userID)
	return nil
}

type mockHost struct {
	mu        sync.Mutex
	platform  model.Platform
	web       string
	user      string
	repos     []model.RepoSummary
	listErr   error
	ensureErr error
	listCalls int
	ensured   []string
	gate      chan struct{} // when set, ListRepos blocks until it is closed
}

func (m *mockHost) Platform() model.Platform {
	return m.platform
}

func (m *mockHost) CurrentUser(_ context.Context, _ string) (string, error) {
	return m.user, nil
}

func (m *mockHost) ListRepos(ctx context.Context, _ string) ([]model.RepoSummary, error) {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.repos, ctx.Err()
}

func (m *mockHost) EnsureRepo(_ context.Context, _, owner, name, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensured = append(m.ensured, owner+"/"+name)
	return m.ensureErr
}

func (m *mockHost) WebHost() string {
	if m.web != "" {
		return m.web
	}
	return string(m.platform) + ".com"
}

func (m *mockHost) CloneURL(owner, name string) string {
	return fmt.Sprintf("https://%s/%s/%s.git", m.WebHost(), owner, name)
}

func (m *mockHost) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

type mockMirrorer struct {
	mirror func(ctx context.Context, source, destination driven.Remote) error
}

func (m *mockMirrorer) Mirror(ctx context.Context, source, destination driven.Remote) error {
	if m.mirror == nil {
		return nil
	}
	return m.mirror(ctx, source, destination)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.JobEvent
}

func (r *recordingPublisher) Publish(event model.JobEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingPublisher) statuses() []model.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.JobStatus, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Status)
	}
	return out
}

// --- Fixtures ---

var fixedNow = time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

func linkedCreds(userID int64) []model.Credential {
	return []model.Credential{
		{UserID: userID, Platform: model.PlatformGitHub, Username: "octo", AccessToken: "ghp_secret"},
		{UserID: userID, Platform: model.PlatformGitee, Username: "mayun", AccessToken: "gitee_secret"},
	}
}

func newHosts() (*mockHost, *mockHost) {
	return &mockHost{platform: model.PlatformGitHub, user: "octo"},
		&mockHost{platform: model.PlatformGitee, user: "mayun"}
}
