package application

import "time"

// Clock hooks for tests in application_test.

func (l *RepoLister) SetNow(now func() time.Time) {
	l.now = now
}

func (q *SyncQueue) SetNow(now func() time.Time) {
	q.now = now
}

func (w *MirrorWorker) SetNow(now func() time.Time) {
	w.now = now
}

func (p *WorkerPool) SetNow(now func() time.Time) {
	p.now = now
}

func (s *DashboardService) SetNow(now func() time.Time) {
	s.now = now
}

func (s *OAuthService) SetNow(now func() time.Time) {
	s.now = now
}

func (s *CredentialService) SetNow(now func() time.Time) {
	s.now = now
}
