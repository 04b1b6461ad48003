package model

import "time"

// Credential is a linked account for one user on one platform. AccessToken is
// opaque to the engine and must never be logged or returned on read paths.
type Credential struct {
	UserID      int64
	Platform    Platform
	Username    string
	AccessToken string
	LinkedAt    time.Time
}

// LinkStatus reports which platforms a user has linked. It never carries tokens.
type LinkStatus struct {
	GitHubLinked   bool
	GiteeLinked    bool
	GitHubUsername string
	GiteeUsername  string
}

// FullyLinked returns true when both the source and destination accounts are linked.
func (s LinkStatus) FullyLinked() bool {
	return s.GitHubLinked && s.GiteeLinked
}
