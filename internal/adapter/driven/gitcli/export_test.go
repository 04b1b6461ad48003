package gitcli

// Test hooks for unexported helpers.
var (
	AuthURL = authURL
	Redact  = redact
)

// NewMirrorerInDir is NewMirrorer with scratch clones placed under dir.
func NewMirrorerInDir(binary, dir string) *Mirrorer {
	m := NewMirrorer(binary)
	m.tempDir = dir
	return m
}
