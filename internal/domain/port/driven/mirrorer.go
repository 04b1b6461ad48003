package driven

import "context"

// Remote is one side of a mirror transfer.
type Remote struct {
	URL   string
	Token string
}

// Mirrorer copies every ref of source to destination, replacing divergent
// history on the destination. Implementations must honor ctx cancellation
// and must not include tokens in returned errors.
type Mirrorer interface {
	Mirror(ctx context.Context, source, destination Remote) error
}
