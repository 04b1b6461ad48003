package model

// Platform identifies a code hosting service an account can be linked to.
type Platform string

const (
	PlatformGitHub Platform = "github"
	PlatformGitee  Platform = "gitee"
)

// ParsePlatform converts a path or body value into a known Platform.
// The second return value is false for anything other than "github" or "gitee".
func ParsePlatform(s string) (Platform, bool) {
	switch Platform(s) {
	case PlatformGitHub, PlatformGitee:
		return Platform(s), true
	default:
		return "", false
	}
}
