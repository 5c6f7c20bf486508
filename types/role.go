package types

// Role selects which half of the tick a world runs. Only the authoritative role mutates machine
// state; the presentation role mirrors snapshots and keeps local effects up to date.
type Role uint8

const (
	RoleAuthoritative Role = iota
	RolePresentation
)

func (r Role) String() string {
	switch r {
	case RoleAuthoritative:
		return "authoritative"
	case RolePresentation:
		return "presentation"
	default:
		return "unknown"
	}
}
