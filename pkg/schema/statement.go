package schema

// The SQL layer hands parsed statements to the catalog through these
// read-only views. Plain struct implementations follow each interface.

// AreaDefinition is CREATE AREA name (path, ...).
type AreaDefinition interface {
	AreaName() string
	Elements() []string
}

// ActionType selects how ALTER AREA rewrites the path array.
type ActionType int

const (
	// SingleModify replaces the path of a single-path area.
	SingleModify ActionType = iota
	// FullAryModify replaces the whole array.
	FullAryModify
	// ElemAryModify replaces one element picked by its position.
	ElemAryModify
)

func (t ActionType) String() string {
	switch t {
	case SingleModify:
		return "SingleModify"
	case FullAryModify:
		return "FullAryModify"
	case ElemAryModify:
		return "ElemAryModify"
	default:
		return "Unknown"
	}
}

// AreaElement is one position of an ALTER AREA element list. Set is false
// for positions the statement leaves untouched.
type AreaElement struct {
	Path string
	Set  bool
}

// AlterAreaStatement is ALTER AREA name MODIFY ....
type AlterAreaStatement interface {
	AreaName() string
	ActionType() ActionType
	AreaElements() []AreaElement
}

// GrantStatement is GRANT/REVOKE roles TO/FROM grantees.
type GrantStatement interface {
	Roles() []string
	Grantees() []string
	IsGrant() bool
}

type CreateAreaStmt struct {
	Name  string
	Paths []string
}

func (s *CreateAreaStmt) AreaName() string   { return s.Name }
func (s *CreateAreaStmt) Elements() []string { return s.Paths }

type AlterAreaStmt struct {
	Name   string
	Action ActionType
	Paths  []AreaElement
}

func (s *AlterAreaStmt) AreaName() string            { return s.Name }
func (s *AlterAreaStmt) ActionType() ActionType      { return s.Action }
func (s *AlterAreaStmt) AreaElements() []AreaElement { return s.Paths }

// ModifyPaths builds the element list of a FullAryModify or SingleModify.
func ModifyPaths(paths ...string) []AreaElement {
	out := make([]AreaElement, len(paths))
	for i, p := range paths {
		out[i] = AreaElement{Path: p, Set: true}
	}
	return out
}

type GrantStmt struct {
	RoleNames []string
	Users     []string
	Grant     bool
}

func (s *GrantStmt) Roles() []string    { return s.RoleNames }
func (s *GrantStmt) Grantees() []string { return s.Users }
func (s *GrantStmt) IsGrant() bool      { return s.Grant }
