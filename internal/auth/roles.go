package auth

// Role is one entry of the closed role enumeration.  Authorization checks
// compare role strings verbatim; a string outside this list may sit on an
// identity but never satisfies a check.
type Role string

const (
	RoleAdmin             Role = "OmeAdmin"
	RoleDeputyAdmin       Role = "OmeDeputyAdmin"
	RoleOfficeWorker      Role = "OmeOfficeWorker"
	RoleSuperUser         Role = "OmeSuperUser"
	RoleTechUser          Role = "OmeTechUser"
	RoleTechnician        Role = "OmeTechnician"
	RoleTechnicianManager Role = "OmeTechnicianManager"
	RoleTrainee           Role = "OmeTrainee"
)

var knownRoles = map[Role]struct{}{
	RoleAdmin:             {},
	RoleDeputyAdmin:       {},
	RoleOfficeWorker:      {},
	RoleSuperUser:         {},
	RoleTechUser:          {},
	RoleTechnician:        {},
	RoleTechnicianManager: {},
	RoleTrainee:           {},
}

// ParseRole reports whether s names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	_, ok := knownRoles[r]
	return r, ok
}

// Valid reports whether r belongs to the enumeration.
func (r Role) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

func (r Role) String() string { return string(r) }
