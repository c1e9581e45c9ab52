package auth

// Principal is any entity making a request.
type Principal interface {
	GetID() string
	GetWorkspaceID() string
	GetRoles() []string
	// IsAdmin reports whether the principal may change workspace governance
	// settings.
	IsAdmin() bool
}

// BasePrincipal is a simple implementation of Principal.
type BasePrincipal struct {
	ID          string
	WorkspaceID string
	Roles       []string
}

func (b *BasePrincipal) GetID() string {
	return b.ID
}

func (b *BasePrincipal) GetWorkspaceID() string {
	return b.WorkspaceID
}

func (b *BasePrincipal) GetRoles() []string {
	return b.Roles
}

func (b *BasePrincipal) IsAdmin() bool {
	for _, role := range b.Roles {
		if role == "admin" {
			return true
		}
	}
	return false
}
