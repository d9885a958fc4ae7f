package identity

import (
	"sort"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Well-known role names seeded at startup. Roles are immutable after seed;
// an account's authorization level is the union of its roles' claims.
const (
	RoleNameAdmin = "Admin"
	RoleNameUser  = "User"
)

// Role carries a unique name and a priority used to order role claims.
// Lower priority sorts first.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rl"`

	ID       uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name     string    `bun:"name,notnull,unique" json:"name,omitempty"`
	Priority int       `bun:"priority,notnull" json:"priority,omitempty"`
}

// DefaultRoles is the seed set used by Roles.Seed when no custom set is given.
func DefaultRoles() []*Role {
	return []*Role{
		{ID: uuid.New(), Name: RoleNameAdmin, Priority: 1},
		{ID: uuid.New(), Name: RoleNameUser, Priority: 2},
	}
}

func sortRolesByPriority(roles []*Role) []*Role {
	out := make([]*Role, len(roles))
	copy(out, roles)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}
