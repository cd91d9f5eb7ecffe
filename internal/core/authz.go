package core

import (
	"fmt"
	"sort"

	"navisol/pkg/domain"
)

// Authorizer answers whether a role may perform an action.
type Authorizer interface {
	Can(role Role, perm Permission) bool
}

// PermissionMatrix is a literal role to permission table.
type PermissionMatrix map[Role]map[Permission]bool

// DefaultPermissionMatrix returns the built-in matrix.
func DefaultPermissionMatrix() PermissionMatrix {
	all := domain.Permissions()
	manager := make([]Permission, 0, len(all))
	for _, p := range all {
		if p != domain.PermEmergencyUnlock {
			manager = append(manager, p)
		}
	}
	m, err := NewPermissionMatrix(map[Role][]Permission{
		domain.RoleAdmin:   all,
		domain.RoleManager: manager,
		domain.RoleSales: {
			domain.PermCreateProject,
			domain.PermEditProject,
			domain.PermQuoteProject,
			domain.PermSendOffer,
			domain.PermConfirmOrder,
			domain.PermCreateAmendment,
			domain.PermView,
		},
		domain.RoleProduction: {
			domain.PermAdvanceProduction,
			domain.PermAddTaskOrTime,
			domain.PermView,
		},
		domain.RoleViewer: {domain.PermView},
	})
	if err != nil {
		panic(err)
	}
	return m
}

// NewPermissionMatrix builds a matrix from role grants, rejecting unknown
// roles and permissions.
func NewPermissionMatrix(grants map[Role][]Permission) (PermissionMatrix, error) {
	m := make(PermissionMatrix, len(grants))
	for role, perms := range grants {
		if !role.Valid() {
			return nil, fmt.Errorf("unknown role %q", role)
		}
		set := make(map[Permission]bool, len(perms))
		for _, p := range perms {
			if !p.Valid() {
				return nil, fmt.Errorf("role %s: unknown permission %q", role, p)
			}
			set[p] = true
		}
		m[role] = set
	}
	return m, nil
}

// Can reports whether role holds perm.
func (m PermissionMatrix) Can(role Role, perm Permission) bool {
	return m[role][perm]
}

// Grants lists the permissions held by role in sorted order.
func (m PermissionMatrix) Grants(role Role) []Permission {
	out := make([]Permission, 0, len(m[role]))
	for p, ok := range m[role] {
		if ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Can exposes the service's permission gate.
func (s *Service) Can(role Role, perm Permission) bool { return s.authz.Can(role, perm) }
