package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"navisol/internal/core"
	"navisol/pkg/domain"
)

// permissionsFile is the YAML layout of a permission matrix override:
//
//	roles:
//	  SALES: [create-project, quote-project, view]
//	  VIEWER: [view]
type permissionsFile struct {
	Roles map[domain.Role][]domain.Permission `yaml:"roles"`
}

// LoadPermissions reads a permission matrix from path. Roles left out of the
// file hold no permissions.
func LoadPermissions(path string) (core.PermissionMatrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read permissions: %w", err)
	}
	return ParsePermissions(data)
}

// ParsePermissions decodes a YAML permission matrix. Unknown keys, roles and
// permissions are rejected.
func ParsePermissions(data []byte) (core.PermissionMatrix, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var file permissionsFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse permissions: %w", err)
	}
	if len(file.Roles) == 0 {
		return nil, fmt.Errorf("parse permissions: no roles defined")
	}
	return core.NewPermissionMatrix(file.Roles)
}

// Authorizer returns the permission matrix named by PermissionsFile, or the
// built-in matrix when none is configured.
func (c Config) Authorizer() (core.PermissionMatrix, error) {
	if c.PermissionsFile == "" {
		return core.DefaultPermissionMatrix(), nil
	}
	return LoadPermissions(c.PermissionsFile)
}
