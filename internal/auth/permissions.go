package auth

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/agentfleet/task-planner/internal/store/model"
)

// RegistrationRoute is the one route an authenticated but unregistered
// subject may call, so a brand-new user can self-register exactly once.
const RegistrationRoute = "POST/tenants/register"

//go:embed permissions.yaml
var defaultPermissions []byte

// PermissionTable maps each role to the route patterns it may invoke.
// A pattern is an HTTP-method-prefixed path in which a `*` segment
// matches exactly one path segment. Kept as data so roles can be
// extended without redeploying logic.
type PermissionTable struct {
	Version int                     `json:"version"`
	Roles   map[model.Role][]string `json:"roles"`
}

// LoadPermissions reads the permission table from path, or the embedded
// default when path is empty.
func LoadPermissions(path string) (*PermissionTable, error) {
	raw := defaultPermissions
	if path != "" {
		var err error
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read permissions file: %w", err)
		}
	}

	var table PermissionTable
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("failed to parse permissions file: %w", err)
	}
	if table.Version == 0 || len(table.Roles) == 0 {
		return nil, fmt.Errorf("permissions table is empty or unversioned")
	}
	return &table, nil
}

// RouteKey builds the method-prefixed lookup key for a request,
// e.g. "GET/jobs/abc-123".
func RouteKey(method, path string) string {
	return method + "/" + strings.Trim(path, "/")
}

// Allowed decides whether role may invoke the route identified by key.
// Exact matches win; otherwise a wildcard pattern matches when the route
// has the same number of segments and every non-wildcard segment is
// positionally equal. A wildcard stands for exactly one segment, so
// "GET/jobs/*" does not cover "GET/jobs/abc-123/logs".
func (t *PermissionTable) Allowed(role model.Role, key string) bool {
	patterns, ok := t.Roles[role]
	if !ok {
		return false
	}

	for _, p := range patterns {
		if p == key {
			return true
		}
	}

	routeParts := strings.Split(key, "/")
	for _, p := range patterns {
		if !strings.Contains(p, "*") {
			continue
		}
		if matchPattern(strings.Split(p, "/"), routeParts) {
			return true
		}
	}

	return false
}

func matchPattern(patternParts, routeParts []string) bool {
	if len(routeParts) != len(patternParts) {
		return false
	}
	for i, pp := range patternParts {
		if pp == "*" {
			continue
		}
		if pp != routeParts[i] {
			return false
		}
	}
	return true
}
