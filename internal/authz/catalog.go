package authz

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Permission is an atomic capability identified by a dot-separated key.
// The resource.action convention is not enforced anywhere; keys are opaque.
type Permission struct {
	Key         string
	Description string
}

// PermissionSet is a set of permission keys.
type PermissionSet map[string]struct{}

// Has reports whether the key is in the set.
func (s PermissionSet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Add inserts a key into the set.
func (s PermissionSet) Add(key string) {
	s[key] = struct{}{}
}

// Keys returns the sorted keys of the set.
func (s PermissionSet) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of the set.
func (s PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// NewPermissionSet builds a set from keys.
func NewPermissionSet(keys ...string) PermissionSet {
	s := make(PermissionSet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Catalog holds the permission registry and the role baseline table. It is
// built once at startup from static configuration and is immutable after
// construction; callers receive it by injection.
type Catalog struct {
	permissions map[string]Permission
	roles       map[string]PermissionSet
	superRole   string
}

var titleCaser = cases.Title(language.English)

// NewCatalog builds a Catalog from the given permissions and role baselines.
// Permissions with an empty description get one derived from the key. The
// super-admin role must not appear in baselines: its baseline is computed as
// the full catalog at lookup time, so new permission keys cover it without a
// migration step.
func NewCatalog(perms []Permission, baselines map[string][]string, superRole string) (*Catalog, error) {
	c := &Catalog{
		permissions: make(map[string]Permission, len(perms)),
		roles:       make(map[string]PermissionSet, len(baselines)+1),
		superRole:   superRole,
	}
	for _, p := range perms {
		if p.Key == "" {
			return nil, fmt.Errorf("authz: permission with empty key")
		}
		if _, dup := c.permissions[p.Key]; dup {
			return nil, fmt.Errorf("authz: duplicate permission %q", p.Key)
		}
		if p.Description == "" {
			p.Description = describeKey(p.Key)
		}
		c.permissions[p.Key] = p
	}
	for role, keys := range baselines {
		if role == superRole {
			return nil, fmt.Errorf("authz: role %q baseline must be computed, not configured", superRole)
		}
		set := make(PermissionSet, len(keys))
		for _, key := range keys {
			if _, ok := c.permissions[key]; !ok {
				return nil, fmt.Errorf("authz: role %q references unknown permission %q", role, key)
			}
			set.Add(key)
		}
		c.roles[role] = set
	}
	return c, nil
}

// LookupPermission returns the permission for key, or ErrPermissionNotFound.
func (c *Catalog) LookupPermission(key string) (Permission, error) {
	p, ok := c.permissions[key]
	if !ok {
		return Permission{}, fmt.Errorf("%w: %s", ErrPermissionNotFound, key)
	}
	return p, nil
}

// Permissions returns all catalog entries sorted by key.
func (c *Catalog) Permissions() []Permission {
	out := make([]Permission, 0, len(c.permissions))
	for _, p := range c.permissions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// RoleBaseline returns the baseline permission set for the role. The
// super-admin role resolves to a snapshot of the full catalog.
func (c *Catalog) RoleBaseline(role string) (PermissionSet, error) {
	if role == c.superRole {
		return c.allPermissions(), nil
	}
	set, ok := c.roles[role]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, role)
	}
	return set.Clone(), nil
}

// Roles returns all configured role names, the super-admin role included,
// sorted alphabetically.
func (c *Catalog) Roles() []string {
	names := make([]string, 0, len(c.roles)+1)
	for name := range c.roles {
		names = append(names, name)
	}
	names = append(names, c.superRole)
	sort.Strings(names)
	return names
}

// HasRole reports whether the role name is known to the catalog.
func (c *Catalog) HasRole(role string) bool {
	if role == c.superRole {
		return true
	}
	_, ok := c.roles[role]
	return ok
}

// IsSuperRole reports whether role is the designated super-admin role.
func (c *Catalog) IsSuperRole(role string) bool {
	return role == c.superRole
}

func (c *Catalog) allPermissions() PermissionSet {
	set := make(PermissionSet, len(c.permissions))
	for key := range c.permissions {
		set.Add(key)
	}
	return set
}

func describeKey(key string) string {
	resource, action, found := strings.Cut(key, ".")
	if !found {
		return titleCaser.String(strings.ReplaceAll(key, "_", " "))
	}
	action = strings.ReplaceAll(action, "_", " ")
	return titleCaser.String(action) + " " + resource
}
