package discovery

import (
	"sort"
	"strings"
	"unicode"
)

// Action is one of the canonical action prefixes a managed resource can
// support.
type Action string

// The six core actions plus the extended set.
const (
	ActionView           Action = "view"
	ActionViewAny        Action = "view_any"
	ActionCreate         Action = "create"
	ActionUpdate         Action = "update"
	ActionDelete         Action = "delete"
	ActionDeleteAny      Action = "delete_any"
	ActionRestore        Action = "restore"
	ActionRestoreAny     Action = "restore_any"
	ActionReplicate      Action = "replicate"
	ActionReorder        Action = "reorder"
	ActionForceDelete    Action = "force_delete"
	ActionForceDeleteAny Action = "force_delete_any"
)

// CoreActions is the default action set for a managed resource.
var CoreActions = []Action{ActionView, ActionViewAny, ActionCreate, ActionUpdate, ActionDelete, ActionDeleteAny}

// ExtendedActions adds the soft-delete and duplication actions.
var ExtendedActions = append(append([]Action{}, CoreActions...),
	ActionRestore, ActionRestoreAny, ActionReplicate, ActionReorder, ActionForceDelete, ActionForceDeleteAny)

// ResourceDescriptor statically declares a manageable resource type. The host
// supplies these at build time; no runtime discovery happens here.
type ResourceDescriptor struct {
	// Resource is the singular resource name, e.g. "post" or "UserProfile".
	Resource string
	// Model optionally records the host's fully-qualified model identifier.
	Model string
	// Actions is the subset of canonical actions the resource supports.
	Actions []Action
}

// PermissionNames derives the permission names this descriptor implies, using
// the fixed "{action}_{resource}" convention.
func (d ResourceDescriptor) PermissionNames() []string {
	resource := snakeCase(d.Resource)
	names := make([]string, 0, len(d.Actions))
	for _, a := range d.Actions {
		names = append(names, string(a)+"_"+resource)
	}
	return names
}

// DerivePermissionNames expands the descriptors into the sorted, deduplicated
// set of canonical permission names.
func DerivePermissionNames(descriptors []ResourceDescriptor) []string {
	seen := make(map[string]struct{})
	for _, d := range descriptors {
		for _, name := range d.PermissionNames() {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// snakeCase converts CamelCase or kebab-case resource names to snake_case.
func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		case r == '-' || r == ' ':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
