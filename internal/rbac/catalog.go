// Package rbac holds the static permission catalog: the system modules, the
// read/write/delete permissions each module exposes and the preset roles.
package rbac

import (
	"sort"
	"strings"
)

// SuperAdminRole is the role name that implicitly holds every permission.
const SuperAdminRole = "Super Admin"

// ViewerRole is assigned to self-registered users.
const ViewerRole = "Viewer"

// Actions available on every module.
const (
	ActionRead   = "read"
	ActionWrite  = "write"
	ActionDelete = "delete"
)

// Separator is the canonical separator between resource and action.
const Separator = "."

// Module describes one entry of the catalog.
type Module struct {
	Key         string   `json:"key"`
	DisplayName string   `json:"displayName"`
	Permissions []string `json:"permissions"`
}

// PresetRole is a named permission bundle seeded by InitializePresets.
type PresetRole struct {
	Key         string   `json:"key"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

var moduleOrder = []string{
	"users", "riders", "vehicles", "garage", "jobs",
	"reports", "finance", "legal", "hr", "settings",
}

var moduleNames = map[string]string{
	"users":    "User Management",
	"riders":   "Rider Management",
	"vehicles": "Vehicle Management",
	"garage":   "Garage",
	"jobs":     "Jobs & Dispatch",
	"reports":  "Reports",
	"finance":  "Finance",
	"legal":    "Legal & Compliance",
	"hr":       "Human Resources",
	"settings": "Settings",
}

func perms(module string, actions ...string) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, module+Separator+a)
	}
	return out
}

func join(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

var rwd = []string{ActionRead, ActionWrite, ActionDelete}

var presetOrder = []string{
	"super_admin", "admin", "fleet_manager", "hr_manager", "accountant",
	"legal_officer", "garage_supervisor", "dispatcher", "onboarding_officer", "viewer",
}

var presets = map[string]PresetRole{
	"super_admin": {
		Name:        SuperAdminRole,
		Description: "Full access to every module",
		Permissions: AllPermissions(),
	},
	"admin": {
		Name:        "Admin",
		Description: "Manages day to day operations across all modules",
		Permissions: join(
			perms("users", ActionRead, ActionWrite),
			perms("riders", rwd...),
			perms("vehicles", rwd...),
			perms("garage", ActionRead, ActionWrite),
			perms("jobs", rwd...),
			perms("reports", ActionRead),
			perms("finance", ActionRead),
			perms("legal", ActionRead, ActionWrite),
			perms("hr", ActionRead, ActionWrite),
			perms("settings", ActionRead),
		),
	},
	"fleet_manager": {
		Name:        "Fleet Manager",
		Description: "Runs riders, vehicles and jobs",
		Permissions: join(
			perms("riders", ActionRead, ActionWrite),
			perms("vehicles", rwd...),
			perms("garage", ActionRead),
			perms("jobs", ActionRead, ActionWrite),
			perms("reports", ActionRead),
		),
	},
	"hr_manager": {
		Name:        "HR Manager",
		Description: "Handles people records and rider employment",
		Permissions: join(
			perms("hr", rwd...),
			perms("riders", ActionRead, ActionWrite),
			perms("users", ActionRead),
			perms("reports", ActionRead),
		),
	},
	"accountant": {
		Name:        "Accountant",
		Description: "Manages finance and reads reports",
		Permissions: join(
			perms("finance", ActionRead, ActionWrite),
			perms("reports", ActionRead),
		),
	},
	"legal_officer": {
		Name:        "Legal Officer",
		Description: "Maintains compliance records",
		Permissions: join(
			perms("legal", ActionRead, ActionWrite),
			perms("riders", ActionRead),
			perms("reports", ActionRead),
		),
	},
	"garage_supervisor": {
		Name:        "Garage Supervisor",
		Description: "Runs the garage and vehicle maintenance",
		Permissions: join(
			perms("garage", ActionRead, ActionWrite),
			perms("vehicles", ActionRead),
			perms("jobs", ActionRead),
		),
	},
	"dispatcher": {
		Name:        "Dispatcher",
		Description: "Assigns jobs to riders",
		Permissions: join(
			perms("jobs", ActionRead, ActionWrite),
			perms("riders", ActionRead),
			perms("vehicles", ActionRead),
		),
	},
	"onboarding_officer": {
		Name:        "Onboarding Officer",
		Description: "Onboards riders and their documents",
		Permissions: join(
			perms("riders", ActionRead, ActionWrite),
			perms("hr", ActionRead),
		),
	},
	"viewer": {
		Name:        ViewerRole,
		Description: "Read-only access",
		Permissions: readAll(),
	},
}

// Modules returns the module catalog in display order.
func Modules() []Module {
	out := make([]Module, 0, len(moduleOrder))
	for _, key := range moduleOrder {
		out = append(out, Module{
			Key:         key,
			DisplayName: moduleNames[key],
			Permissions: perms(key, rwd...),
		})
	}
	return out
}

// AllPermissions returns every permission the catalog defines.
func AllPermissions() []string {
	out := make([]string, 0, len(moduleOrder)*len(rwd))
	for _, key := range moduleOrder {
		out = append(out, perms(key, rwd...)...)
	}
	return out
}

func readAll() []string {
	out := make([]string, 0, len(moduleOrder))
	for _, key := range moduleOrder {
		out = append(out, key+Separator+ActionRead)
	}
	return out
}

// PresetRoles returns the preset roles in seeding order.
func PresetRoles() []PresetRole {
	out := make([]PresetRole, 0, len(presetOrder))
	for _, key := range presetOrder {
		p := presets[key]
		p.Key = key
		p.Permissions = append([]string(nil), p.Permissions...)
		out = append(out, p)
	}
	return out
}

// PresetKeys returns the preset role keys in seeding order.
func PresetKeys() []string {
	return append([]string(nil), presetOrder...)
}

// NormalizePermission converts a permission name to its canonical form.
// Both "riders.write" and "riders:write" yield "riders.write".
func NormalizePermission(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Replace(name, ":", Separator, 1)
}

// SplitPermission splits a canonical permission name into resource and action.
// A name without separator is treated as a resource with an empty action.
func SplitPermission(name string) (resource, action string) {
	name = NormalizePermission(name)
	if i := strings.LastIndex(name, Separator); i >= 0 {
		return name[:i], name[i+1:]
	}
	return name, ""
}

// NormalizeSet normalizes, de-duplicates and sorts permission names.
// Blank names are dropped.
func NormalizeSet(names []string) []string {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = NormalizePermission(n)
		if n == "" {
			continue
		}
		set[n] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Describe returns a human readable description for catalog permissions and
// an empty string for names outside the catalog.
func Describe(name string) string {
	resource, action := SplitPermission(name)
	display, ok := moduleNames[resource]
	if !ok {
		return ""
	}
	switch action {
	case ActionRead:
		return "View " + display
	case ActionWrite:
		return "Create and edit " + display
	case ActionDelete:
		return "Delete " + display
	}
	return ""
}
