package models

import "strings"

// Role is the identity role supplied by the identity collaborator.
type Role string

const (
	RoleCommunityMember Role = "CommunityMember"
	RoleServiceProvider Role = "ServiceProvider"
	RoleAdmin           Role = "Admin"
)

// User is the read model of an identity. Only Online is written by this service.
type User struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Email  string   `json:"email,omitempty"`
	Role   Role     `json:"role"`
	Skills []string `json:"skills"`
	Rate   *float64 `json:"rate,omitempty"`
	Online bool     `json:"online"`
	Banned bool     `json:"banned"`
}

// NormalizeSkills lowercases, trims and de-duplicates skill tags, dropping blanks.
func NormalizeSkills(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// ParseRole accepts a role name case-insensitively.
func ParseRole(s string) (Role, bool) {
	for _, r := range []Role{RoleCommunityMember, RoleServiceProvider, RoleAdmin} {
		if strings.EqualFold(s, string(r)) {
			return r, true
		}
	}
	return "", false
}
