package marketplace

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sudo-init-do/handyhub/internal/models"
)

// DefaultBudgetTolerance is how far a provider's rate may sit from a
// request's budget and still match.
const DefaultBudgetTolerance = 200

// Matcher decides which open requests a provider is eligible for.
type Matcher struct {
	Tolerance float64
}

// SkillMatch is true when the provider lists no skills, or when any skill
// and the type of work contain one another, ignoring case.
func SkillMatch(skills []string, typeOfWork string) bool {
	if len(skills) == 0 {
		return true
	}
	work := strings.ToLower(strings.TrimSpace(typeOfWork))
	for _, s := range skills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if strings.Contains(work, s) || (work != "" && strings.Contains(s, work)) {
			return true
		}
	}
	return false
}

// BudgetMatch is true when either side is unset, or the two are within
// the tolerance.
func (m Matcher) BudgetMatch(budget, rate *float64) bool {
	if budget == nil || rate == nil {
		return true
	}
	return math.Abs(*budget-*rate) <= m.Tolerance
}

// Eligible applies the skill and budget rules. Targeting is not considered.
func (m Matcher) Eligible(p models.User, r models.ServiceRequest) bool {
	return SkillMatch(p.Skills, r.TypeOfWork) && m.BudgetMatch(r.Budget, p.Rate)
}

// Match filters open down to what p may take at now: requests targeted at p
// first, then generally eligible requests, each group newest first. A
// request targeted at another provider is still open to p if eligible.
func (m Matcher) Match(p models.User, open []models.ServiceRequest, now time.Time) []models.ServiceRequest {
	if !p.Online || p.Banned {
		return []models.ServiceRequest{}
	}
	seen := make(map[string]struct{}, len(open))
	var targeted, general []models.ServiceRequest
	for _, r := range open {
		if !r.Matchable(now) {
			continue
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		switch {
		case r.IsTargetedAt(p.ID):
			targeted = append(targeted, r)
		case m.Eligible(p, r):
			general = append(general, r)
		default:
			continue
		}
		seen[r.ID] = struct{}{}
	}
	newestFirst(targeted)
	newestFirst(general)
	return append(append(make([]models.ServiceRequest, 0, len(targeted)+len(general)), targeted...), general...)
}

// Candidates returns the providers that should hear about r.
func (m Matcher) Candidates(r models.ServiceRequest, providers []models.User) []models.User {
	var out []models.User
	for _, p := range providers {
		if !p.Online || p.Banned || p.Role != models.RoleServiceProvider || p.ID == r.RequesterID {
			continue
		}
		if r.IsTargetedAt(p.ID) || m.Eligible(p, r) {
			out = append(out, p)
		}
	}
	return out
}

func newestFirst(rs []models.ServiceRequest) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].CreatedAt.After(rs[j].CreatedAt) })
}
