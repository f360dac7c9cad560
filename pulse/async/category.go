package async

import (
	"strings"

	"github.com/teranos/waypoint/errors"
)

// CategoryKind classifies how a job competes with other running jobs
type CategoryKind int

const (
	// CategoryNone jobs are bounded only by the worker budget
	CategoryNone CategoryKind = iota
	// CategoryExclusive jobs run alone: at most one across the scheduler,
	// and never beside another categorized job of the same user
	CategoryExclusive
	// CategoryNamed jobs allow one running job per (user, name)
	CategoryNamed
)

// Category is attached to a job by its type and never changes
type Category struct {
	Kind CategoryKind
	Name string // CategoryNamed only
}

var (
	None      = Category{Kind: CategoryNone}
	Exclusive = Category{Kind: CategoryExclusive}
)

// Named returns the category that serializes jobs sharing name per user
func Named(name string) Category {
	return Category{Kind: CategoryNamed, Name: name}
}

// IsCategorized reports whether the category restricts admission at all
func (c Category) IsCategorized() bool {
	return c.Kind != CategoryNone
}

func (c Category) String() string {
	switch c.Kind {
	case CategoryExclusive:
		return "exclusive"
	case CategoryNamed:
		return "named:" + c.Name
	default:
		return "none"
	}
}

// ParseCategory reverses Category.String
func ParseCategory(s string) (Category, error) {
	switch {
	case s == "" || s == "none":
		return None, nil
	case s == "exclusive":
		return Exclusive, nil
	case strings.HasPrefix(s, "named:") && len(s) > len("named:"):
		return Named(strings.TrimPrefix(s, "named:")), nil
	}
	return None, errors.Newf("unknown job category %q", s)
}

// sharesUser reports whether two jobs compete for the same user's data.
// Global jobs compete with everyone.
func sharesUser(a, b *Job) bool {
	return a.userID == "" || b.userID == "" || a.userID == b.userID
}

// Admit reports whether candidate may start beside the running set.
// The worker budget is checked separately by the Manager.
func Admit(candidate *Job, running []*Job) bool {
	cat := candidate.category
	if !cat.IsCategorized() {
		return true
	}

	for _, r := range running {
		if r == candidate {
			continue
		}
		rc := r.category
		if rc.Kind == CategoryExclusive {
			return false
		}
		if !rc.IsCategorized() || !sharesUser(candidate, r) {
			continue
		}
		if cat.Kind == CategoryExclusive {
			return false
		}
		if rc.Kind == CategoryNamed && rc.Name == cat.Name {
			return false
		}
	}
	return true
}
