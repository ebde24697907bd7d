package engine

import (
	"github.com/veluna/stylebot/internal/domain"
)

// Quota holds the free-tier allowances for metered capabilities. Premium
// users are never limited.
type Quota struct {
	FreeAnalyses int
	FreeTryOns   int
}

// DefaultQuota returns the stock free-tier allowances.
func DefaultQuota() Quota {
	return Quota{FreeAnalyses: 3, FreeTryOns: 3}
}

// AllowAnalysis reports whether the user may run another skin-tone analysis.
func (q Quota) AllowAnalysis(u *domain.User) bool {
	return u.IsPremium() || u.AnalysisCount < q.FreeAnalyses
}

// AllowTryOn reports whether the user may run another garment try-on.
func (q Quota) AllowTryOn(u *domain.User) bool {
	return u.IsPremium() || u.TryOnCount < q.FreeTryOns
}
