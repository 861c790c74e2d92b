package quota

// Tier identifies a subscription tier.
type Tier string

// Recognized subscription tiers.
const (
	TierFree    Tier = "free"
	TierPro     Tier = "pro"
	TierPremium Tier = "premium"
)

// Unlimited is the daily limit value meaning "no limit".
const Unlimited int64 = -1

// TierLimits maps tiers to daily message limits. A negative limit
// means unlimited.
type TierLimits map[Tier]int64

// DefaultTierLimits returns the launch tier table: free users get 20
// messages per tenant day, paid tiers are unlimited.
func DefaultTierLimits() TierLimits {
	return TierLimits{
		TierFree:    20,
		TierPro:     Unlimited,
		TierPremium: Unlimited,
	}
}

// DailyMessageLimit resolves the daily message limit for tier.
// Unknown tiers resolve to the free limit: failing toward the tighter
// quota beats granting accidental unlimited usage.
func (l TierLimits) DailyMessageLimit(tier Tier) int64 {
	if limit, ok := l[tier]; ok {
		return limit
	}
	if limit, ok := l[TierFree]; ok {
		return limit
	}
	return 20
}
