package domain

// Tier is one SLA breach condition: findings at or above the CVSS floor
// must be remediated within MaxAgeDays.
type Tier struct {
	Name       Bucket
	Floor      float64
	MaxAgeDays float64
}

// Policy is an ordered list of tiers, most severe first. Evaluation walks
// the tiers in order and attributes a failing finding to the first tier
// whose floor it meets and whose age threshold it exceeds; it is never
// double-counted against a less severe tier.
type Policy struct {
	Tiers []Tier
}

// DefaultPolicy returns the standard remediation SLA: 30 days for maximum
// severity findings, 60 for high, 90 for everything else.
func DefaultPolicy() Policy {
	return Policy{
		Tiers: []Tier{
			{Name: BucketMaximum, Floor: 9.0, MaxAgeDays: 30},
			{Name: BucketHigh, Floor: 7.0, MaxAgeDays: 60},
			{Name: BucketMediumLow, Floor: 0.0, MaxAgeDays: 90},
		},
	}
}

// ComplianceElement is the evaluation result for one finding: whether it is
// outside its SLA window, and the tier it was attributed to when failed.
type ComplianceElement struct {
	Failed  bool
	Tier    Bucket
	Finding Finding
}
