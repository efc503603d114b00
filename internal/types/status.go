package types

// App lifecycle statuses. The forward chain is monotonic; Rejected is
// reachable from any pre-deployment state and re-enters the chain at
// TechReview on resubmission. Deployed states remain current until the
// next successful upgrade drops the record back to TestCases.
const (
	StatusNew            = "New"
	StatusTechReview     = "TechReview"
	StatusTestCases      = "TestCases"
	StatusApproved       = "Approved"
	StatusSiteDeployed   = "SiteDeployed"
	StatusTenantDeployed = "TenantDeployed"
	StatusRejected       = "Rejected"
)

var forwardChain = map[string]string{
	StatusNew:        StatusTechReview,
	StatusTechReview: StatusTestCases,
	StatusTestCases:  StatusApproved,
}

// NextStatus returns the successor in the review chain, or "" when the
// status has no review successor.
func NextStatus(status string) string {
	return forwardChain[status]
}

// IsPreDeployment reports whether a record in this status has not yet
// reached a deployed state. Only these states may be rejected.
func IsPreDeployment(status string) bool {
	switch status {
	case StatusNew, StatusTechReview, StatusTestCases, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

func IsDeployed(status string) bool {
	return status == StatusSiteDeployed || status == StatusTenantDeployed
}
