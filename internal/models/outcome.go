package models

// OutcomeKind tags an AuthOutcome.
type OutcomeKind string

const (
	OutcomeAuthenticated     OutcomeKind = "authenticated"
	OutcomePendingEnablement OutcomeKind = "pending_enablement"
	OutcomeRejected          OutcomeKind = "rejected"
)

// RejectReason is the top-level reason code of a rejected attempt.
type RejectReason string

const (
	ReasonTokenAcquisitionFailed RejectReason = "token_acquisition_failed"
	ReasonExtractionFailed       RejectReason = "extraction_failed"
	ReasonPolicyDenied           RejectReason = "policy_denied"
	ReasonUserInitFailure        RejectReason = "user_init_failure"
	ReasonTimeout                RejectReason = "timeout"
)

// Causes refining ReasonExtractionFailed and ReasonPolicyDenied.
const (
	CauseMissingOrInvalidToken = "missing_or_invalid_token"
	CauseUserInfoFetchFailed   = "userinfo_fetch_failed"
	CauseMissingIdentityClaims = "missing_identity_claims"
	CauseProviderDisabled      = "provider_disabled"
	CauseDomainNotAllowed      = "domain_not_allowed"
)

// PolicyDecision is the result of a policy check. Cause is set when denied.
type PolicyDecision struct {
	Allowed bool
	Cause   string
}

func Allow() PolicyDecision { return PolicyDecision{Allowed: true} }

func Deny(cause string) PolicyDecision { return PolicyDecision{Cause: cause} }

// AuthOutcome is the terminal result of one authentication attempt.
//
// Username and Email are filled whenever they were derived, so a failure handler can
// build a specific response ("contact admin to enable your account") without the user.
type AuthOutcome struct {
	Kind       OutcomeKind
	User       *LocalUser
	Reason     RejectReason
	Cause      string
	ProviderID string
	Username   string
	Email      string
	// NewUser is set when the user was provisioned in this attempt. EagerSave is set when
	// the pipeline already tried to save it; Persisted reports whether that save worked.
	NewUser   bool
	EagerSave bool
	Persisted bool
	Err       error `json:"-"`
}

func Authenticated(user *LocalUser) AuthOutcome {
	return AuthOutcome{Kind: OutcomeAuthenticated, User: user, Username: user.Username, Email: user.Email}
}

func PendingEnablement(user *LocalUser) AuthOutcome {
	return AuthOutcome{Kind: OutcomePendingEnablement, User: user, Username: user.Username, Email: user.Email}
}

func Rejected(reason RejectReason, cause string, err error) AuthOutcome {
	return AuthOutcome{Kind: OutcomeRejected, Reason: reason, Cause: cause, Err: err}
}

func (o AuthOutcome) IsAuthenticated() bool { return o.Kind == OutcomeAuthenticated }

func (o AuthOutcome) IsPending() bool { return o.Kind == OutcomePendingEnablement }

func (o AuthOutcome) IsRejected() bool { return o.Kind == OutcomeRejected }

// Label is the reason (or kind) used for metrics and logs.
func (o AuthOutcome) Label() string {
	if o.Kind == OutcomeRejected {
		if o.Cause != "" {
			return string(o.Reason) + ":" + o.Cause
		}
		return string(o.Reason)
	}
	return string(o.Kind)
}
