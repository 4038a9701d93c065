package audit

// Audited actions.
const (
	ActionSignup          = "signup"
	ActionLogin           = "login"
	ActionOTPSent         = "otp_sent"
	ActionVerifyOTP       = "verify_otp"
	ActionValidateSession = "validate_session"
	ActionSessionExpired  = "session_expired"
	ActionLogout          = "logout"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
