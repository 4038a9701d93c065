package domain

// Session is the client's record of a backend-confirmed login.
// JSON field names match the record persisted under the authUser storage key.
type Session struct {
	Username     string `json:"username"`
	SessionToken string `json:"sessionToken"`
}

// Complete reports whether both identity and credential are present.
// An incomplete record is never adopted as a current session.
func (s *Session) Complete() bool {
	return s != nil && s.Username != "" && s.SessionToken != ""
}
