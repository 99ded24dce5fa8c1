// Package auth holds the client session that signs requests to the data
// service and the server-side bearer token validation.
package auth

// Identity is the signed-in user as seen by the engine.
type Identity interface {
	IsAuthenticated() bool
	UserID() string
	// Token is the bearer access token, or "".
	Token() string
}

// Anonymous is the signed-out Identity.
type Anonymous struct{}

func (Anonymous) IsAuthenticated() bool { return false }
func (Anonymous) UserID() string        { return "" }
func (Anonymous) Token() string         { return "" }

// Static is a fixed Identity, used by the CLI when a token is given
// directly.
type Static struct {
	ID          string
	AccessToken string
}

func (s Static) IsAuthenticated() bool { return s.ID != "" && s.AccessToken != "" }
func (s Static) UserID() string        { return s.ID }
func (s Static) Token() string         { return s.AccessToken }
