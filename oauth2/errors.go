package oauth2

import "errors"

// The flow distinguishes four failure classes. Everything except a
// configuration error is collapsed into a fresh login redirect by
// Service.Authenticate; callers use errors.Is to tell them apart.
var (
	// ErrConfig marks a missing or unusable required setting. These are
	// deployment defects and propagate out of the flow untouched.
	ErrConfig = errors.New("oauth2: configuration error")

	// ErrTransport marks a network failure, timeout, or non-200 status
	// from the identity provider.
	ErrTransport = errors.New("oauth2: transport error")

	// ErrProtocol marks a 200 response whose body is unparseable or
	// incomplete (missing access_token, missing username claim).
	ErrProtocol = errors.New("oauth2: protocol error")

	// ErrInvalidAttempt marks a callback request that cannot belong to a
	// login attempt we issued: no code, or a missing/expired/forged state.
	ErrInvalidAttempt = errors.New("oauth2: invalid login attempt")
)
