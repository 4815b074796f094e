package restapi

import "errors"

var (
	// ErrNoSession is returned for any request attempted without a valid
	// access token. Reads degrade to empty results upstream; writes surface
	// this to the caller ("sign in again"). There is deliberately no
	// anonymous-credential fallback for user data.
	ErrNoSession = errors.New("no active session: sign in again")

	// ErrNoRowsAffected marks an update or delete that matched nothing.
	// Callers treat it as a soft failure distinct from a hard error: the
	// request worked, nothing changed.
	ErrNoRowsAffected = errors.New("no rows affected")
)
