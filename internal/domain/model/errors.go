package model

import "errors"

// ErrInvalidSession marks an unrecoverable credential fault: the Telegram
// session (or the game account behind it) is revoked or banned. The loop for
// that account must stop; other accounts are unaffected.
var ErrInvalidSession = errors.New("invalid session")
