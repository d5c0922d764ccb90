package update

import "errors"

var ErrAlreadyStarted = errors.New("scheduler already started")
var ErrNotStarted = errors.New("scheduler not started")
