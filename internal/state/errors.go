package state

import "errors"

// ErrDuplicateStrokeID is returned by BeginStroke when the id is already active,
// already committed, or belonged to a stroke that was undone.
var ErrDuplicateStrokeID = errors.New("duplicate stroke id")

// ErrInvalidStroke is returned by BeginStroke for a stroke without an id.
var ErrInvalidStroke = errors.New("invalid stroke")
