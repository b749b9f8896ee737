package protocol

import "errors"

// ErrUnknownKind is returned for a frame whose type is not a known message kind.
var ErrUnknownKind = errors.New("unknown message kind")

// ErrMalformed is returned when a payload does not match the shape of its kind.
var ErrMalformed = errors.New("malformed message")

// ErrInvalidPoint is returned for a point outside the normalized canvas.
var ErrInvalidPoint = errors.New("point outside canvas")

// ErrWrongDirection is returned when a client sends a kind only the hub may send.
var ErrWrongDirection = errors.New("message kind not accepted from clients")
