package client

import "errors"

var (
	// ErrNotConnected is returned for local drawing before the hub has
	// assigned this client a session id.
	ErrNotConnected = errors.New("no session id yet")
	// ErrAlreadyDrawing is returned by BeginLocal while a draft is open.
	ErrAlreadyDrawing = errors.New("a local stroke is already in progress")
	// ErrNotDrawing is returned by ExtendLocal and EndLocal without a draft.
	ErrNotDrawing = errors.New("no local stroke in progress")
	// ErrNotCommitted is returned when undoing a stroke that is not in the
	// local history.
	ErrNotCommitted = errors.New("stroke is not committed")
	// ErrNothingToUndo is returned by UndoLast when this session has no strokes.
	ErrNothingToUndo = errors.New("nothing to undo")
)
