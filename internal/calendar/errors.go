package calendar

import "errors"

var (
	// ErrConfiguration marks invalid or empty inputs to calendar or holiday
	// construction.
	ErrConfiguration = errors.New("calendar configuration error")

	// ErrConstruction marks an internally inconsistent session definition,
	// such as an open at or after the close or a recess longer than the
	// session.
	ErrConstruction = errors.New("calendar construction error")
)
