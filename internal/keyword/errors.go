package keyword

import "errors"

var (
	// ErrDuplicateKeyword is returned when adding a pattern that already exists in either table.
	ErrDuplicateKeyword = errors.New("keyword already exists")
	// ErrKeywordNotFound is returned when removing a pattern present in neither table.
	ErrKeywordNotFound = errors.New("keyword not found")
	// ErrEmptyKeyword is returned when adding an entry with an empty pattern or reply.
	ErrEmptyKeyword = errors.New("keyword and reply must not be empty")
	// ErrInvalidTable is returned for an unknown table name.
	ErrInvalidTable = errors.New("invalid keyword table")
)
