package archive

import "errors"

var (
	// ErrNotFound reports a missing artifact, version, or pointer.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists reports an artifact write refused because the artifact is present.
	ErrAlreadyExists = errors.New("artifact already exists")
	// ErrVersionExists reports a capture whose version is already archived for the domain.
	ErrVersionExists = errors.New("version already archived")
	// ErrInvalidVersion reports a folder name or descriptor that is not <timestamp>-<semver>.
	ErrInvalidVersion = errors.New("invalid version")
	// ErrUnknownKind reports an artifact kind outside the closed set.
	ErrUnknownKind = errors.New("unknown artifact kind")
	// ErrLocked reports a refresh suppressed by a young lock marker.
	ErrLocked = errors.New("archive locked by pending lookup")
)
