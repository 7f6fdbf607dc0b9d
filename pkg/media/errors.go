package media

const (
	// ErrNotFound is returned when a key, policy, option, asset or file id does not resolve.
	ErrNotFound = Error("not found")
	// ErrConflict is returned when an operation would break referential integrity
	// or when duplicate named policies with different content are discovered.
	ErrConflict = Error("conflict")
	// ErrConfiguration is returned for malformed settings: bad base64, bad hex
	// length, unloadable certificate, missing operation arguments.
	ErrConfiguration = Error("configuration error")
)

type Error string

func (e Error) Error() string {
	return string(e)
}
