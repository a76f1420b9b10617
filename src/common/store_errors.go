package common

import "fmt"

// StoreErrType categorises storage-layer errors.
type StoreErrType uint32

const (
	// KeyNotFound is returned when the requested record does not exist.
	KeyNotFound StoreErrType = iota
	// Empty is returned when a query matches no records at all.
	Empty
)

// StoreErr is the error type returned by storage backends.
type StoreErr struct {
	dataType string
	errType  StoreErrType
	key      string
}

// NewStoreErr builds a StoreErr from a record type, an error kind, and the
// offending key.
func NewStoreErr(dataType string, errType StoreErrType, key string) StoreErr {
	return StoreErr{
		dataType: dataType,
		errType:  errType,
		key:      key,
	}
}

// Error implements the error interface.
func (e StoreErr) Error() string {
	m := ""
	switch e.errType {
	case KeyNotFound:
		m = "Not Found"
	case Empty:
		m = "Empty"
	}

	return fmt.Sprintf("%s, %s, %s", e.dataType, e.key, m)
}

// IsStore checks that an error is of type StoreErr and that its code matches
// the provided StoreErrType.
func IsStore(err error, t StoreErrType) bool {
	storeErr, ok := err.(StoreErr)
	return ok && storeErr.errType == t
}
