package replica

import "github.com/google/uuid"

// IDProvider issues identifiers for records allocated on this device.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// IDProviderFunc adapts a function to IDProvider.
type IDProviderFunc func() (string, error)

// NewID calls fn.
func (fn IDProviderFunc) NewID() (string, error) {
	return fn()
}
