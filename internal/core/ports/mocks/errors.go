package mocks

import "errors"

var (
	// ErrInjected is a generic failure returned by the *Err fields of the mocks.
	ErrInjected = errors.New("injected failure")

	// ErrUnsubscribed is returned by ChangeFeed.Emit after all subscribers left.
	ErrUnsubscribed = errors.New("no subscribers")
)
