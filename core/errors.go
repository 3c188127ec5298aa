package core

import "errors"

var (
	// ErrInvalidMAC is returned when a token is not a 6-octet MAC address
	ErrInvalidMAC = errors.New("invalid MAC address")

	// ErrParseMiss is returned when a line has an event keyword but no device id
	ErrParseMiss = errors.New("event keyword without device identifier")
)
