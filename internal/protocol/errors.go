package protocol

import "errors"

var (
	ErrUnknownTag = errors.New("unknown record tag")
	ErrLength     = errors.New("record length does not match tag")
	ErrField      = errors.New("record field out of bounds")
)
