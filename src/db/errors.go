package db

import "errors"

// ErrClassNotFound is returned when a class identifier matches no
// class in the handle's current schema.
var ErrClassNotFound = errors.New("class not found in schema")

// ErrSchemaMismatch is returned when an operation needs a schema
// feature the class does not declare, such as a primary key.
var ErrSchemaMismatch = errors.New("schema mismatch")

// ErrIllegalState is returned for operations in the wrong transaction
// state or on a closed handle.
var ErrIllegalState = errors.New("illegal state")

// ErrInvalidatedObject is returned when acting on an object whose row
// was deleted or whose handle closed.
var ErrInvalidatedObject = errors.New("object is invalidated")

// ErrInvalidArgument is returned for malformed arguments, such as an
// unknown update mode or an untranslatable property value.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrNotImplemented is returned for argument shapes that are flagged
// as unsupported rather than silently ignored.
var ErrNotImplemented = errors.New("not implemented")

// ErrUnsupportedOperation is returned for operations a class's table
// type rules out, such as querying embedded or asymmetric classes.
var ErrUnsupportedOperation = errors.New("unsupported operation")
