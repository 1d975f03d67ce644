package alz

import (
	"errors"
	"fmt"

	"github.com/nguyengg/unalz/codec"
	"github.com/nguyengg/unalz/volume"
)

var (
	// ErrNotALZ is returned when the first record of the archive is not one of the known ALZ signatures.
	ErrNotALZ = errors.New("not an ALZ archive")

	// ErrPasswordNotSet is wrapped in DecryptionError when an encrypted entry is opened without a password.
	ErrPasswordNotSet = errors.New("password not set")

	// ErrInvalidPassword is wrapped in DecryptionError when the password fails the encryption header check.
	ErrInvalidPassword = errors.New("invalid password")
)

// FormatError is returned when the archive structure cannot be parsed.
//
// The rest of the archive is unreadable past a FormatError.
type FormatError struct {
	// Offset is the logical offset at which the offending record starts.
	Offset int64
	Msg    string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("alz format error at offset %d: %s: %v", e.Offset, e.Msg, e.Err)
	}

	return fmt.Sprintf("alz format error at offset %d: %s", e.Offset, e.Msg)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// VolumeError is returned when a volume is missing, too short, or cannot be read.
//
// The logical stream cannot be reconstructed past a VolumeError.
type VolumeError = volume.Error

// DecryptionError is returned when an encrypted entry cannot be decrypted.
//
// Err is either ErrPasswordNotSet or ErrInvalidPassword.
type DecryptionError struct {
	Name string
	Err  error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decrypt %q error: %v", e.Name, e.Err)
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// ChecksumError is returned at the end of an entry's data if the CRC-32 of the decompressed bytes does not match the
// one stored in the local file header.
//
// All the decompressed bytes have already been returned by the time a ChecksumError is.
type ChecksumError struct {
	Name     string
	Expected uint32
	Actual   uint32
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch for %q: expected %08x, got %08x", e.Name, e.Expected, e.Actual)
}

// CodecError is returned when an entry's data cannot be decompressed.
type CodecError struct {
	Name   string
	Method codec.Method
	Err    error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("decompress %q (%s) error: %v", e.Name, e.Method, e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err leaves the archive unreadable past the point of failure.
//
// FormatError, VolumeError, and ErrNotALZ are fatal. DecryptionError, ChecksumError, and CodecError are scoped to one
// entry, and the next entry can still be read.
func IsFatal(err error) bool {
	var (
		fe *FormatError
		ve *VolumeError
	)

	return errors.As(err, &ve) || errors.As(err, &fe) || errors.Is(err, ErrNotALZ)
}
