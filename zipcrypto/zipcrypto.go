// Package zipcrypto implements the traditional PKWARE stream cipher that ALZ archives use to protect entries.
//
// The cipher keeps three 32-bit key registers that are mutated by every plaintext byte. A session is created from the
// raw password with New, then the 12-byte encryption header stored in front of each encrypted payload is decrypted to
// validate the password and to establish the key state used for the payload itself.
package zipcrypto

import (
	"hash/crc32"
	"io"
)

// HeaderLen is the length of the encryption header that precedes every encrypted payload.
const HeaderLen = 12

const (
	initKey0 uint32 = 0x12345678
	initKey1 uint32 = 0x23456789
	initKey2 uint32 = 0x3456789A
)

// Keys is the state of one decryption session.
//
// The zero value is not a valid session; use New. Keys is a value type so copying it forks the session, which is how
// CheckHeader can be tried without disturbing the caller's state.
type Keys struct {
	K0, K1, K2 uint32
}

// New initialises the key registers and feeds every password byte through Update.
func New(password []byte) Keys {
	k := Keys{initKey0, initKey1, initKey2}
	for _, c := range password {
		k.Update(c)
	}

	return k
}

func crc32Byte(crc uint32, b byte) uint32 {
	return crc32.IEEETable[byte(crc)^b] ^ (crc >> 8)
}

// Update mixes one plaintext byte into the key registers.
func (k *Keys) Update(c byte) {
	k.K0 = crc32Byte(k.K0, c)
	k.K1 = (k.K1+(k.K0&0xff))*134775813 + 1
	k.K2 = crc32Byte(k.K2, byte(k.K1>>24))
}

// DecryptByte returns the next keystream byte without advancing the state.
func (k Keys) DecryptByte() byte {
	t := uint16(k.K2 | 2)
	return byte((t * (t ^ 1)) >> 8)
}

// Decrypt decrypts p in place.
func (k *Keys) Decrypt(p []byte) {
	for i, c := range p {
		b := c ^ k.DecryptByte()
		k.Update(b)
		p[i] = b
	}
}

// Encrypt encrypts p in place. It is the inverse of Decrypt given identical starting state.
func (k *Keys) Encrypt(p []byte) {
	for i, b := range p {
		c := b ^ k.DecryptByte()
		k.Update(b)
		p[i] = c
	}
}

// CheckByte returns the value the last decrypted header byte must have for a password to be accepted.
//
// When the data-descriptor flag is set the check byte comes from the DOS timestamp, otherwise from the stored CRC.
func CheckByte(crc, dosTime uint32, dataDescriptor bool) byte {
	if dataDescriptor {
		return byte(dosTime >> 8)
	}

	return byte(crc >> 24)
}

// CheckHeader decrypts a copy of the encryption header and reports whether its last byte equals check.
//
// The session advances through the header regardless of the outcome. On success the receiver holds exactly the state
// needed to decrypt the payload that follows the header.
func (k *Keys) CheckHeader(header [HeaderLen]byte, check byte) bool {
	k.Decrypt(header[:])
	return header[HeaderLen-1] == check
}

type reader struct {
	r    io.Reader
	keys Keys
}

// NewReader returns an io.Reader that decrypts everything read from r using the given session.
//
// The session is copied; the caller's Keys is left untouched.
func NewReader(r io.Reader, keys Keys) io.Reader {
	return &reader{r: r, keys: keys}
}

func (r *reader) Read(p []byte) (n int, err error) {
	n, err = r.r.Read(p)
	r.keys.Decrypt(p[:n])
	return
}
