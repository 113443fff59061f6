// Package idcodec obfuscates numeric primary keys as opaque, authenticated
// tokens so resource ids cannot be enumerated. Encoding is AES-128-GCM under
// a per-resource key with an HMAC-derived IV; tampering with a token fails
// authentication instead of decoding to a plausible wrong id.
package idcodec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	// MinLengthFloor and MinLengthCeil bound the configurable minimum token
	// length.
	MinLengthFloor = 12
	MinLengthCeil  = 42

	ivSize  = 16
	tagSize = 16

	// the 16-byte GCM tag always encodes to this many alphabet characters
	tagChars = 22

	// separator between the id and its anti-leakage padding inside the
	// plaintext; never occurs in percent-encoded composite ids
	padSeparator = '\t'
)

// alphabet is the fixed 62-symbol set used for iv seeds, padding filler and
// ciphertext text.
const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

var (
	// ErrConfig reports an unusable key or minimum length at construction.
	ErrConfig = errors.New("invalid id codec configuration")
	// ErrIntegrity reports a token that failed authentication on decode.
	ErrIntegrity = errors.New("invalid id token")
)

// Codec encodes and decodes primary-key strings. Immutable and safe for
// concurrent use.
type Codec struct {
	aead      cipher.AEAD
	key       []byte
	domainID  string
	seedLen   int
	staticIDs bool
}

// New builds a codec from a 32-hex-character (16 byte) key. domainID binds
// tokens to one resource so the same id encodes differently across resources.
// minLength must be within [MinLengthFloor, MinLengthCeil]; tokens are never
// shorter than it. With staticIDs the encoding is deterministic per
// (id, cellSeed); without it every encode draws a fresh random iv seed.
func New(keyHex, domainID string, minLength int, staticIDs bool) (*Codec, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil || len(key) != 16 {
		return nil, fmt.Errorf("%w: key must be 32 hex characters", ErrConfig)
	}
	if minLength < MinLengthFloor || minLength > MinLengthCeil {
		return nil, fmt.Errorf("%w: minLength %d outside [%d,%d]",
			ErrConfig, minLength, MinLengthFloor, MinLengthCeil)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return &Codec{
		aead:      aead,
		key:       key,
		domainID:  domainID,
		seedLen:   (minLength + 1) / 2,
		staticIDs: staticIDs,
	}, nil
}

// Encode turns an id into an opaque token. cellSeed feeds the deterministic
// iv seed when static ids are enabled; it is ignored otherwise.
func (c *Codec) Encode(id, cellSeed string) (string, error) {
	var ivSeed string
	if c.staticIDs {
		ivSeed = mapToAlphabet(c.derive(cellSeed), c.seedLen)
	} else {
		random := make([]byte, c.seedLen)
		if _, err := rand.Read(random); err != nil {
			return "", err
		}
		ivSeed = mapToAlphabet(random, c.seedLen)
	}

	iv := c.derive(ivSeed)[:ivSize]

	// pad short ids so the ciphertext never reveals the plaintext length
	plaintext := []byte(id)
	plaintext = append(plaintext, padSeparator)
	for filler := 0; len(plaintext) < c.seedLen; filler++ {
		plaintext = append(plaintext, alphabet[iv[filler%ivSize]%62])
	}

	sealed := c.aead.Seal(nil, iv, plaintext, nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return ivSeed + encodeBytes(ciphertext) + encodeTag(tag), nil
}

// Decode reverses Encode. Any malformed or tampered token fails with
// ErrIntegrity.
func (c *Codec) Decode(token string) (string, error) {
	if len(token) < c.seedLen+tagChars+1 {
		return "", fmt.Errorf("%w: token too short", ErrIntegrity)
	}
	ivSeed := token[:c.seedLen]
	ciphertext, err := decodeBytes(token[c.seedLen : len(token)-tagChars])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	tag, err := decodeTag(token[len(token)-tagChars:])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIntegrity, err)
	}

	iv := c.derive(ivSeed)[:ivSize]
	plaintext, err := c.aead.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrIntegrity)
	}

	if i := strings.IndexByte(string(plaintext), padSeparator); i >= 0 {
		return string(plaintext[:i]), nil
	}
	return string(plaintext), nil
}

// StaticIDs reports whether encoding is deterministic.
func (c *Codec) StaticIDs() bool { return c.staticIDs }

// derive computes HMAC-SHA256(key, domainID + " " + seed).
func (c *Codec) derive(seed string) []byte {
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(c.domainID + " " + seed))
	return mac.Sum(nil)
}

func mapToAlphabet(src []byte, n int) string {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = alphabet[src[i%len(src)]%62]
	}
	return string(out)
}

var base62 = big.NewInt(62)

// encodeBytes renders data as base-62 text. A 0x01 prefix byte preserves
// leading zeros and makes the encoding length-unambiguous.
func encodeBytes(data []byte) string {
	n := new(big.Int).SetBytes(append([]byte{0x01}, data...))
	return bigToAlphabet(n)
}

func decodeBytes(s string) ([]byte, error) {
	n, err := alphabetToBig(s)
	if err != nil {
		return nil, err
	}
	raw := n.Bytes()
	if len(raw) == 0 || raw[0] != 0x01 {
		return nil, errors.New("malformed ciphertext encoding")
	}
	return raw[1:], nil
}

// encodeTag renders exactly tagSize bytes as a fixed-width zero-padded
// base-62 group so the token tail can be split without a length marker.
func encodeTag(tag []byte) string {
	s := bigToAlphabet(new(big.Int).SetBytes(tag))
	if len(s) < tagChars {
		s = strings.Repeat("0", tagChars-len(s)) + s
	}
	return s
}

func decodeTag(s string) ([]byte, error) {
	n, err := alphabetToBig(s)
	if err != nil {
		return nil, err
	}
	tag := make([]byte, tagSize)
	if n.BitLen() > tagSize*8 {
		return nil, errors.New("malformed tag encoding")
	}
	n.FillBytes(tag)
	return tag, nil
}

func bigToAlphabet(n *big.Int) string {
	if n.Sign() == 0 {
		return "0"
	}
	var out []byte
	digit := new(big.Int)
	n = new(big.Int).Set(n)
	for n.Sign() > 0 {
		n.DivMod(n, base62, digit)
		out = append(out, alphabet[digit.Int64()])
	}
	// digits come out least-significant first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

func alphabetToBig(s string) (*big.Int, error) {
	n := new(big.Int)
	for i := 0; i < len(s); i++ {
		d := strings.IndexByte(alphabet, s[i])
		if d < 0 {
			return nil, fmt.Errorf("character %q outside token alphabet", s[i])
		}
		n.Mul(n, base62)
		n.Add(n, big.NewInt(int64(d)))
	}
	return n, nil
}
