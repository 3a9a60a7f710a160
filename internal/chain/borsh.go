package chain

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// decPrecision is the number of fractional digits carried by a chain Dec.
const decPrecision = 12

var errShortBuffer = errors.New("borsh: unexpected end of data")

// borshReader decodes the little-endian borsh layout used by ABCI query
// responses.
type borshReader struct {
	buf []byte
	off int
}

func newBorshReader(b []byte) *borshReader {
	return &borshReader{buf: b}
}

func (r *borshReader) take(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.buf) {
		return nil, errShortBuffer
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *borshReader) u8() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *borshReader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *borshReader) u64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// u256 reads four little-endian u64 limbs.
func (r *borshReader) u256() (*uint256.Int, error) {
	b, err := r.take(32)
	if err != nil {
		return nil, err
	}
	be := make([]byte, 32)
	for i := range b {
		be[31-i] = b[i]
	}
	return new(uint256.Int).SetBytes(be), nil
}

// amount reads a token amount as a base-10 string.
func (r *borshReader) amount() (string, error) {
	v, err := r.u256()
	if err != nil {
		return "", err
	}
	return v.Dec(), nil
}

// dec reads a signed 256-bit fixed point number with decPrecision digits.
func (r *borshReader) dec() (string, error) {
	v, err := r.u256()
	if err != nil {
		return "", err
	}
	negative := v.Sign() < 0
	if negative {
		v = new(uint256.Int).Neg(v)
	}
	s := scaleDecimal(v.Dec(), decPrecision)
	if negative && s != "0" {
		s = "-" + s
	}
	return s, nil
}

// address reads an established or implicit address and renders it as a
// kind-prefixed hex string.
func (r *borshReader) address() (string, error) {
	tag, err := r.u8()
	if err != nil {
		return "", err
	}
	var kind string
	switch tag {
	case 0:
		kind = "established"
	case 1:
		kind = "implicit"
	default:
		return "", fmt.Errorf("borsh: unsupported address kind %d", tag)
	}
	hash, err := r.take(20)
	if err != nil {
		return "", err
	}
	return kind + ":" + hex.EncodeToString(hash), nil
}

// scaleDecimal inserts a decimal point scale digits from the right of an
// unsigned base-10 integer string and trims trailing zeros.
func scaleDecimal(digits string, scale int) string {
	if len(digits) <= scale {
		digits = strings.Repeat("0", scale-len(digits)+1) + digits
	}
	intPart := digits[:len(digits)-scale]
	frac := strings.TrimRight(digits[len(digits)-scale:], "0")
	if frac == "" {
		return intPart
	}
	return intPart + "." + frac
}
