package asn1

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// The value representation shared by all codecs:
//
//	BOOLEAN                 bool
//	INTEGER, ENUMERATED     int64 or *big.Int (enum labels also as string)
//	REAL                    float64 (±Inf and NaN for the special values)
//	NULL                    nil
//	BIT STRING              BitString
//	OCTET STRING, ANY       []byte
//	OBJECT IDENTIFIER       OID
//	RELATIVE-OID            OID
//	character strings       string
//	time types              string (the encoded field form)
//	SEQUENCE, SET           map[string]any keyed by member name
//	CHOICE                  Choice
//	SEQUENCE OF, SET OF     []any
//
// Omitted OPTIONAL members are absent from the map. DEFAULT members may be
// absent on encode; Refresh fills them in.

// BitString is a bit string value: BitLength bits packed MSB-first into
// Bytes.
type BitString struct {
	Bytes     []byte
	BitLength int
}

// Bit returns bit i (0 is the most significant bit of the first octet).
func (b BitString) Bit(i int) int {
	if i < 0 || i >= b.BitLength {
		return 0
	}
	if b.Bytes[i/8]&(0x80>>(i%8)) != 0 {
		return 1
	}
	return 0
}

// String renders the value in bstring notation.
func (b BitString) String() string {
	var sb strings.Builder
	sb.WriteByte('\'')
	for i := 0; i < b.BitLength; i++ {
		sb.WriteByte('0' + byte(b.Bit(i)))
	}
	sb.WriteString("'B")
	return sb.String()
}

// OID is an object identifier or relative OID as a list of arcs.
type OID []uint64

// String renders the OID in dotted notation.
func (o OID) String() string {
	parts := make([]string, len(o))
	for i, arc := range o {
		parts[i] = strconv.FormatUint(arc, 10)
	}
	return strings.Join(parts, ".")
}

// Equal reports arc-wise equality.
func (o OID) Equal(other OID) bool {
	if len(o) != len(other) {
		return false
	}
	for i := range o {
		if o[i] != other[i] {
			return false
		}
	}
	return true
}

// Choice is a selected CHOICE alternative.
type Choice struct {
	Alt   string
	Value any
}

// ToBigInt converts any of the accepted integer shapes to a big.Int.
func ToBigInt(v any) (*big.Int, bool) {
	switch n := v.(type) {
	case int:
		return big.NewInt(int64(n)), true
	case int8:
		return big.NewInt(int64(n)), true
	case int16:
		return big.NewInt(int64(n)), true
	case int32:
		return big.NewInt(int64(n)), true
	case int64:
		return big.NewInt(n), true
	case uint:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint8:
		return big.NewInt(int64(n)), true
	case uint16:
		return big.NewInt(int64(n)), true
	case uint32:
		return big.NewInt(int64(n)), true
	case uint64:
		return new(big.Int).SetUint64(n), true
	case *big.Int:
		return n, true
	}
	return nil, false
}

// NormalizeInt shrinks a big.Int back to int64 when it fits; decoders use
// it so that small integers come back as int64.
func NormalizeInt(n *big.Int) any {
	if n.IsInt64() {
		return n.Int64()
	}
	return new(big.Int).Set(n)
}

// ValueEqual compares two values in the marshaller shape; codecs use it
// to drop members equal to their DEFAULT.
func ValueEqual(a, b any) bool {
	an, aok := ToBigInt(a)
	bn, bok := ToBigInt(b)
	if aok && bok {
		return an.Cmp(bn) == 0
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case []byte:
		y, ok := b.([]byte)
		return ok && bytesEqual(x, y)
	case BitString:
		y, ok := b.(BitString)
		return ok && x.BitLength == y.BitLength && bytesEqual(x.Bytes, y.Bytes)
	case OID:
		y, ok := b.(OID)
		return ok && x.Equal(y)
	case float64:
		y, ok := b.(float64)
		return ok && x == y
	case Choice:
		y, ok := b.(Choice)
		return ok && x.Alt == y.Alt && ValueEqual(x.Value, y.Value)
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !ValueEqual(x[i], y[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, present := y[k]
			if !present || !ValueEqual(xv, yv) {
				return false
			}
		}
		return true
	}
	return false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ValueString renders a value for error messages and the GSER printer.
func ValueString(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case string:
		return `"` + strings.ReplaceAll(x, `"`, `""`) + `"`
	case []byte:
		return fmt.Sprintf("'%X'H", x)
	case BitString:
		return x.String()
	case OID:
		return "{ " + strings.ReplaceAll(x.String(), ".", " ") + " }"
	case Choice:
		return x.Alt + " : " + ValueString(x.Value)
	case map[string]any:
		parts := make([]string, 0, len(x))
		for k, fv := range x {
			parts = append(parts, k+" "+ValueString(fv))
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = ValueString(e)
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	default:
		return fmt.Sprint(x)
	}
}
