package ber

import (
	"bytes"
	"math/big"

	"github.com/golangasn1/goasn1/asn1"
)

// The PER and OER codecs reuse the X.690 contents-octet formats for
// unconstrained integers, reals, and object identifiers; these wrappers
// expose them without the TLV framing.

// EncodeIntContent returns the minimal two's-complement contents octets
// of an integer.
func EncodeIntContent(n *big.Int) []byte {
	return encodeBigInt(n)
}

// DecodeIntContent parses two's-complement contents octets.
func DecodeIntContent(content []byte) (*big.Int, error) {
	d := &decoder{mode: ModeBER}
	return d.decodeBigInt(content, 0, nil)
}

// EncodeRealContent returns the X.690 real contents octets.
func EncodeRealContent(f float64) []byte {
	return encodeReal(f)
}

// DecodeRealContent parses X.690 real contents octets.
func DecodeRealContent(content []byte) (float64, error) {
	d := &decoder{mode: ModeBER}
	return d.decodeReal(content, 0, nil)
}

// EncodeOIDContent returns the contents octets of an object identifier.
func EncodeOIDContent(oid asn1.OID) ([]byte, error) {
	content, _, err := encodeOID(oid, nil)
	return content, err
}

// DecodeOIDContent parses object identifier contents octets.
func DecodeOIDContent(content []byte) (asn1.OID, error) {
	d := &decoder{mode: ModeBER}
	return d.decodeOID(content, 0, nil)
}

// EncodeRelativeOIDContent returns the contents octets of a relative OID.
func EncodeRelativeOIDContent(oid asn1.OID) []byte {
	var out bytes.Buffer
	for _, arc := range oid {
		writeBase128(&out, arc)
	}
	return out.Bytes()
}

// DecodeRelativeOIDContent parses relative OID contents octets.
func DecodeRelativeOIDContent(content []byte) (asn1.OID, error) {
	d := &decoder{mode: ModeBER}
	var oid asn1.OID
	rest := content
	for len(rest) > 0 {
		arc, n, err := d.readBase128(rest, 0, nil)
		if err != nil {
			return nil, err
		}
		oid = append(oid, arc)
		rest = rest[n:]
	}
	return oid, nil
}
