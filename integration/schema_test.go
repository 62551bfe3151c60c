// Package integration exercises the public Compile/Encode/Decode surface
// across codecs.
package integration

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/golangasn1/goasn1"
)

const pduSource = `PDU DEFINITIONS AUTOMATIC TAGS ::= BEGIN

	Priority ::= ENUMERATED { low, normal, high }

	Header ::= SEQUENCE {
		id       INTEGER (0..65535),
		priority Priority DEFAULT normal,
		flags    BIT STRING (SIZE (8)) OPTIONAL
	}

	Payload ::= CHOICE {
		text  UTF8String,
		blob  OCTET STRING,
		empty NULL
	}

	Message ::= SEQUENCE {
		header  Header,
		payload Payload,
		tags    SEQUENCE OF IA5String OPTIONAL
	}

END`

func compileWith(t *testing.T, codec goasn1.Codec) *goasn1.Schema {
	t.Helper()
	schema, err := goasn1.Compile(
		[]goasn1.Source{goasn1.StringSource("pdu.asn", pduSource)},
		goasn1.WithCodec(codec),
	)
	require.NoError(t, err)
	return schema
}

func sampleMessage() map[string]any {
	return map[string]any{
		"header": map[string]any{
			"id":       int64(42),
			"priority": "high",
			"flags":    goasn1.BitString{Bytes: []byte{0xA5}, BitLength: 8},
		},
		"payload": goasn1.Choice{Alt: "text", Value: "hello"},
		"tags":    []any{"a", "b"},
	}
}

func TestRoundTripAllDecodableCodecs(t *testing.T) {
	codecs := []goasn1.Codec{
		goasn1.BER, goasn1.CER, goasn1.DER,
		goasn1.OER, goasn1.PER, goasn1.UPER,
		goasn1.JER, goasn1.XER,
	}
	for _, codec := range codecs {
		t.Run(codec.String(), func(t *testing.T) {
			schema := compileWith(t, codec)
			value := sampleMessage()

			encoded, err := schema.Encode("Message", value)
			require.NoError(t, err)
			require.NotEmpty(t, encoded)

			decoded, err := schema.Decode("Message", encoded)
			require.NoError(t, err)

			refreshed, err := schema.Refresh("Message", value)
			require.NoError(t, err)
			require.Equal(t, refreshed, decoded)
		})
	}
}

func TestDefaultsRefreshAndRoundTrip(t *testing.T) {
	schema := compileWith(t, goasn1.DER)
	value := map[string]any{
		"header":  map[string]any{"id": int64(1)},
		"payload": goasn1.Choice{Alt: "empty", Value: nil},
	}

	refreshed, err := schema.Refresh("Message", value)
	require.NoError(t, err)
	header := refreshed.(map[string]any)["header"].(map[string]any)
	require.Equal(t, "normal", header["priority"])

	encoded, err := schema.Encode("Message", value)
	require.NoError(t, err)
	decoded, err := schema.Decode("Message", encoded)
	require.NoError(t, err)
	require.Equal(t, refreshed, decoded)
}

func TestDERCanonicality(t *testing.T) {
	schema := compileWith(t, goasn1.DER)
	value := sampleMessage()

	first, err := schema.Encode("Message", value)
	require.NoError(t, err)
	second, err := schema.Encode("Message", value)
	require.NoError(t, err)
	require.Equal(t, first, second)

	// Re-encoding a decoded value reproduces the bytes.
	decoded, err := schema.Decode("Message", first)
	require.NoError(t, err)
	again, err := schema.Encode("Message", decoded)
	require.NoError(t, err)
	require.Equal(t, first, again)
}

func TestDecodeWithLength(t *testing.T) {
	schema := compileWith(t, goasn1.DER)
	encoded, err := schema.Encode("Header", map[string]any{"id": int64(7)})
	require.NoError(t, err)

	withTrailer := append(append([]byte{}, encoded...), 0xDE, 0xAD)

	_, err = schema.Decode("Header", withTrailer)
	require.Error(t, err, "plain Decode rejects trailing bytes")

	v, n, err := schema.DecodeWithLength("Header", withTrailer)
	require.NoError(t, err)
	require.Equal(t, len(encoded), n)
	require.Equal(t, int64(7), v.(map[string]any)["id"])
}

func TestConstraintViolationSurface(t *testing.T) {
	schema := compileWith(t, goasn1.UPER)
	_, err := schema.Encode("Header", map[string]any{"id": int64(100000)})
	require.Error(t, err)
	var violation *goasn1.ConstraintViolation
	require.ErrorAs(t, err, &violation)
}

func TestSyntaxErrorSurface(t *testing.T) {
	_, err := goasn1.Compile([]goasn1.Source{
		goasn1.StringSource("bad.asn", "M DEFINITIONS ::= BEGIN T ::= SEQUENCE { a } END"),
	})
	require.Error(t, err)
	var syntaxErr *goasn1.SyntaxError
	require.ErrorAs(t, err, &syntaxErr)
	require.Equal(t, "bad.asn", syntaxErr.File)
	require.Greater(t, syntaxErr.Line, 0)
}

func TestResolveErrorSurface(t *testing.T) {
	_, err := goasn1.Compile([]goasn1.Source{
		goasn1.StringSource("bad.asn", "M DEFINITIONS ::= BEGIN T ::= Missing END"),
	})
	require.Error(t, err)
	var resolveErr *goasn1.ResolveError
	require.ErrorAs(t, err, &resolveErr)
}

func TestImportAcrossSources(t *testing.T) {
	schema, err := goasn1.Compile([]goasn1.Source{
		goasn1.StringSource("a.asn", `A DEFINITIONS ::= BEGIN
			IMPORTS Word FROM B;
			Pair ::= SEQUENCE { first Word, second Word }
		END`),
		goasn1.StringSource("b.asn", `B DEFINITIONS ::= BEGIN
			Word ::= IA5String (SIZE (1..8))
		END`),
	}, goasn1.WithCodec(goasn1.DER))
	require.NoError(t, err)

	value := map[string]any{"first": "hi", "second": "there"}
	encoded, err := schema.Encode("Pair", value)
	require.NoError(t, err)
	decoded, err := schema.Decode("Pair", encoded)
	require.NoError(t, err)
	require.Equal(t, value, decoded)
}

func TestImportCycleIsWarning(t *testing.T) {
	schema, err := goasn1.Compile([]goasn1.Source{
		goasn1.StringSource("a.asn", `A DEFINITIONS ::= BEGIN
			IMPORTS BType FROM B;
			AType ::= SEQUENCE { b BType OPTIONAL }
		END`),
		goasn1.StringSource("b.asn", `B DEFINITIONS ::= BEGIN
			IMPORTS AType FROM A;
			BType ::= SEQUENCE { a AType OPTIONAL }
		END`),
	}, goasn1.WithCodec(goasn1.DER))
	require.NoError(t, err, "import cycles are warnings, not errors")
	require.NotEmpty(t, schema.Warnings())
}

func TestParameterizedTypesOnTheWire(t *testing.T) {
	source := `M DEFINITIONS ::= BEGIN
		Wrapper { Body } ::= SEQUENCE { body Body }
		IntWrapper ::= Wrapper { INTEGER }
		Hand ::= SEQUENCE { body INTEGER }
	END`
	schema, err := goasn1.Compile(
		[]goasn1.Source{goasn1.StringSource("m.asn", source)},
		goasn1.WithCodec(goasn1.DER))
	require.NoError(t, err)

	value := map[string]any{"body": int64(1)}
	viaTemplate, err := schema.Encode("IntWrapper", value)
	require.NoError(t, err)
	viaHand, err := schema.Encode("Hand", value)
	require.NoError(t, err)
	require.Equal(t, viaHand, viaTemplate)
}

func TestRecursiveTypeDepth(t *testing.T) {
	source := `M DEFINITIONS ::= BEGIN
		Sequence12 ::= SEQUENCE { a SEQUENCE OF Sequence12 OPTIONAL }
	END`
	for _, codec := range []goasn1.Codec{goasn1.DER, goasn1.UPER, goasn1.OER} {
		schema, err := goasn1.Compile(
			[]goasn1.Source{goasn1.StringSource("m.asn", source)},
			goasn1.WithCodec(codec))
		require.NoError(t, err)

		// Build 40 levels of nesting.
		value := map[string]any{}
		for i := 0; i < 40; i++ {
			value = map[string]any{"a": []any{value}}
		}

		encoded, err := schema.Encode("Sequence12", value)
		require.NoError(t, err, codec.String())
		decoded, err := schema.Decode("Sequence12", encoded)
		require.NoError(t, err, codec.String())

		again, err := schema.Encode("Sequence12", decoded)
		require.NoError(t, err, codec.String())
		require.Equal(t, encoded, again, codec.String())
	}
}

func TestGSEREncodeOnly(t *testing.T) {
	schema := compileWith(t, goasn1.GSER)
	out, err := schema.Encode("Header", map[string]any{"id": int64(7)})
	require.NoError(t, err)
	require.Contains(t, string(out), "id 7")

	_, err = schema.Decode("Header", out)
	require.Error(t, err, "GSER is encode-only")
}

func TestNumericEnumsJER(t *testing.T) {
	schema, err := goasn1.Compile(
		[]goasn1.Source{goasn1.StringSource("pdu.asn", pduSource)},
		goasn1.WithCodec(goasn1.JER),
		goasn1.WithNumericEnums(true),
	)
	require.NoError(t, err)

	encoded, err := schema.Encode("Header", map[string]any{
		"id": int64(1), "priority": "high",
	})
	require.NoError(t, err)
	require.Contains(t, string(encoded), `"priority":2`)
}
