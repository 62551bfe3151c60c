package lexer

// keywords maps reserved words to their token kinds. ASN.1 reserved words
// are case sensitive (all uppercase per X.680 §12.38).
var keywords = map[string]TokenKind{
	"ABSENT":         TokKwAbsent,
	"ALL":            TokKwAll,
	"ANY":            TokKwAny,
	"APPLICATION":    TokKwApplication,
	"AUTOMATIC":      TokKwAutomatic,
	"BEGIN":          TokKwBegin,
	"BIT":            TokKwBit,
	"BOOLEAN":        TokKwBoolean,
	"BY":             TokKwBy,
	"CHOICE":         TokKwChoice,
	"COMPONENT":      TokKwComponent,
	"COMPONENTS":     TokKwComponents,
	"CONTAINING":     TokKwContaining,
	"DEFAULT":        TokKwDefault,
	"DEFINED":        TokKwDefined,
	"DEFINITIONS":    TokKwDefinitions,
	"EMBEDDED":       TokKwEmbedded,
	"ENCODED":        TokKwEncoded,
	"END":            TokKwEnd,
	"ENUMERATED":     TokKwEnumerated,
	"EXCEPT":         TokKwExcept,
	"EXPLICIT":       TokKwExplicit,
	"EXPORTS":        TokKwExports,
	"EXTENSIBILITY":  TokKwExtensibility,
	"EXTERNAL":       TokKwExternal,
	"FALSE":          TokKwFalse,
	"FROM":           TokKwFrom,
	"IDENTIFIER":     TokKwIdentifier,
	"IMPLICIT":       TokKwImplicit,
	"IMPLIED":        TokKwImplied,
	"IMPORTS":        TokKwImports,
	"INCLUDES":       TokKwIncludes,
	"INTERSECTION":   TokKwIntersection,
	"INTEGER":        TokKwInteger,
	"MAX":            TokKwMax,
	"MIN":            TokKwMin,
	"MINUS-INFINITY": TokKwMinusInfinity,
	"NOT-A-NUMBER":   TokKwNotANumber,
	"NULL":           TokKwNull,
	"OBJECT":         TokKwObject,
	"OCTET":          TokKwOctet,
	"OF":             TokKwOf,
	"OPTIONAL":       TokKwOptional,
	"PDV":            TokKwPdv,
	"PLUS-INFINITY":  TokKwPlusInfinity,
	"PRESENT":        TokKwPresent,
	"PRIVATE":        TokKwPrivate,
	"REAL":           TokKwReal,
	"RELATIVE-OID":   TokKwRelativeOID,
	"SEQUENCE":       TokKwSequence,
	"SET":            TokKwSet,
	"SIZE":           TokKwSize,
	"STRING":         TokKwString,
	"TAGS":           TokKwTags,
	"TRUE":           TokKwTrue,
	"UNION":          TokKwUnion,
	"UNIVERSAL":      TokKwUniversal,
	"WITH":           TokKwWith,
}

// tokenNames gives a human-readable name per kind for diagnostics.
var tokenNames = map[TokenKind]string{
	TokError:          "error",
	TokEOF:            "end of input",
	TokUpperIdent:     "type reference",
	TokLowerIdent:     "identifier",
	TokNumber:         "number",
	TokRealNumber:     "real number",
	TokCString:        "character string",
	TokHString:        "hstring",
	TokBString:        "bstring",
	TokLBrace:         "'{'",
	TokRBrace:         "'}'",
	TokLBracket:       "'['",
	TokRBracket:       "']'",
	TokLDoubleBracket: "'[['",
	TokRDoubleBracket: "']]'",
	TokLParen:         "'('",
	TokRParen:         "')'",
	TokComma:          "','",
	TokDot:            "'.'",
	TokDotDot:         "'..'",
	TokEllipsis:       "'...'",
	TokSemicolon:      "';'",
	TokColon:          "':'",
	TokAssign:         "'::='",
	TokPipe:           "'|'",
	TokCaret:          "'^'",
	TokExclamation:    "'!'",
	TokLess:           "'<'",
	TokGreater:        "'>'",
	TokAt:             "'@'",
	TokMinus:          "'-'",
}

// String returns a human-readable token kind name.
func (k TokenKind) String() string {
	if name, ok := tokenNames[k]; ok {
		return name
	}
	for word, kind := range keywords {
		if kind == k {
			return "'" + word + "'"
		}
	}
	return "token"
}
