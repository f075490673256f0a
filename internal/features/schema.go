package features

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"

	"github.com/joseph-ayodele/invoice-extractor/constants"
)

// Schema is the fixed key set of every vector an Extractor produces. Models
// are bound to a schema Version; changing any key changes the version.
type Schema struct {
	Version string   `json:"version"`
	Keys    []string `json:"keys"`
}

const schemaPrefix = "fs1-"

// Position and statistics keys.
const (
	KeyPosX        = "pos.x"
	KeyPosY        = "pos.y"
	KeyPosW        = "pos.w"
	KeyPosH        = "pos.h"
	KeyPosRank     = "pos.rank"
	KeyPosPage     = "pos.page"
	KeyPosFontRel  = "pos.font_rel"
	KeyPosTop      = "pos.top_third"
	KeyPosBottom   = "pos.bottom_third"
	KeyPosRight    = "pos.right_half"
	KeyStatLength  = "stat.length"
	KeyStatTokens  = "stat.tokens"
	KeyStatDigits  = "stat.digit_ratio"
	KeyStatUpper   = "stat.upper_ratio"
	KeyStatAlpha   = "stat.alpha_ratio"
	KeyStatCurr    = "stat.has_currency"
	KeyStatNumeric = "stat.numeric_only"
)

var fixedKeys = []string{
	KeyPosX, KeyPosY, KeyPosW, KeyPosH, KeyPosRank, KeyPosPage, KeyPosFontRel,
	KeyPosTop, KeyPosBottom, KeyPosRight,
	KeyStatLength, KeyStatTokens, KeyStatDigits, KeyStatUpper, KeyStatAlpha,
	KeyStatCurr, KeyStatNumeric,
}

func RegexKey(pattern string) string { return "regex." + pattern }

func KeywordKey(f constants.FieldType) string { return "kw." + string(f) }

func PrevKeywordKey(f constants.FieldType) string { return "ctx.prev.kw." + string(f) }

func NextKeywordKey(f constants.FieldType) string { return "ctx.next.kw." + string(f) }

// BuildSchema assembles the key set for the given pattern names plus any
// extra group keys.
func BuildSchema(patternNames []string, extra ...string) Schema {
	keys := slices.Clone(fixedKeys)
	for _, n := range patternNames {
		keys = append(keys, RegexKey(n))
	}
	for _, f := range constants.ExtractableFields() {
		keys = append(keys, KeywordKey(f), PrevKeywordKey(f), NextKeywordKey(f))
	}
	keys = append(keys, extra...)
	slices.Sort(keys)
	keys = slices.Compact(keys)
	return Schema{Version: VersionOf(keys), Keys: keys}
}

// VersionOf hashes a sorted key list.
func VersionOf(sortedKeys []string) string {
	sum := sha256.Sum256([]byte(strings.Join(sortedKeys, "\n")))
	return schemaPrefix + hex.EncodeToString(sum[:])[:12]
}

// Has reports whether key is part of the schema.
func (s Schema) Has(key string) bool {
	_, found := slices.BinarySearch(s.Keys, key)
	return found
}
