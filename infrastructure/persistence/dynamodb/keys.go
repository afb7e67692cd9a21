package dynamodb

import (
	"fmt"
	"net/url"
	"strings"

	"commodities/domain/core/entities"
	"commodities/domain/readindex"
)

// Stored keys look like "type=Production?commodity=Copper?country=World total".
// Absent components are omitted. Only the characters that would break the
// key shape are percent-escaped, so plain names are stored verbatim.
const (
	keySeparator     = "?"
	componentType    = "type"
	componentComm    = "commodity"
	componentCountry = "country"

	versionSeparator = "#"
)

var keyEscaper = strings.NewReplacer("%", "%25", "?", "%3F", "=", "%3D", "#", "%23")

// EncodeKey renders a structured key as its storage string
func EncodeKey(k readindex.IndexKey) string {
	parts := []string{componentType + "=" + keyEscaper.Replace(string(k.Type))}
	if k.Commodity != "" {
		parts = append(parts, componentComm+"="+keyEscaper.Replace(k.Commodity))
	}
	if k.Country != "" {
		parts = append(parts, componentCountry+"="+keyEscaper.Replace(k.Country))
	}
	return strings.Join(parts, keySeparator)
}

// ParseKey is the inverse of EncodeKey
func ParseKey(s string) (readindex.IndexKey, error) {
	var k readindex.IndexKey
	for _, part := range strings.Split(s, keySeparator) {
		name, raw, ok := strings.Cut(part, "=")
		if !ok {
			return readindex.IndexKey{}, fmt.Errorf("malformed key component %q in %q", part, s)
		}
		value, err := url.PathUnescape(raw)
		if err != nil {
			return readindex.IndexKey{}, fmt.Errorf("malformed key value %q: %w", raw, err)
		}
		switch name {
		case componentType:
			k.Type = entities.FactType(value)
		case componentComm:
			k.Commodity = value
		case componentCountry:
			k.Country = value
		default:
			return readindex.IndexKey{}, fmt.Errorf("unknown key component %q in %q", name, s)
		}
	}
	if k.IsZero() {
		return readindex.IndexKey{}, fmt.Errorf("key %q has no type", s)
	}
	return k, nil
}

// versioned prefixes a storage key with the index version it belongs to
func versioned(version string, k readindex.IndexKey) string {
	return version + versionSeparator + EncodeKey(k)
}

// unversioned strips the version prefix from a stored partition key
func unversioned(pk string) (readindex.IndexKey, error) {
	_, encoded, ok := strings.Cut(pk, versionSeparator)
	if !ok {
		return readindex.IndexKey{}, fmt.Errorf("partition key %q has no version", pk)
	}
	return ParseKey(encoded)
}
