package asset

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Key is a parsed object key of the shape
// <kind>/<stage>/<fragment>[_suffix][.ext].
type Key struct {
	Raw      string
	Kind     Kind
	Stage    Stage
	Fragment string
	Name     string
}

// ParseKey parses a raw object key. Keys outside the taxonomy return
// ErrUnrecognizedKey; callers treat those as no-ops.
func ParseKey(raw string) (Key, error) {
	parts := strings.SplitN(raw, "/", 3)
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("%w: %q", ErrUnrecognizedKey, raw)
	}

	kind, ok := kindFromPrefix(parts[0])
	if !ok {
		return Key{}, fmt.Errorf("%w: %q", ErrUnrecognizedKey, raw)
	}

	var stage Stage
	switch Stage(parts[1]) {
	case StageOriginals, StageProcessed:
		stage = Stage(parts[1])
	default:
		return Key{}, fmt.Errorf("%w: %q", ErrUnrecognizedKey, raw)
	}

	name := parts[2]
	if name == "" || strings.Contains(name, "/") {
		return Key{}, fmt.Errorf("%w: %q", ErrUnrecognizedKey, raw)
	}

	fragment := name
	if i := strings.IndexAny(name, "_."); i >= 0 {
		fragment = name[:i]
	}
	if fragment == "" {
		return Key{}, fmt.Errorf("%w: %q", ErrUnrecognizedKey, raw)
	}

	return Key{
		Raw:      raw,
		Kind:     kind,
		Stage:    stage,
		Fragment: fragment,
		Name:     name,
	}, nil
}

// ParseNotificationKey URL-decodes a key as delivered in object-storage
// notifications before parsing it.
func ParseNotificationKey(encoded string) (Key, error) {
	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %q: %v", ErrUnrecognizedKey, encoded, err)
	}
	return ParseKey(decoded)
}

// OriginalKey is the key the asset row was created with.
func (k Key) OriginalKey() string {
	return OriginalKey(k.Kind, k.Fragment)
}

// Ext returns the lower-cased extension including the dot, or "".
func (k Key) Ext() string {
	return strings.ToLower(path.Ext(k.Name))
}

func (k Key) String() string {
	return k.Raw
}

func OriginalKey(kind Kind, fragment string) string {
	return kind.Prefix() + "/" + string(StageOriginals) + "/" + fragment
}

// ProcessedPrefix is the destination prefix processors write outputs under.
func ProcessedPrefix(kind Kind, fragment string) string {
	return kind.Prefix() + "/" + string(StageProcessed) + "/" + fragment
}
