package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/text/language"

	"github.com/unkn0wn-root/recordcache"
)

var (
	storeKinds = []any{"memory", "redis", "bigcache", "ristretto", "sturdyc"}
	codecs     = []any{"", "msgpack", "cbor", "json", "structpb"}
	statuses   = []any{"", "enabled", "no_fetch", "disabled"}
)

// Validate checks f and reports the first problem as a
// *recordcache.ConfigError naming the offending field.
func Validate(f *File) error {
	err := f.Validate()
	if err == nil {
		return nil
	}
	var ve validation.Errors
	if !errors.As(err, &ve) {
		return &recordcache.ConfigError{Message: err.Error()}
	}
	field, msg := firstError("", ve)
	return &recordcache.ConfigError{Field: field, Message: msg}
}

// firstError walks nested validation.Errors in key order.
func firstError(prefix string, ve validation.Errors) (string, string) {
	keys := make([]string, 0, len(ve))
	for k := range ve {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	k := keys[0]
	path := k
	if prefix != "" {
		path = prefix + "." + k
	}
	var nested validation.Errors
	if errors.As(ve[k], &nested) && len(nested) > 0 {
		return firstError(path, nested)
	}
	return path, ve[k].Error()
}

func (f File) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Versions),
		validation.Field(&f.Records),
		validation.Field(&f.Stores),
		validation.Field(&f.Codec, validation.In(codecs...)),
		validation.Field(&f.Collation, validation.By(collation)),
		validation.Field(&f.Status, validation.In(statuses...)),
		validation.Field(&f.VersionJitter, validation.Min(0.0), validation.Max(1.0).Exclusive()),
		validation.Field(&f.EntropyBits, validation.Max(uint(16))),
		validation.Field(&f.KeyMaxLen, validation.Min(0)),
		validation.Field(&f.Entities, validation.Required, validation.By(f.entityRefs)),
	)
}

// entityRefs checks names are unique and stores exist.
func (f File) entityRefs(value any) error {
	seen := map[string]bool{}
	for _, e := range f.Entities {
		if seen[e.Name] {
			return fmt.Errorf("entity %q declared twice", e.Name)
		}
		seen[e.Name] = true
		if e.Store != "" {
			if _, ok := f.Stores[e.Store]; !ok {
				return fmt.Errorf("entity %q uses unknown store %q", e.Name, e.Store)
			}
		}
	}
	return nil
}

func collation(value any) error {
	s, _ := value.(string)
	if s == "" || strings.EqualFold(s, "fold") {
		return nil
	}
	if _, err := language.Parse(s); err != nil {
		return errors.New("must be \"fold\" or a BCP 47 language tag")
	}
	return nil
}

func (s StoreConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Kind, validation.Required, validation.In(storeKinds...)),
		validation.Field(&s.Addr, validation.When(s.Kind == "redis", validation.Required)),
		validation.Field(&s.DB, validation.Min(0)),
		validation.Field(&s.LifeWindow, validation.When(s.Kind == "bigcache", validation.Required)),
		validation.Field(&s.NumCounters, validation.When(s.Kind == "ristretto", validation.Required, validation.Min(int64(1)))),
		validation.Field(&s.MaxCost, validation.When(s.Kind == "ristretto", validation.Required, validation.Min(int64(1)))),
		validation.Field(&s.Capacity, validation.Min(0)),
		validation.Field(&s.Shards, validation.Min(0)),
	)
}

func (e Entity) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Name, validation.Required),
		validation.Field(&e.Attributes, validation.Required, validation.By(attrTypes)),
	)
}

func attrTypes(value any) error {
	attrs, _ := value.(map[string]string)
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := recordcache.ParseAttrType(attrs[name]); !ok {
			return fmt.Errorf("attribute %q has unknown type %q", name, attrs[name])
		}
	}
	return nil
}
