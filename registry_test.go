package recordcache

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	pr "github.com/unkn0wn-root/recordcache/provider"
)

func TestRegisterConfigErrors(t *testing.T) {
	attrs := func(kv ...any) map[string]AttrType {
		m := map[string]AttrType{}
		for i := 0; i < len(kv); i += 2 {
			m[kv[i].(string)] = kv[i+1].(AttrType)
		}
		return m
	}
	tests := []struct {
		name  string
		cfg   EntityConfig
		noSrc bool
		field string
	}{
		{"missing name", EntityConfig{Attributes: attrs("id", Integer)}, false, "Name"},
		{"missing source", EntityConfig{Name: "a", Attributes: attrs("id", Integer)}, true, ""},
		{"no attributes", EntityConfig{Name: "a"}, false, "Attributes"},
		{"unknown store", EntityConfig{Name: "a", Attributes: attrs("id", Integer), Store: "hot"}, false, "Store"},
		{"unknown identity", EntityConfig{Name: "a", Attributes: attrs("id", Integer), Identity: "uuid"}, false, "Identity"},
		{"unknown unique", EntityConfig{Name: "a", Attributes: attrs("id", Integer), Unique: []string{"email"}}, false, "Unique"},
		{"float unique", EntityConfig{Name: "a", Attributes: attrs("id", Integer, "score", Float), Unique: []string{"score"}}, false, "Unique"},
		{"index with full table", EntityConfig{Name: "a", Attributes: attrs("id", Integer, "team", Integer), Index: []string{"team"}, FullTable: true}, false, "Index"},
		{"index without identity", EntityConfig{Name: "a", Attributes: attrs("team", Integer), Index: []string{"team"}}, false, "Index"},
		{"bool index", EntityConfig{Name: "a", Attributes: attrs("id", Integer, "active", Bool), Index: []string{"active"}}, false, "Index"},
		{"float identity", EntityConfig{Name: "a", Attributes: attrs("id", Float)}, false, "Unique"},
		{"nothing to cache", EntityConfig{Name: "a", Attributes: attrs("name", String)}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newTestRegistry(t, nil)
			var src Source = newMemSource()
			if tt.noSrc {
				src = nil
			}
			_, err := reg.Register(tt.cfg, src)
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if ce.Field != tt.field {
				t.Fatalf("field = %q, want %q (%v)", ce.Field, tt.field, err)
			}
			if _, ok := reg.Model(tt.cfg.Name); ok && tt.cfg.Name != "" {
				t.Fatalf("failed registration left a model behind")
			}
		})
	}
}

func TestRegisterDuplicateEntity(t *testing.T) {
	reg := newTestRegistry(t, nil)
	mustRegister(t, reg, personConfig(), newMemSource())
	_, err := reg.Register(personConfig(), newMemSource())
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Entity != "person" {
		t.Fatalf("err = %v", err)
	}
}

func TestNewRegistryRejectsUnknownStatus(t *testing.T) {
	_, err := NewRegistry(Options{Status: Status(9)})
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Field != "Status" {
		t.Fatalf("err = %v", err)
	}
}

func TestRegistryLookups(t *testing.T) {
	reg := newTestRegistry(t, nil)
	mustRegister(t, reg, personConfig(), newMemSource())
	mustRegister(t, reg, countryConfig(), newMemSource())

	if diff := cmp.Diff([]string{"country", "person"}, reg.Entities()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	d, ok := reg.Dispatcher("person")
	if !ok || d.Entity() != "person" {
		t.Fatalf("Dispatcher lookup failed")
	}
	if _, ok := reg.Model("ghost"); ok {
		t.Fatalf("unknown entity found")
	}
	var kinds []string
	for _, s := range d.Strategies() {
		kinds = append(kinds, s.Attribute())
	}
	if diff := cmp.Diff([]string{"id", "email", "team"}, kinds); diff != "" {
		t.Fatalf("person strategies (-want +got):\n%s", diff)
	}
}

func TestNamedStoreAndKeyPrefix(t *testing.T) {
	ctx := context.Background()
	hot := newTestStore(t)
	reg := newTestRegistry(t, func(o *Options) { o.Stores = map[string]pr.Provider{"hot": hot} })
	cfg := personConfig()
	cfg.Store = "hot"
	cfg.KeyPrefix = "people"
	m := mustRegister(t, reg, cfg, newMemSource(people()...))

	_ = mustFind(t, ctx, m, NewQuery().Where("id", 1))
	if _, ok := reg.Versions().Current(ctx, "rc/people/1"); !ok {
		t.Fatalf("key prefix not applied")
	}
	if hot.Len() != 1 {
		t.Fatalf("named store holds %d entries, want 1", hot.Len())
	}
}

func TestRegistryCloseIsIdempotent(t *testing.T) {
	reg, err := NewRegistry(Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := reg.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestTrackVersionsResetsEverything(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t, func(o *Options) { o.TrackVersions = true })
	src := newMemSource(people()...)
	m := mustRegister(t, reg, personConfig(), src)

	_ = mustFind(t, ctx, m, NewQuery().Where("id", 1, 2))
	if err := reg.Versions().Reset(ctx); err != nil {
		t.Fatal(err)
	}
	_ = mustFind(t, ctx, m, NewQuery().Where("id", 1, 2))
	if src.findBy.Load() != 2 {
		t.Fatalf("Reset should force a reload, FindBy calls = %d", src.findBy.Load())
	}
}

func TestStatsCountHitsAndMisses(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t, nil)
	m := mustRegister(t, reg, personConfig(), newMemSource(people()...))

	_ = mustFind(t, ctx, m, NewQuery().Where("id", 1))
	if len(reg.Stats().All()) != 0 {
		t.Fatalf("stats collected while inactive")
	}
	reg.Stats().Start()
	_ = mustFind(t, ctx, m, NewQuery().Where("id", 1, 2))

	c := reg.Stats().Counter("person", "id")
	if c.Calls() != 1 || c.Hits() != 1 || c.Misses() != 1 {
		t.Fatalf("calls=%d hits=%d misses=%d", c.Calls(), c.Hits(), c.Misses())
	}
	if c.String() != "50.0% (1/2)" {
		t.Fatalf("String = %s", c.String())
	}
}
