package recordcache

import "context"

// Source is the system of record. The cache queries it directly on misses
// and when no strategy can answer a query.
type Source interface {
	// FindBy returns the records whose attr equals one of values.
	FindBy(ctx context.Context, attr string, values []any) ([]Record, error)
	// IDsBy returns the identity values of the records whose attr equals
	// value, without materialising the records.
	IDsBy(ctx context.Context, identity, attr string, value any) ([]any, error)
	// All returns every record of the entity.
	All(ctx context.Context) ([]Record, error)
	// Select answers an arbitrary query uncached.
	Select(ctx context.Context, q *Query) ([]Record, error)
}
