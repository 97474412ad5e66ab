package config

// Sample is the starter file written by `rcctl init`.
const Sample = `{
	// Shared version store. Every worker must point at the same one.
	"versions": {"kind": "redis", "addr": "localhost:6379", "prefix": "rcv:"},

	// Default record store; per-process memory is fine for small fleets.
	"records": {"kind": "memory"},

	"stores": {
		"hot": {"kind": "ristretto", "num_counters": 100000, "max_cost": 67108864},
	},

	"codec": "msgpack",
	"version_ttl": "24h",
	"version_jitter": 0.1,
	"record_ttl": "10m",

	"entities": [
		{
			"name": "person",
			"attributes": {"id": "integer", "email": "string", "team": "integer", "name": "string"},
			"unique": ["email"],
			"index": ["team"],
			"request_cache": true,
			"store": "hot",
		},
		{
			"name": "country",
			"attributes": {"id": "integer", "code": "string", "name": "string"},
			"full_table": true,
		},
	],
}
`
