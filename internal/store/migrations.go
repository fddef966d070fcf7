package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS push_subscriptions (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	endpoint    TEXT NOT NULL,
	p256dh      TEXT NOT NULL DEFAULT '',
	auth        TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (endpoint, kind)
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_push_subscriptions_kind ON push_subscriptions(kind);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
