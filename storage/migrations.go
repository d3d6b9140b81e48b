package storage

type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of sqlite schema migrations.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       TEXT NOT NULL,
	PRIMARY KEY (collection, id)
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_documents_user
	ON documents(collection, json_extract(data, '$.userId'));

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
