package graph

// SQLite schema DDL constants

const schemaNodes = `
CREATE TABLE IF NOT EXISTS nodes (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT UNIQUE NOT NULL,
    type TEXT NOT NULL,
    properties TEXT NOT NULL DEFAULT '{}'
)`

const schemaRelationships = `
CREATE TABLE IF NOT EXISTS relationships (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT UNIQUE NOT NULL,
    type TEXT NOT NULL,
    start_id TEXT NOT NULL REFERENCES nodes(id),
    end_id TEXT NOT NULL REFERENCES nodes(id),
    properties TEXT NOT NULL DEFAULT '{}'
)`

// Index definitions
const indexNodesType = `CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(type)`
const indexRelsStart = `CREATE INDEX IF NOT EXISTS idx_relationships_start ON relationships(start_id, type)`
const indexRelsEnd = `CREATE INDEX IF NOT EXISTS idx_relationships_end ON relationships(end_id, type)`

// SQLite pragmas
const pragmaWAL = `PRAGMA journal_mode=WAL`
const pragmaFK = `PRAGMA foreign_keys=ON`
const pragmaBusyTimeout = `PRAGMA busy_timeout=5000`
const pragmaSynchronous = `PRAGMA synchronous=NORMAL`

// allSchemaStatements returns all schema DDL in order
func allSchemaStatements() []string {
	return []string{
		schemaNodes,
		schemaRelationships,
		indexNodesType,
		indexRelsStart,
		indexRelsEnd,
	}
}

// allPragmas returns all pragma statements
func allPragmas() []string {
	return []string{
		pragmaWAL,
		pragmaFK,
		pragmaBusyTimeout,
		pragmaSynchronous,
	}
}
