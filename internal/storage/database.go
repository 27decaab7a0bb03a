package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// dsnParams are applied to every pooled connection. Transactions begin with
// BEGIN IMMEDIATE so concurrent writers queue on the busy timeout instead of
// failing at commit.
var dsnParams = []string{
	"_foreign_keys=on",
	"_busy_timeout=5000",
	"_journal_mode=WAL",
	"_txlock=immediate",
}

// New opens a SQLite database connection at the given path.
// It enables foreign keys and WAL mode and sets connection pool settings.
func New(path string) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", path+sep+strings.Join(dsnParams, "&"))
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL UNIQUE,
		file_path TEXT NOT NULL UNIQUE,
		file_hash TEXT NOT NULL DEFAULT '',
		word_count INTEGER NOT NULL DEFAULT 0,
		reading_time REAL NOT NULL DEFAULT 0,
		rating REAL,
		epigraph TEXT NOT NULL DEFAULT '',
		epigraph_attribution TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		exclude_entry_date INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		deleted_at DATETIME,
		deleted_by TEXT,
		deletion_reason TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS cities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);`,
	`CREATE TABLE IF NOT EXISTS locations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		city_id INTEGER NOT NULL,
		FOREIGN KEY (city_id) REFERENCES cities(id),
		UNIQUE (name, city_id)
	);`,
	`CREATE TABLE IF NOT EXISTS persons (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		lastname TEXT NOT NULL DEFAULT '',
		disambiguator TEXT NOT NULL DEFAULT '',
		full_name TEXT NOT NULL DEFAULT '',
		alias TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		deleted_at DATETIME,
		deleted_by TEXT,
		deletion_reason TEXT
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS persons_alias_active
		ON persons (alias) WHERE alias IS NOT NULL AND deleted_at IS NULL;`,
	`CREATE UNIQUE INDEX IF NOT EXISTS persons_key_active
		ON persons (name, lastname, disambiguator) WHERE deleted_at IS NULL;`,
	namedTable("events"),
	namedTable("tags"),
	namedTable("arcs"),
	namedTable("themes"),
	namedTable("motifs"),
	`CREATE TABLE IF NOT EXISTS reference_sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		author TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT ''
	);`,
	linkTable(EntryPeople, "entries", "persons"),
	linkTable(EntryCities, "entries", "cities"),
	linkTable(EntryLocations, "entries", "locations"),
	linkTable(EntryEvents, "entries", "events"),
	linkTable(EntryTags, "entries", "tags"),
	linkTable(EntryArcs, "entries", "arcs"),
	`CREATE TABLE IF NOT EXISTS scenes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entry_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (entry_id) REFERENCES entries(id) ON DELETE CASCADE,
		UNIQUE (entry_id, name)
	);`,
	`CREATE TABLE IF NOT EXISTS scene_dates (
		scene_id INTEGER NOT NULL,
		date TEXT NOT NULL,
		FOREIGN KEY (scene_id) REFERENCES scenes(id) ON DELETE CASCADE,
		PRIMARY KEY (scene_id, date)
	);`,
	linkTable(ScenePeople, "scenes", "persons"),
	linkTable(SceneLocations, "scenes", "locations"),
	linkTable(EventScenes, "events", "scenes"),
	`CREATE TABLE IF NOT EXISTS threads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entry_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		from_date TEXT NOT NULL DEFAULT '',
		to_date TEXT NOT NULL DEFAULT '',
		referenced_entry TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (entry_id) REFERENCES entries(id) ON DELETE CASCADE,
		UNIQUE (entry_id, name)
	);`,
	linkTable(ThreadPeople, "threads", "persons"),
	linkTable(ThreadLocations, "threads", "locations"),
	`CREATE TABLE IF NOT EXISTS moments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entry_id INTEGER NOT NULL,
		date TEXT NOT NULL,
		context TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (entry_id) REFERENCES entries(id) ON DELETE CASCADE,
		UNIQUE (entry_id, date)
	);`,
	linkTable(MomentPeople, "moments", "persons"),
	linkTable(MomentLocations, "moments", "locations"),
	linkTable(MomentEvents, "moments", "events"),
	`CREATE TABLE IF NOT EXISTS entry_references (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entry_id INTEGER NOT NULL,
		source_id INTEGER,
		content TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		mode TEXT NOT NULL,
		speaker TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (entry_id) REFERENCES entries(id) ON DELETE CASCADE,
		FOREIGN KEY (source_id) REFERENCES reference_sources(id)
	);`,
	`CREATE TABLE IF NOT EXISTS poems (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		deleted_at DATETIME,
		deleted_by TEXT,
		deletion_reason TEXT
	);`,
	`CREATE INDEX IF NOT EXISTS poems_title ON poems (title);`,
	`CREATE TABLE IF NOT EXISTS poem_versions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		poem_id INTEGER NOT NULL,
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		revision_date TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		entry_id INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (poem_id) REFERENCES poems(id) ON DELETE CASCADE,
		FOREIGN KEY (entry_id) REFERENCES entries(id) ON DELETE SET NULL,
		UNIQUE (poem_id, content_hash)
	);`,
	linkTable(EntryPoemVersions, "entries", "poem_versions"),
	instanceTable("theme_instances", "themes", "theme_id"),
	instanceTable("motif_instances", "motifs", "motif_id"),
	`CREATE TABLE IF NOT EXISTS manuscript_entries (
		entry_id INTEGER PRIMARY KEY,
		status TEXT NOT NULL,
		edited INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (entry_id) REFERENCES entries(id) ON DELETE CASCADE
	);`,
	linkTable(ManuscriptThemes, "manuscript_entries", "themes"),
	`CREATE TABLE IF NOT EXISTS association_tombstones (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		table_name TEXT NOT NULL,
		left_id INTEGER NOT NULL,
		right_id INTEGER NOT NULL,
		removed_at DATETIME NOT NULL,
		removed_by TEXT NOT NULL,
		sync_source TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		expires_at DATETIME,
		UNIQUE (table_name, left_id, right_id)
	);`,
}

func namedTable(name string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);`, name)
}

func linkTable(rel Relation, ownerTable, memberTable string) string {
	ownerKey := "id"
	if ownerTable == "manuscript_entries" {
		ownerKey = "entry_id"
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
		%[2]s INTEGER NOT NULL,
		%[3]s INTEGER NOT NULL,
		FOREIGN KEY (%[2]s) REFERENCES %[4]s(%[6]s) ON DELETE CASCADE,
		FOREIGN KEY (%[3]s) REFERENCES %[5]s(id) ON DELETE CASCADE,
		PRIMARY KEY (%[2]s, %[3]s)
	);`, rel.Table, rel.OwnerColumn, rel.MemberColumn, ownerTable, memberTable, ownerKey)
}

func instanceTable(table, vocab, column string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entry_id INTEGER NOT NULL,
		%[3]s INTEGER NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (entry_id) REFERENCES entries(id) ON DELETE CASCADE,
		FOREIGN KEY (%[3]s) REFERENCES %[2]s(id),
		UNIQUE (entry_id, %[3]s)
	);`, table, vocab, column)
}

// Migrate runs database migrations to create the required tables.
// It is idempotent and can be run multiple times safely.
func Migrate(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}
