// Package trace records the retirement and redirect stream of a
// scheduling core into a SQLite database for post-run analysis.
package trace

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/structs"

	// Recorders write through SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// A Recorder buffers rows and writes them to a backing store in batches.
type Recorder interface {
	// CreateTable creates a table shaped after the sample entry's fields.
	CreateTable(tableName string, sampleEntry any)

	// InsertData buffers one entry for a table that already exists.
	InsertData(tableName string, entry any)

	// ListTables returns the names of all created tables.
	ListTables() []string

	// Flush writes all buffered entries to the database.
	Flush()
}

// NewRecorder creates a Recorder backed by a SQLite file at path. An
// empty path picks a unique name. The recorder flushes at exit.
func NewRecorder(path string) Recorder {
	r := &sqliteRecorder{
		path:      path,
		batchSize: 100000,
		tables:    make(map[string]*table),
	}

	r.open()

	atexit.Register(func() { r.Flush() })

	return r
}

// NewRecorderWithDB creates a Recorder on an already-open database.
func NewRecorderWithDB(db *sql.DB) Recorder {
	r := &sqliteRecorder{
		DB:        db,
		batchSize: 100000,
		tables:    make(map[string]*table),
	}

	atexit.Register(func() { r.Flush() })

	return r
}

type table struct {
	fields  []string
	pending []any
}

type sqliteRecorder struct {
	*sql.DB

	path      string
	batchSize int
	tables    map[string]*table
	count     int
}

func (r *sqliteRecorder) open() {
	if r.path == "" {
		r.path = "tomasim_trace_" + xid.New().String()
	}

	filename := r.path + ".sqlite3"

	if _, err := os.Stat(filename); err == nil {
		panic(fmt.Errorf("file %s already exists", filename))
	}

	fmt.Fprintf(os.Stderr, "Trace database: %s\n", filename)

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		panic(err)
	}

	r.DB = db
}

func (r *sqliteRecorder) CreateTable(tableName string, sampleEntry any) {
	fields := structs.Names(sampleEntry)
	for _, f := range structs.Fields(sampleEntry) {
		mustBeScalar(f)
	}

	query := "CREATE TABLE " + tableName +
		" (\n\t" + strings.Join(fields, ",\n\t") + "\n);"
	r.mustExecute(query)

	r.tables[tableName] = &table{fields: fields}
}

func (r *sqliteRecorder) InsertData(tableName string, entry any) {
	t, ok := r.tables[tableName]
	if !ok {
		panic(fmt.Errorf("table %s does not exist", tableName))
	}

	t.pending = append(t.pending, entry)

	r.count++
	if r.count >= r.batchSize {
		r.Flush()
	}
}

func (r *sqliteRecorder) ListTables() []string {
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}

	return names
}

func (r *sqliteRecorder) Flush() {
	if r.count == 0 {
		return
	}

	r.mustExecute("BEGIN TRANSACTION")
	defer r.mustExecute("COMMIT TRANSACTION")

	for name, t := range r.tables {
		if len(t.pending) == 0 {
			continue
		}

		stmt := r.prepareInsert(name, t)
		for _, entry := range t.pending {
			if _, err := stmt.Exec(structs.Values(entry)...); err != nil {
				panic(err)
			}
		}
		stmt.Close()

		t.pending = nil
	}

	r.count = 0
}

func (r *sqliteRecorder) prepareInsert(name string, t *table) *sql.Stmt {
	marks := make([]string, len(t.fields))
	for i := range marks {
		marks[i] = "?"
	}

	query := "INSERT INTO " + name +
		" VALUES (" + strings.Join(marks, ", ") + ")"

	stmt, err := r.Prepare(query)
	if err != nil {
		panic(err)
	}

	return stmt
}

func (r *sqliteRecorder) mustExecute(query string) sql.Result {
	res, err := r.Exec(query)
	if err != nil {
		fmt.Printf("Failed to execute: %s\n", query)
		panic(err)
	}

	return res
}

func mustBeScalar(f *structs.Field) {
	switch f.Value().(type) {
	case bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		string:
	default:
		panic(fmt.Errorf("field %s is not a scalar", f.Name()))
	}
}
