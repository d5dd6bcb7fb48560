// Package datarecording stores router events in a SQLite database so that
// they can be inspected after a run.
package datarecording

import (
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/fatih/structs"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// DefaultBatchSize is the number of buffered entries that triggers a flush.
const DefaultBatchSize = 4096

// DataRecorder is a backend that can record and store data.
type DataRecorder interface {
	// CreateTable creates a table whose columns are the fields of
	// sampleEntry.
	CreateTable(tableName string, sampleEntry any) error

	// InsertData buffers an entry of a table that already exists.
	InsertData(tableName string, entry any) error

	// ListTables returns the names of all tables, sorted.
	ListTables() []string

	// Flush writes all the buffered entries into the database.
	Flush() error

	// Close flushes and closes the database.
	Close() error
}

// New creates a DataRecorder that writes to path.sqlite3. An empty path
// picks a unique name. The file must not exist. Buffered entries are flushed
// when the program exits through atexit.
func New(path string) (DataRecorder, error) {
	if path == "" {
		path = "bqs_recording_" + xid.New().String()
	}

	filename := path + ".sqlite3"

	if _, err := os.Stat(filename); err == nil {
		return nil, fmt.Errorf("file %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}

	w := newWriter(db)
	w.filename = filename

	atexit.Register(func() { _ = w.Flush() })

	return w, nil
}

// NewWithDB creates a DataRecorder that writes to an open database.
func NewWithDB(db *sql.DB) DataRecorder {
	return newWriter(db)
}

type table struct {
	structType reflect.Type
	entries    []any
}

// sqliteWriter is the writer that writes data into a SQLite database.
type sqliteWriter struct {
	mu sync.Mutex
	db *sql.DB

	filename   string
	tables     map[string]*table
	batchSize  int
	entryCount int
	closed     bool
}

func newWriter(db *sql.DB) *sqliteWriter {
	return &sqliteWriter{
		db:        db,
		tables:    make(map[string]*table),
		batchSize: DefaultBatchSize,
	}
}

func isAllowedKind(kind reflect.Kind) bool {
	switch kind {
	case
		reflect.Bool,
		reflect.Int,
		reflect.Int8,
		reflect.Int16,
		reflect.Int32,
		reflect.Int64,
		reflect.Uint,
		reflect.Uint8,
		reflect.Uint16,
		reflect.Uint32,
		reflect.Uint64,
		reflect.Float32,
		reflect.Float64,
		reflect.String:
		return true
	default:
		return false
	}
}

func validTableName(name string) bool {
	if name == "" {
		return false
	}

	for i, c := range name {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}

	return true
}

func checkStructFields(entry any) (reflect.Type, error) {
	t := reflect.TypeOf(entry)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entry %T is not a struct", entry)
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if !field.IsExported() || !isAllowedKind(field.Type.Kind()) {
			return nil, fmt.Errorf("field %s of %s cannot be recorded",
				field.Name, t.Name())
		}
	}

	return t, nil
}

func (w *sqliteWriter) CreateTable(tableName string, sampleEntry any) error {
	if !validTableName(tableName) {
		return fmt.Errorf("invalid table name %q", tableName)
	}

	t, err := checkStructFields(sampleEntry)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, found := w.tables[tableName]; found {
		return fmt.Errorf("table %s already exists", tableName)
	}

	fields := strings.Join(structs.Names(sampleEntry), ", \n\t")
	query := "CREATE TABLE " + tableName + " (\n\t" + fields + "\n);"

	if _, err := w.db.Exec(query); err != nil {
		return fmt.Errorf("create table %s: %w", tableName, err)
	}

	w.tables[tableName] = &table{structType: t}

	return nil
}

func (w *sqliteWriter) InsertData(tableName string, entry any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("insert into %s: recorder is closed", tableName)
	}

	t, found := w.tables[tableName]
	if !found {
		return fmt.Errorf("table %s does not exist", tableName)
	}

	if reflect.TypeOf(entry) != t.structType {
		return fmt.Errorf("entry %T does not match table %s", entry, tableName)
	}

	t.entries = append(t.entries, entry)

	w.entryCount++
	if w.entryCount >= w.batchSize {
		return w.flushLocked()
	}

	return nil
}

func (w *sqliteWriter) ListTables() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	names := make([]string, 0, len(w.tables))
	for name := range w.tables {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

func (w *sqliteWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.flushLocked()
}

func (w *sqliteWriter) flushLocked() error {
	if w.entryCount == 0 || w.closed {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	for name, t := range w.tables {
		if len(t.entries) == 0 {
			continue
		}

		if err := insertAll(tx, name, t.entries); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	for _, t := range w.tables {
		t.entries = nil
	}

	w.entryCount = 0

	return nil
}

func insertAll(tx *sql.Tx, tableName string, entries []any) error {
	marks := make([]string, len(structs.Names(entries[0])))
	for i := range marks {
		marks[i] = "?"
	}

	query := "INSERT INTO " + tableName +
		" VALUES (" + strings.Join(marks, ", ") + ")"

	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("prepare insert into %s: %w", tableName, err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		if _, err := stmt.Exec(structs.Values(entry)...); err != nil {
			return fmt.Errorf("insert into %s: %w", tableName, err)
		}
	}

	return nil
}

func (w *sqliteWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	err := w.flushLocked()
	w.closed = true

	if cerr := w.db.Close(); err == nil {
		err = cerr
	}

	return err
}
