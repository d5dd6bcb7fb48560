package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// QueryParams selects the rows of a query.
type QueryParams struct {
	// Where is a condition without the WHERE keyword, such as
	// "Event = ? AND ResIndex = ?".
	Where string

	// Args fill the placeholders of Where.
	Args []any

	// Limit caps the number of rows returned. Zero means no limit.
	Limit int

	// Offset skips rows. It is only used together with Limit.
	Offset int

	// OrderBy sorts the rows, such as "Time DESC".
	OrderBy string
}

func (p QueryParams) selectQuery(table string) string {
	var b strings.Builder

	b.WriteString("SELECT * FROM ")
	b.WriteString(table)

	if p.Where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(p.Where)
	}

	if p.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(p.OrderBy)
	}

	if p.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(p.Limit))

		if p.Offset > 0 {
			b.WriteString(" OFFSET ")
			b.WriteString(strconv.Itoa(p.Offset))
		}
	}

	return b.String()
}

func (p QueryParams) countQuery(table string) string {
	q := "SELECT COUNT(*) FROM " + table
	if p.Where != "" {
		q += " WHERE " + p.Where
	}

	return q
}

// DataReader reads a recording back.
type DataReader interface {
	// MapTable tells which struct the rows of a table are read into. A table
	// must be mapped before it is queried.
	MapTable(tableName string, sampleEntry any)

	// ListTables returns the mapped tables, sorted.
	ListTables() []string

	// Query returns the selected rows of a table as pointers to the mapped
	// struct, together with the number of rows that match Where.
	Query(ctx context.Context, tableName string, params QueryParams) (
		results []any,
		totalCount int,
		err error,
	)

	// Close closes the reader.
	Close() error
}

type sqliteReader struct {
	db      *sql.DB
	typeMap map[string]reflect.Type
}

// NewReader opens a recording for reading.
func NewReader(dbFilename string) (DataReader, error) {
	if _, err := os.Stat(dbFilename); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbFilename)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbFilename, err)
	}

	return NewReaderWithDB(db), nil
}

// NewReaderWithDB creates a DataReader over an open database.
func NewReaderWithDB(db *sql.DB) DataReader {
	return &sqliteReader{
		db:      db,
		typeMap: make(map[string]reflect.Type),
	}
}

func (r *sqliteReader) MapTable(tableName string, sampleEntry any) {
	r.typeMap[tableName] = reflect.TypeOf(sampleEntry)
}

func (r *sqliteReader) ListTables() []string {
	tables := make([]string, 0, len(r.typeMap))
	for name := range r.typeMap {
		tables = append(tables, name)
	}

	slices.Sort(tables)

	return tables
}

func (r *sqliteReader) Query(
	ctx context.Context,
	tableName string,
	params QueryParams,
) ([]any, int, error) {
	structType, found := r.typeMap[tableName]
	if !found || !validTableName(tableName) {
		return nil, 0, fmt.Errorf("table %s is not mapped", tableName)
	}

	var total int

	err := r.db.QueryRowContext(ctx, params.countQuery(tableName),
		params.Args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", tableName, err)
	}

	rows, err := r.db.QueryContext(ctx, params.selectQuery(tableName),
		params.Args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query %s: %w", tableName, err)
	}
	defer rows.Close()

	results, err := scanRows(rows, structType)
	if err != nil {
		return nil, 0, fmt.Errorf("query %s: %w", tableName, err)
	}

	return results, total, nil
}

// scanRows reads each row into a new struct of type t. Columns without a
// matching field are skipped.
func scanRows(rows *sql.Rows, t reflect.Type) ([]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []any

	for rows.Next() {
		ptr := reflect.New(t)
		targets := make([]any, len(columns))

		for i, col := range columns {
			if field := ptr.Elem().FieldByName(col); field.IsValid() {
				targets[i] = field.Addr().Interface()
				continue
			}

			var skipped any
			targets[i] = &skipped
		}

		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}

		results = append(results, ptr.Interface())
	}

	return results, rows.Err()
}

func (r *sqliteReader) Close() error {
	return r.db.Close()
}
