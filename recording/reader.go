package recording

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
)

// QueryParams encapsulates the optional parts of a query.
type QueryParams struct {
	// Where holds the WHERE clause without the "WHERE" keyword, e.g.
	// "end_time > ? AND trigger = ?".
	Where string

	// Args holds the arguments for the placeholders in Where.
	Args []any

	// Limit is the maximum number of records to return. 0 means no limit.
	Limit int

	// Offset is the number of records to skip.
	Offset int

	// OrderBy specifies sorting without the "ORDER BY" keywords.
	OrderBy string
}

// DataReader reads records stored by a DataRecorder.
type DataReader interface {
	// MapTable establishes a mapping between a database table and a Go
	// struct type. The mapping is required before querying a table.
	MapTable(tableName string, sampleEntry any)

	// ListTables returns the names of all mapped tables.
	ListTables() []string

	// Query reads records from a table.
	Query(ctx context.Context, tableName string, params QueryParams) (
		results []any,
		totalCount int,
		err error,
	)

	// Close closes the reader.
	Close() error
}

// SQLiteReader reads records from a SQLite database.
type SQLiteReader struct {
	*sql.DB

	typeMap map[string]reflect.Type
}

// NewSQLiteReader creates a SQLiteReader over the database at the given path.
func NewSQLiteReader(dbFilename string) *SQLiteReader {
	db, err := sql.Open("sqlite3", dbFilename)
	if err != nil {
		panic(err)
	}

	return &SQLiteReader{
		DB:      db,
		typeMap: make(map[string]reflect.Type),
	}
}

// NewSQLiteReaderWithDB creates a SQLiteReader over an open database.
func NewSQLiteReaderWithDB(db *sql.DB) *SQLiteReader {
	return &SQLiteReader{
		DB:      db,
		typeMap: make(map[string]reflect.Type),
	}
}

// MapTable associates a table with the struct type its rows scan into.
func (r *SQLiteReader) MapTable(tableName string, sampleEntry any) {
	r.typeMap[tableName] = reflect.TypeOf(sampleEntry)
}

// ListTables returns the names of all mapped tables.
func (r *SQLiteReader) ListTables() []string {
	tables := make([]string, 0, len(r.typeMap))
	for name := range r.typeMap {
		tables = append(tables, name)
	}

	return tables
}

// Query reads records from a table, returning the matching rows and the total
// number of rows that match the where clause regardless of pagination.
func (r *SQLiteReader) Query(
	ctx context.Context,
	tableName string,
	params QueryParams,
) ([]any, int, error) {
	structType, ok := r.typeMap[tableName]
	if !ok {
		return nil, 0, fmt.Errorf("no mapping found for table: %s", tableName)
	}

	totalCount, err := r.countRows(ctx, tableName, params)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.QueryContext(ctx, r.buildQuery(tableName, params),
		params.Args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	results := []any{}
	for rows.Next() {
		entry := reflect.New(structType).Elem()

		dest := make([]any, structType.NumField())
		for i := range dest {
			dest[i] = entry.Field(i).Addr().Interface()
		}

		err := rows.Scan(dest...)
		if err != nil {
			return nil, 0, err
		}

		results = append(results, entry.Interface())
	}

	return results, totalCount, rows.Err()
}

func (r *SQLiteReader) countRows(
	ctx context.Context,
	tableName string,
	params QueryParams,
) (int, error) {
	query := "SELECT COUNT(*) FROM " + tableName
	if params.Where != "" {
		query += " WHERE " + params.Where
	}

	var count int
	err := r.QueryRowContext(ctx, query, params.Args...).Scan(&count)

	return count, err
}

func (r *SQLiteReader) buildQuery(tableName string, params QueryParams) string {
	var sb strings.Builder

	sb.WriteString("SELECT * FROM ")
	sb.WriteString(tableName)

	if params.Where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(params.Where)
	}

	if params.OrderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(params.OrderBy)
	}

	if params.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", params.Limit)
	}

	if params.Offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", params.Offset)
	}

	return sb.String()
}
