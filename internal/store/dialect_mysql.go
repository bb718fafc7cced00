package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// MySQLDialect implements Dialect for MySQL via go-sql-driver/mysql.
type MySQLDialect struct{}

func (d *MySQLDialect) Name() string       { return "mysql" }
func (d *MySQLDialect) DriverName() string { return "mysql" }

func (d *MySQLDialect) Placeholder(_ int) string { return "?" }

func (d *MySQLDialect) NewParamBuilder() ParamBuilder {
	return &mysqlParamBuilder{}
}

func (d *MySQLDialect) Quote(ident string) string { return quoteParts(ident, "`") }
func (d *MySQLDialect) UUIDDefault() string       { return "" }
func (d *MySQLDialect) NeedsBoolFix() bool        { return true }
func (d *MySQLDialect) SupportsReturning() bool   { return false }

func (d *MySQLDialect) ColumnType(fieldType string, precision int) string {
	switch fieldType {
	case "string":
		// TEXT columns cannot be keyed without a prefix length.
		return "VARCHAR(255)"
	case "text":
		return "TEXT"
	case "int", "integer":
		return "INT"
	case "bigint":
		return "BIGINT"
	case "float":
		return "DOUBLE"
	case "decimal":
		if precision > 0 {
			return fmt.Sprintf("DECIMAL(18,%d)", precision)
		}
		return "DECIMAL(18,4)"
	case "boolean":
		return "TINYINT(1)"
	case "uuid":
		return "CHAR(36)"
	case "timestamp":
		return "DATETIME(6)"
	case "date":
		return "DATE"
	case "json":
		return "JSON"
	default:
		return "VARCHAR(255)"
	}
}

func (d *MySQLDialect) AutoIncrementColumn(fieldType string) string {
	if fieldType == "bigint" {
		return "BIGINT AUTO_INCREMENT PRIMARY KEY"
	}
	return "INT AUTO_INCREMENT PRIMARY KEY"
}

func (d *MySQLDialect) SystemTablesSQL() string {
	return mysqlSystemTablesSQL
}

func (d *MySQLDialect) UpsertDefinitionSQL(table string, keyCols []string, cols []string) string {
	phs := make([]string, len(cols))
	for i := range cols {
		phs[i] = "?"
	}
	keys := make(map[string]bool, len(keyCols))
	for _, k := range keyCols {
		keys[k] = true
	}
	var sets []string
	for _, c := range cols {
		if !keys[c] {
			sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", d.Quote(c), d.Quote(c)))
		}
	}
	if len(sets) == 0 {
		return fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES (%s)", d.Quote(table), quoteAll(d, cols), strings.Join(phs, ", "))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		d.Quote(table), quoteAll(d, cols), strings.Join(phs, ", "), strings.Join(sets, ", "))
}

func (d *MySQLDialect) TableExists(ctx context.Context, q Querier, tableName string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?",
		tableName,
	).Scan(&n)
	return n > 0, err
}

func (d *MySQLDialect) GetColumns(ctx context.Context, q Querier, tableName string) (map[string]string, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT COLUMN_NAME, DATA_TYPE FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?",
		tableName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, err
		}
		cols[name] = dataType
	}
	return cols, rows.Err()
}

func (d *MySQLDialect) DescribeTable(ctx context.Context, q Querier, tableName string) (*TableSchema, error) {
	return describeTable(ctx, q, tableName, describeQueries{
		columns: `SELECT COLUMN_NAME FROM information_schema.COLUMNS
			WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION`,
		primaryKey: `SELECT COLUMN_NAME FROM information_schema.KEY_COLUMN_USAGE
			WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND CONSTRAINT_NAME = 'PRIMARY'
			ORDER BY ORDINAL_POSITION`,
		foreignKeys: `SELECT COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
			FROM information_schema.KEY_COLUMN_USAGE
			WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND REFERENCED_TABLE_NAME IS NOT NULL
			ORDER BY CONSTRAINT_NAME, ORDINAL_POSITION`,
	})
}

func (d *MySQLDialect) InExpr(field string, pb ParamBuilder, values []any) string {
	return expandIn(field, "IN", "1=0", pb, values)
}

func (d *MySQLDialect) NotInExpr(field string, pb ParamBuilder, values []any) string {
	return expandIn(field, "NOT IN", "1=1", pb, values)
}

func (d *MySQLDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1062:
			return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
		case 1451, 1452:
			return fmt.Errorf("%w: %w", ErrForeignKey, err)
		}
	}
	return err
}

const mysqlSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS _entities (
    name        VARCHAR(191) PRIMARY KEY,
    table_name  VARCHAR(191) NOT NULL UNIQUE,
    definition  LONGTEXT NOT NULL,
    updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS _relations (
    source      VARCHAR(191) NOT NULL,
    name        VARCHAR(191) NOT NULL,
    definition  LONGTEXT NOT NULL,
    updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (source, name),
    FOREIGN KEY (source) REFERENCES _entities(name) ON DELETE CASCADE
);
`

var _ Dialect = (*MySQLDialect)(nil)
