package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/RecoveryAshes/HackSync/internal/models"
)

// SQLiteSink 单文件存储,适合本地运行和测试
type SQLiteSink struct {
	db    *sql.DB
	table string
}

// OpenSQLite 打开SQLite数据库
// DSN格式:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (不带前缀)
func OpenSQLite(ctx context.Context, dsn, table string) (*SQLiteSink, error) {
	dsn = strings.TrimSpace(dsn)
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}
	if dsn == "" {
		return nil, ErrEmptyTarget
	}
	if table == "" {
		table = DefaultCollection
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开SQLite失败: %w", err)
	}
	// :memory: 数据库只存在于单个连接中
	db.SetMaxOpenConns(1)

	s := &SQLiteSink{db: db, table: table}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSink) quotedTable() string {
	return `"` + strings.ReplaceAll(s.table, `"`, `""`) + `"`
}

func (s *SQLiteSink) ensureSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS ` + s.quotedTable() + `(
		position          INTEGER NOT NULL,
		headline          TEXT,
		url               TEXT,
		sub_headline      TEXT,
		mode              TEXT,
		location          TEXT,
		no_of_participant INTEGER NOT NULL DEFAULT 0,
		tags              TEXT,
		status            TEXT,
		organization_link TEXT,
		organization_logo TEXT,
		organization_name TEXT,
		dates             TEXT,
		inserted_at       TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP)
	);`
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("创建表 %s 失败: %w", s.table, err)
	}
	return nil
}

// DeleteAll 删除全部记录
func (s *SQLiteSink) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+s.quotedTable())
	if err != nil {
		return 0, fmt.Errorf("删除记录失败: %w", err)
	}
	return res.RowsAffected()
}

// InsertMany 在一个事务中插入,失败时整批回滚
func (s *SQLiteSink) InsertMany(ctx context.Context, records []models.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("开启事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+s.quotedTable()+`(`+strings.Join(recordColumns, ", ")+`)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`)
	if err != nil {
		return 0, fmt.Errorf("准备插入语句失败: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		tags, err := encodeTags(r.Tags)
		if err != nil {
			return 0, err
		}
		row := recordRow(i, r)
		row[7] = tags
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, fmt.Errorf("插入第%d条记录失败: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("提交事务失败: %w", err)
	}
	return int64(len(records)), nil
}

// LoadAll 按position顺序读回全部记录
func (s *SQLiteSink) LoadAll(ctx context.Context) ([]models.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+strings.Join(recordColumns[1:], ", ")+
		` FROM `+s.quotedTable()+` ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("查询记录失败: %w", err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var (
			r    models.Record
			tags sql.NullString
		)
		if err := rows.Scan(&r.Headline, &r.URL, &r.SubHeadline, &r.Mode, &r.Location,
			&r.ParticipantCount, &tags, &r.Status, &r.OrganizationLink, &r.OrganizationLogo,
			&r.OrganizationName, &r.Dates); err != nil {
			return nil, fmt.Errorf("读取记录失败: %w", err)
		}
		if tags.Valid && tags.String != "" {
			if err := json.Unmarshal([]byte(tags.String), &r.Tags); err != nil {
				return nil, fmt.Errorf("解析标签失败: %w", err)
			}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close 关闭数据库
func (s *SQLiteSink) Close(ctx context.Context) error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// encodeTags 标签以JSON数组存储,没有标签时为NULL
func encodeTags(tags []string) (any, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("序列化标签失败: %w", err)
	}
	return string(data), nil
}
