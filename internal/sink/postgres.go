package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RecoveryAshes/HackSync/internal/models"
	"github.com/RecoveryAshes/HackSync/internal/utils"
)

// PgxPool PostgresSink用到的连接池方法,pgxpool.Pool和pgxmock均满足
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Close()
}

// recordColumns COPY时的列顺序,position保存快照中的顺序
var recordColumns = []string{
	"position",
	"headline",
	"url",
	"sub_headline",
	"mode",
	"location",
	"no_of_participant",
	"tags",
	"status",
	"organization_link",
	"organization_logo",
	"organization_name",
	"dates",
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS %s (
	position          INTEGER NOT NULL,
	headline          TEXT,
	url               TEXT,
	sub_headline      TEXT,
	mode              TEXT,
	location          TEXT,
	no_of_participant INTEGER NOT NULL DEFAULT 0,
	tags              TEXT[],
	status            TEXT,
	organization_link TEXT,
	organization_logo TEXT,
	organization_name TEXT,
	dates             TEXT,
	inserted_at       TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresSink 记录存放在一张表中
type PostgresSink struct {
	pool  PgxPool
	table string
}

// OpenPostgres 创建连接池并确保表存在
func OpenPostgres(ctx context.Context, connString, table string) (*PostgresSink, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("解析PostgreSQL连接串失败: %w", err)
	}
	pgxCfg.MaxConns = 4
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, fmt.Errorf("创建PostgreSQL连接池失败: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("PostgreSQL不可用: %w", err)
	}

	s := NewPostgresSink(pool, table)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	utils.Debugf("已连接PostgreSQL: 表 %s", table)
	return s, nil
}

// NewPostgresSink 使用已有连接池
func NewPostgresSink(pool PgxPool, table string) *PostgresSink {
	if table == "" {
		table = DefaultCollection
	}
	return &PostgresSink{pool: pool, table: table}
}

func (s *PostgresSink) identifier() pgx.Identifier {
	return pgx.Identifier{s.table}
}

// EnsureSchema 建表
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(postgresSchema, s.identifier().Sanitize())); err != nil {
		return fmt.Errorf("创建表 %s 失败: %w", s.table, err)
	}
	return nil
}

// DeleteAll 删除表中全部记录
func (s *PostgresSink) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM "+s.identifier().Sanitize())
	if err != nil {
		return 0, fmt.Errorf("删除记录失败: %w", err)
	}
	return tag.RowsAffected(), nil
}

// InsertMany 使用COPY协议批量写入
func (s *PostgresSink) InsertMany(ctx context.Context, records []models.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = recordRow(i, r)
	}

	n, err := s.pool.CopyFrom(ctx, s.identifier(), recordColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("COPY INTO %s 失败: %w", s.table, err)
	}
	return n, nil
}

// Close 关闭连接池
func (s *PostgresSink) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

// recordRow 与recordColumns一一对应
func recordRow(position int, r models.Record) []any {
	return []any{
		position,
		r.Headline,
		r.URL,
		r.SubHeadline,
		r.Mode,
		r.Location,
		r.ParticipantCount,
		r.Tags,
		r.Status,
		r.OrganizationLink,
		r.OrganizationLogo,
		r.OrganizationName,
		r.Dates,
	}
}
