// Package sink 实现"整体替换"语义的存储适配器
//
// 流水线先调用DeleteAll再调用InsertMany,两步之间不加事务:
// 插入失败时旧数据已被删除,调用方必须把这种情况报告为失败。
package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/RecoveryAshes/HackSync/internal/models"
	"github.com/RecoveryAshes/HackSync/internal/utils"
)

const (
	// DefaultDatabase 默认数据库名
	DefaultDatabase = "HOC_Users"
	// DefaultCollection 默认集合名/表名
	DefaultCollection = "hackathons"
)

var (
	// ErrUnsupportedTarget 无法识别的连接串
	ErrUnsupportedTarget = errors.New("不支持的存储目标")
	// ErrEmptyTarget 连接串为空
	ErrEmptyTarget = errors.New("存储目标为空")
)

// DataSink 存储适配器
type DataSink interface {
	// DeleteAll 删除全部记录,返回删除数量
	DeleteAll(ctx context.Context) (int64, error)
	// InsertMany 按给定顺序插入记录,返回插入数量
	InsertMany(ctx context.Context, records []models.Record) (int64, error)
	// Close 释放连接
	Close(ctx context.Context) error
}

// Kind 存储类型
type Kind string

const (
	KindMongo    Kind = "mongodb"
	KindPostgres Kind = "postgres"
	KindSQLite   Kind = "sqlite"
)

// Options 打开存储时的参数
type Options struct {
	Database   string // MongoDB数据库名
	Collection string // MongoDB集合名,同时作为SQL表名
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{Database: DefaultDatabase, Collection: DefaultCollection}
}

func (o Options) withDefaults() Options {
	if o.Database == "" {
		o.Database = DefaultDatabase
	}
	if o.Collection == "" {
		o.Collection = DefaultCollection
	}
	return o
}

// DetectKind 根据连接串判断存储类型
func DetectKind(target string) (Kind, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", ErrEmptyTarget
	}

	lower := strings.ToLower(target)
	switch {
	case strings.HasPrefix(lower, "mongodb://"), strings.HasPrefix(lower, "mongodb+srv://"):
		return KindMongo, nil
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return KindPostgres, nil
	case strings.HasPrefix(lower, "sqlite://"),
		strings.HasSuffix(lower, ".db"),
		strings.HasSuffix(lower, ".sqlite"),
		lower == ":memory:":
		return KindSQLite, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedTarget, schemeOf(target))
}

// schemeOf 错误信息中只带协议部分,避免泄露凭据
func schemeOf(target string) string {
	if i := strings.Index(target, "://"); i > 0 {
		return target[:i] + "://"
	}
	return "(无协议)"
}

// Open 按连接串打开存储
func Open(ctx context.Context, target string, opts Options) (DataSink, error) {
	kind, err := DetectKind(target)
	if err != nil {
		return nil, err
	}

	opts = opts.withDefaults()
	redacted := utils.RedactTarget(target)
	utils.Debugf("打开存储: %s (%s)", redacted, kind)

	var store DataSink
	switch kind {
	case KindMongo:
		store, err = OpenMongo(ctx, target, opts.Database, opts.Collection)
	case KindPostgres:
		store, err = OpenPostgres(ctx, target, opts.Collection)
	case KindSQLite:
		store, err = OpenSQLite(ctx, target, opts.Collection)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTarget, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("连接存储失败 %s: %w", redacted, err)
	}
	return store, nil
}

// Opener 延迟打开存储,由流水线在每次尝试时调用
type Opener func(ctx context.Context) (DataSink, error)

// NewOpener 绑定连接串和参数
func NewOpener(target string, opts Options) Opener {
	return func(ctx context.Context) (DataSink, error) {
		return Open(ctx, target, opts)
	}
}
