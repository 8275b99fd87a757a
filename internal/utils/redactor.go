package utils

import (
	"net/url"
	"strings"
)

var (
	// SensitiveKeywords 敏感参数名称关键字 (用于脱敏)
	SensitiveKeywords = []string{
		"authorization",
		"token",
		"key",
		"secret",
		"password",
		"credential",
	}
)

// TargetRedactor 存储连接串脱敏器
// 连接串会出现在日志和运行报告中,密码和敏感查询参数必须隐藏
type TargetRedactor struct {
	sensitiveKeywords []string
}

// NewTargetRedactor 创建连接串脱敏器
func NewTargetRedactor() *TargetRedactor {
	return &TargetRedactor{
		sensitiveKeywords: SensitiveKeywords,
	}
}

// IsSensitiveParam 根据参数名称关键字判断是否敏感
func (tr *TargetRedactor) IsSensitiveParam(name string) bool {
	nameLower := strings.ToLower(name)
	for _, keyword := range tr.sensitiveKeywords {
		if strings.Contains(nameLower, keyword) {
			return true
		}
	}
	return false
}

// RedactValue 脱敏单个值
func (tr *TargetRedactor) RedactValue(value string) string {
	// 长值显示前4位+后4位
	if len(value) > 12 {
		return value[:4] + "***" + value[len(value)-4:]
	}
	return "***"
}

// Redact 脱敏连接串: 密码替换为***,敏感查询参数按RedactValue处理
// 无法解析为URL的输入(例如SQLite文件路径)原样返回
func (tr *TargetRedactor) Redact(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Opaque != "" {
		return target
	}

	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}

	if u.RawQuery != "" {
		query := u.Query()
		for name, values := range query {
			if !tr.IsSensitiveParam(name) {
				continue
			}
			for i, v := range values {
				values[i] = tr.RedactValue(v)
			}
			query[name] = values
		}
		u.RawQuery = query.Encode()
	}

	// url.String会把***转义为%2A%2A%2A
	return strings.ReplaceAll(u.String(), "%2A%2A%2A", "***")
}

// RedactTarget 使用默认关键字脱敏连接串
func RedactTarget(target string) string {
	return NewTargetRedactor().Redact(target)
}
