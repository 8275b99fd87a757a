package crawlers

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/RecoveryAshes/HackSync/internal/utils"
)

// MaxHeaderValueLength 头部值最大长度 (8KB)
const MaxHeaderValueLength = 8192

var (
	// ForbiddenHeaders 由浏览器自己管理的头部,不允许自定义
	ForbiddenHeaders = []string{
		"Host",
		"Content-Length",
		"Transfer-Encoding",
		"Connection",
		"User-Agent", // 通过 browser.user_agent 设置
	}

	headerNameRegex  = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	headerValueRegex = regexp.MustCompile(`^[\x20-\x7E\t]*$`)
)

// HeaderError 头部校验失败
type HeaderError struct {
	Name   string
	Reason string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("请求头 '%s' 无效: %s", e.Name, e.Reason)
}

// RequestHeaders 页面请求附加头部
// 合并优先级: 配置文件 < 命令行
type RequestHeaders struct {
	config http.Header
	cli    http.Header
}

// NewRequestHeaders 从配置(map)和命令行("Name: Value")创建
func NewRequestHeaders(configHeaders map[string]string, cliHeaders []string) (*RequestHeaders, error) {
	rh := &RequestHeaders{config: make(http.Header), cli: make(http.Header)}

	for name, value := range configHeaders {
		rh.config.Set(name, value)
	}

	for _, raw := range cliHeaders {
		name, value, ok := strings.Cut(raw, ":")
		if !ok {
			return nil, &HeaderError{Name: raw, Reason: "格式应为 'Name: Value'"}
		}
		rh.cli.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	return rh, nil
}

// Validate 校验所有头部
func (rh *RequestHeaders) Validate() error {
	for _, h := range []http.Header{rh.config, rh.cli} {
		for name, values := range h {
			for _, value := range values {
				if err := validateHeader(name, value); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func validateHeader(name, value string) error {
	for _, forbidden := range ForbiddenHeaders {
		if strings.EqualFold(name, forbidden) {
			return &HeaderError{Name: name, Reason: "由浏览器管理,不允许自定义"}
		}
	}
	if name == "" || !headerNameRegex.MatchString(name) {
		return &HeaderError{Name: name, Reason: "名称只允许字母、数字和连字符"}
	}
	if len(value) > MaxHeaderValueLength {
		return &HeaderError{Name: name, Reason: fmt.Sprintf("值过长: %d 字节 (最大 %d)", len(value), MaxHeaderValueLength)}
	}
	if !headerValueRegex.MatchString(value) {
		return &HeaderError{Name: name, Reason: "值只允许可打印ASCII字符"}
	}
	return nil
}

// Merged 合并后的头部,命令行覆盖配置
func (rh *RequestHeaders) Merged() http.Header {
	result := make(http.Header)
	for name, values := range rh.config {
		result[name] = values
	}
	for name, values := range rh.cli {
		result[name] = values
	}
	return result
}

// Safe 脱敏后的头部,用于日志
func (rh *RequestHeaders) Safe() map[string]string {
	redactor := utils.NewTargetRedactor()
	safe := make(map[string]string)
	for name, values := range rh.Merged() {
		value := strings.Join(values, ", ")
		if redactor.IsSensitiveParam(name) || strings.EqualFold(name, "Cookie") {
			value = redactor.RedactValue(value)
		}
		safe[name] = value
	}
	return safe
}

// flattenHeaders 转换为 rod SetExtraHeaders 需要的 [k1, v1, k2, v2...] 形式
func flattenHeaders(h http.Header) []string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	dict := make([]string, 0, len(h)*2)
	for _, name := range names {
		dict = append(dict, name, strings.Join(h[name], ", "))
	}
	return dict
}
