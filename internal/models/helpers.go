package models

// Ptr 返回字符串指针,用于填充可选字段
func Ptr(s string) *string {
	return &s
}
