package crawlers

// Field 单个字段的提取结果: 存在(值)或缺失
type Field[T any] struct {
	value   T
	present bool
}

// Present 构造存在的字段
func Present[T any](v T) Field[T] {
	return Field[T]{value: v, present: true}
}

// Absent 构造缺失的字段
func Absent[T any]() Field[T] {
	return Field[T]{}
}

// Get 返回值以及是否存在
func (f Field[T]) Get() (T, bool) {
	return f.value, f.present
}

// IsPresent 字段是否存在
func (f Field[T]) IsPresent() bool {
	return f.present
}

// Ptr 存在时返回值的指针,缺失时返回nil
func (f Field[T]) Ptr() *T {
	if !f.present {
		return nil
	}
	v := f.value
	return &v
}

// OrElse 缺失时返回默认值
func (f Field[T]) OrElse(def T) T {
	if !f.present {
		return def
	}
	return f.value
}
