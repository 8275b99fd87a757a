package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SnapshotFilename 默认快照文件名
const SnapshotFilename = "hackathon_data.json"

// ScreenshotFilename 默认诊断截图文件名
const ScreenshotFilename = "hackathon_page.png"

// MarshalRecords 将记录序列化为JSON数组(两空格缩进,不转义HTML字符)
func MarshalRecords(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalRecords 从JSON数组反序列化记录
// 顶层必须是数组,否则视为快照损坏
func UnmarshalRecords(data []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("快照格式无效: 顶层不是JSON数组")
	}

	var records []Record
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("解析快照失败: %w", err)
	}
	return records, nil
}

// SaveRecordsToFile 保存快照记录到文件
func SaveRecordsToFile(path string, records []Record) error {
	data, err := MarshalRecords(records)
	if err != nil {
		return fmt.Errorf("序列化快照失败: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建快照目录失败: %w", err)
		}
	}

	// 先写临时文件再重命名,读取方不会看到半写状态
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("写入快照文件失败: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("替换快照文件失败: %w", err)
	}
	return nil
}

// LoadRecordsFromFile 从文件加载快照记录
func LoadRecordsFromFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取快照文件失败: %w", err)
	}
	return UnmarshalRecords(data)
}
