package main

import (
	"fmt"
	"os"
	"strings"
)

// ValidateServeFlags 验证serve命令标志,0和空字符串表示使用配置值
func ValidateServeFlags(host string, port int) error {
	if strings.ContainsAny(host, " \t/") {
		return fmt.Errorf("无效的监听地址: %q", host)
	}
	if port < 0 || port > 65535 {
		return fmt.Errorf("端口必须在1-65535之间,当前值: %d", port)
	}
	return nil
}

// ValidateExtractFlags 验证run/extract命令标志
func ValidateExtractFlags(fromHTML, outputDir string) error {
	if fromHTML != "" {
		info, err := os.Stat(fromHTML)
		if err != nil {
			return fmt.Errorf("无法读取页面文件: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("页面文件是目录: %s", fromHTML)
		}
	}

	if outputDir != "" {
		if info, err := os.Stat(outputDir); err == nil && !info.IsDir() {
			return fmt.Errorf("输出路径已存在且不是目录: %s", outputDir)
		}
	}
	return nil
}
