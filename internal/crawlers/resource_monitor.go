package crawlers

import (
	"fmt"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/RecoveryAshes/HackSync/internal/utils"
)

// 内存压力等级
const (
	PressureNormal    = "normal"
	PressureWarning   = "warning"
	PressureCritical  = "critical"
	PressureEmergency = "emergency"
)

// ResourceMonitor 启动浏览器前的主机资源检查
// 无头浏览器单实例常驻数百MB,内存紧张时先给出告警
type ResourceMonitor struct {
	config ResourceMonitorConfig

	// 可替换的采样函数,测试中注入
	readMemory func() (total, available uint64, err error)
	readCPU    func() (float64, error)
}

// ResourceMonitorConfig 资源监控配置
type ResourceMonitorConfig struct {
	SafetyReserveMemory int64 // 安全保留内存(字节)
	BrowserMemoryUsage  int64 // 单个浏览器实例的预估内存(字节)
	CPULoadThreshold    int   // CPU负载阈值(%),>=200视为禁用
}

// MemoryStatus 内存状态信息
type MemoryStatus struct {
	TotalMemory     uint64
	AvailableMemory int64 // 扣除安全保留后的可用内存
	SafetyReserve   int64
	MemoryPressure  string
}

// DefaultResourceMonitorConfig 默认配置
func DefaultResourceMonitorConfig() ResourceMonitorConfig {
	return ResourceMonitorConfig{
		SafetyReserveMemory: 512 * 1024 * 1024,
		BrowserMemoryUsage:  300 * 1024 * 1024,
		CPULoadThreshold:    90,
	}
}

// NewResourceMonitor 创建资源监控器
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	if config.BrowserMemoryUsage == 0 {
		config.BrowserMemoryUsage = 300 * 1024 * 1024
	}
	return &ResourceMonitor{
		config:     config,
		readMemory: systemMemory,
		readCPU:    systemCPU,
	}
}

func systemMemory() (uint64, uint64, error) {
	vmStat, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, err
	}
	return vmStat.Total, vmStat.Available, nil
}

// systemCPU 100毫秒采样,所有核心的平均使用率
func systemCPU() (float64, error) {
	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		return 0, err
	}
	if len(percentages) == 0 {
		return 0, fmt.Errorf("CPU使用率数据为空")
	}
	return percentages[0], nil
}

// GetMemoryStatus 获取当前内存状态
func (rm *ResourceMonitor) GetMemoryStatus() (MemoryStatus, error) {
	total, available, err := rm.readMemory()
	if err != nil {
		return MemoryStatus{}, fmt.Errorf("获取系统内存失败: %w", err)
	}

	usable := int64(available) - rm.config.SafetyReserveMemory
	return MemoryStatus{
		TotalMemory:     total,
		AvailableMemory: usable,
		SafetyReserve:   rm.config.SafetyReserveMemory,
		MemoryPressure:  ClassifyPressure(usable),
	}, nil
}

// ClassifyPressure 按可用内存划分压力等级
func ClassifyPressure(available int64) string {
	availableMB := available / (1024 * 1024)
	switch {
	case availableMB < 200:
		return PressureEmergency
	case availableMB < 300:
		return PressureCritical
	case availableMB < 500:
		return PressureWarning
	default:
		return PressureNormal
	}
}

// CheckHeadroom 检查是否有余量再启动一个浏览器
// 返回ok以及不满足时的原因;采样失败时放行
func (rm *ResourceMonitor) CheckHeadroom() (ok bool, reason string) {
	status, err := rm.GetMemoryStatus()
	if err != nil {
		utils.Warnf("%v", err)
		return true, ""
	}
	utils.Debugf("可用内存: %dMB (压力等级: %s, CPU核心: %d)",
		status.AvailableMemory/(1024*1024), status.MemoryPressure, runtime.NumCPU())

	if status.AvailableMemory < rm.config.BrowserMemoryUsage {
		return false, fmt.Sprintf("内存不足(当前%dMB,压力等级%s)",
			status.AvailableMemory/(1024*1024), status.MemoryPressure)
	}

	if rm.config.CPULoadThreshold < 200 {
		usage, err := rm.readCPU()
		if err != nil {
			utils.Warnf("获取CPU使用率失败: %v", err)
			return true, ""
		}
		if usage > float64(rm.config.CPULoadThreshold) {
			return false, fmt.Sprintf("CPU负载过高(当前%.1f%%)", usage)
		}
	}

	return true, ""
}
