package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/go-rod/rod/lib/launcher"

	"github.com/RecoveryAshes/HackSync/internal/crawlers"
	"github.com/RecoveryAshes/HackSync/internal/sink"
	"github.com/RecoveryAshes/HackSync/internal/utils"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  HackSync 环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	fmt.Printf("✅ Go版本: %s\n", runtime.Version())
	fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// 浏览器: 找不到时launcher会在首次运行时自动下载
	if path, ok := launcher.LookPath(); ok {
		fmt.Printf("✅ 浏览器: %s\n", path)
	} else {
		fmt.Println("⚠️  未找到本地Chromium - 首次运行时将自动下载")
	}

	// 存储连接串
	target := os.Getenv("HACKSYNC_STORE_URL")
	if target == "" {
		target = os.Getenv("MONGO_URL")
	}
	if target == "" {
		fmt.Println("❌ 未设置 MONGO_URL 或 HACKSYNC_STORE_URL")
		allOK = false
	} else if kind, err := sink.DetectKind(target); err != nil {
		fmt.Printf("❌ 存储连接串无效: %v\n", err)
		allOK = false
	} else {
		fmt.Printf("✅ 存储: %s (%s)\n", utils.RedactTarget(target), kind)
	}

	// 主机资源
	monitor := crawlers.NewResourceMonitor(crawlers.DefaultResourceMonitorConfig())
	if status, err := monitor.GetMemoryStatus(); err == nil {
		fmt.Printf("✅ 可用内存: %d MB (%s)\n", status.AvailableMemory/(1024*1024), status.MemoryPressure)
	}
	if ok, reason := monitor.CheckHeadroom(); !ok {
		fmt.Printf("⚠️  主机资源紧张: %s\n", reason)
	}

	fmt.Println()
	fmt.Println("==============================================")
	if allOK {
		fmt.Println("✅ 环境验证通过!")
	} else {
		fmt.Println("❌ 环境验证失败,请修复上述问题")
		os.Exit(1)
	}
}
