package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/HackSync/internal/core"
	"github.com/RecoveryAshes/HackSync/internal/crawlers"
	"github.com/RecoveryAshes/HackSync/internal/metrics"
	"github.com/RecoveryAshes/HackSync/internal/models"
	"github.com/RecoveryAshes/HackSync/internal/server"
	"github.com/RecoveryAshes/HackSync/internal/utils"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动HTTP服务,通过 GET /run 触发刷新",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ValidateServeFlags(host, port); err != nil {
			return err
		}
		cfg := *appConfig
		if host != "" {
			cfg.Server.Host = host
		}
		if port != 0 {
			cfg.Server.Port = port
		}

		// 缺少连接串不阻止启动,/run 时返回500
		if err := cfg.Validate(); err != nil {
			utils.Warnf("⚠️  配置不完整: %v", err)
		}

		ctx, stop := signalContext()
		defer stop()

		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("注册指标失败: %w", err)
		}
		if !verbose {
			gin.SetMode(gin.ReleaseMode)
		}

		pool := core.NewWorkerPool(cfg.Pipeline.StoreWorkers)
		defer pool.Shutdown()

		orchestrator, err := newOrchestrator(&cfg, pool)
		if err != nil {
			return err
		}

		srv := server.NewServer(cfg.ServerAddr(), server.NewRouter(ctx, orchestrator).Handler())
		errCh := make(chan error, 1)
		go func() {
			utils.Infof("🚀 HTTP服务已启动: http://%s", cfg.ServerAddr())
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
			utils.Warn("收到中断信号,正在优雅关闭...")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("HTTP服务异常退出: %w", err)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("关闭HTTP服务失败: %w", err)
		}
		utils.Info("✨ 服务已关闭")
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "执行一次完整刷新 (提取 + 替换,失败重试)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ValidateExtractFlags(fromHTML, outputDir); err != nil {
			return err
		}
		cfg := *appConfig
		if outputDir != "" {
			cfg.Scrape.OutputDir = outputDir
		}

		ctx, stop := signalContext()
		defer stop()

		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("注册指标失败: %w", err)
		}

		pool := core.NewWorkerPool(cfg.Pipeline.StoreWorkers)
		defer pool.Shutdown()

		orchestrator, err := newOrchestrator(&cfg, pool)
		if err != nil {
			return err
		}
		if extraction, ok := orchestrator.Extraction.(*crawlers.ExtractionRun); ok {
			extraction.Extractor.Progress = cardProgressBar()
		}

		report, err := orchestrator.Run(ctx)
		if report != nil {
			printRunReport(report)
		}
		if err != nil {
			return err
		}
		utils.Info("✨ 刷新任务完成!")
		return nil
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "只提取并写入快照文件,不修改存储",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ValidateExtractFlags(fromHTML, outputDir); err != nil {
			return err
		}
		cfg := *appConfig
		if outputDir != "" {
			cfg.Scrape.OutputDir = outputDir
		}
		ctx, stop := signalContext()
		defer stop()

		factory, err := sessionFactory(&cfg)
		if err != nil {
			return err
		}

		extraction := crawlers.NewExtractionRun(factory, cfg.ExtractionOptions())
		extraction.Loader = cfg.ScrollLoader()
		extraction.Extractor.Progress = cardProgressBar()

		start := time.Now()
		snapshot, err := extraction.Run(ctx)
		if err != nil {
			return fmt.Errorf("提取失败: %w", err)
		}

		fmt.Println("\n==================================================")
		fmt.Println("📊 提取统计")
		fmt.Println("==================================================")
		fmt.Printf("🆔 快照ID: %s\n", snapshot.ID)
		fmt.Printf("✅ 记录数: %d\n", snapshot.Len())
		fmt.Printf("❌ 跳过卡片: %d\n", extraction.Extractor.Skipped())
		fmt.Printf("📦 快照文件: %s\n", extraction.SnapshotPath())
		fmt.Printf("⏱️  总耗时: %.2f秒\n", time.Since(start).Seconds())
		fmt.Println("==================================================")
		return nil
	},
}

// cardProgressBar 第一次回调时按卡片总数创建进度条
func cardProgressBar() crawlers.CardProgress {
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = utils.NewProgressBar(total, "解析卡片")
		}
		_ = bar.Set(done)
		if done == total {
			_ = bar.Finish()
			fmt.Println()
		}
	}
}

func printRunReport(report *models.RunReport) {
	fmt.Println("\n==================================================")
	fmt.Println("📊 刷新统计")
	fmt.Println("==================================================")
	fmt.Printf("🆔 运行ID: %s\n", report.RunID)
	fmt.Printf("📌 状态: %s\n", report.Status)
	for _, attempt := range report.Attempts {
		message := attempt.Outcome.Message
		if attempt.Error != "" {
			message = attempt.Error
		}
		fmt.Printf("  [尝试 %d] 记录 %d, 删除 %d, 插入 %d, %.2f秒: %s\n",
			attempt.Attempt, attempt.Records,
			attempt.Outcome.RecordsReplaced, attempt.Outcome.RecordsInserted,
			attempt.Duration, message)
	}
	fmt.Printf("⏱️  总耗时: %.2f秒\n", report.CompletedAt.Sub(report.StartedAt).Seconds())
	fmt.Println("==================================================")
}
