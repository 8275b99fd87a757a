// Package server 提供触发刷新和查询状态的HTTP接口
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/RecoveryAshes/HackSync/internal/core"
	"github.com/RecoveryAshes/HackSync/internal/metrics"
	"github.com/RecoveryAshes/HackSync/internal/models"
	"github.com/RecoveryAshes/HackSync/internal/utils"
)

// RunMessage 刷新成功时返回的消息
const RunMessage = "Scrapped hackathons and updated hackathons"

// Runner 执行一次编排运行并保存最近的报告
type Runner interface {
	Run(ctx context.Context) (*models.RunReport, error)
	LastReport() *models.RunReport
}

// Router 路由:
//
//	GET /run      同步执行一次刷新
//	GET /status   最近一次运行的报告
//	GET /healthz  存活检查
//	GET /metrics  Prometheus指标
type Router struct {
	ctx    context.Context
	runner Runner
}

// NewRouter ctx是进程生命周期的上下文,客户端断开不会中断正在进行的刷新
func NewRouter(ctx context.Context, runner Runner) *Router {
	return &Router{ctx: ctx, runner: runner}
}

// Handler 返回gin实现的http.Handler
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/run", r.handleRun)
	g.GET("/status", r.handleStatus)
	g.GET("/healthz", r.handleHealth)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer 在addr上创建HTTP服务,由调用方启动和关闭
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// 一次刷新包含最多3次页面加载和重试间隔
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
}

type messageResp struct {
	Message string `json:"message"`
}

type detailResp struct {
	Detail string `json:"detail"`
}

type healthResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleRun(c *gin.Context) {
	ctx := r.ctx
	if ctx == nil {
		ctx = context.WithoutCancel(c.Request.Context())
	}

	_, err := r.runner.Run(ctx)
	switch {
	case err == nil:
		writeJSON(c, http.StatusOK, messageResp{Message: RunMessage})
	case errors.Is(err, core.ErrRunInProgress):
		writeJSON(c, http.StatusConflict, detailResp{Detail: err.Error()})
	default:
		utils.Logger.Error().Err(err).Str("path", c.FullPath()).Msg("刷新请求失败")
		writeJSON(c, http.StatusInternalServerError, detailResp{Detail: err.Error()})
	}
}

func (r *Router) handleStatus(c *gin.Context) {
	report := r.runner.LastReport()
	if report == nil {
		writeJSON(c, http.StatusNotFound, detailResp{Detail: "no run has completed yet"})
		return
	}
	writeJSON(c, http.StatusOK, report)
}

func (r *Router) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, healthResp{OK: true})
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
