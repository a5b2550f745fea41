package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cdas-go/internal/handler"
	"cdas-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 服务",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	// 导入预置文档目录（幂等），在后台进行，不阻塞服务启动
	if dir := a.cfg.Seed.Dir; dir != "" {
		go func() {
			if _, err := os.Stat(dir); err != nil {
				log.Infof("预置文档目录 '%s' 不可用，跳过初始化导入: %v", dir, err)
				return
			}
			res, err := a.inventory.SeedDirectory(ctx, dir)
			if err != nil {
				log.Warnf("初始化导入失败: %v", err)
				return
			}
			log.Infof("初始化导入完成: imported=%d skipped=%d failed=%d", res.Imported, res.Skipped, res.Failed)
		}()
	}

	gin.SetMode(a.cfg.Server.Mode)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", a.cfg.Server.Port),
		Handler: handler.NewRouter(a.inventory, a.subjects),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// 等待中断信号以实现优雅停机
	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP 服务监听失败: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("接收到停机信号，正在关闭服务...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP 服务器关闭失败: %w", err)
	}
	log.Info("服务已优雅关闭")
	return nil
}
