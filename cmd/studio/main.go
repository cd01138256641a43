package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/miludeerforest/abp-studio-sub001/internal/app"
	"github.com/miludeerforest/abp-studio-sub001/internal/app/api"
	"github.com/miludeerforest/abp-studio-sub001/pkg/config"
	"github.com/miludeerforest/abp-studio-sub001/pkg/utils"
)

func main() {
	cfg, err := config.LoadStudioConfig()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	bootstrap, err := app.NewBootstrap(context.Background(), cfg)
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}

	application := api.NewApp(bootstrap)

	addr := fmt.Sprintf(":%d", utils.DefaultInt(cfg.API.Port, 8080))

	go func() {
		if err := application.Run(addr); err != nil && err != http.ErrServerClosed {
			log.Printf("面板服务异常退出: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := application.Shutdown(ctx); err != nil {
		log.Printf("关闭失败: %v", err)
	}
	log.Println("面板服务已关闭")
}
