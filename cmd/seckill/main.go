// Command seckill 运行秒杀服务：HTTP 准入、店铺查询与异步落库。
//
//	seckill -config ./configs
//
// 配置文件为 <dir>/seckill.yaml，SECKILL_ 前缀的环境变量可覆盖任意键，
// SECKILL_ENV=prod 时额外合并 seckill.prod.yaml。
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/internal/app"
)

func main() {
	dir := flag.String("config", "./configs", "directory containing seckill.yaml")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *dir); err != nil {
		logger, _ := clog.New(clog.NewProdDefaultConfig("seckill"))
		if logger == nil {
			logger = clog.Discard()
		}
		logger.Error("seckill exited", clog.Error(err))
		logger.Flush()
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, dir string) error {
	cfg, err := app.Load(ctx, "seckill", "SECKILL", dir)
	if err != nil {
		return err
	}
	gin.SetMode(gin.ReleaseMode)

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

	if err := a.Prepare(ctx); err != nil {
		return err
	}
	return a.Run(ctx)
}
