package main

import (
	"log"

	"github.com/kataras/iris/v12"

	"github.com/example/paygate/internal/config"
	"github.com/example/paygate/internal/gateway"
	"github.com/example/paygate/internal/infra/mq"
	"github.com/example/paygate/internal/notify"
	"github.com/example/paygate/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	// 外部凭证缺失直接拒绝启动
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	mqConn := mq.Init(&cfg.RabbitMQ)
	gw := gateway.NewXenditGateway(&cfg.Xendit)
	dispatcher := notify.NewDispatcher(mqConn, cfg.Notify.Queue)

	deps := server.BuildDeps(cfg, gw, dispatcher)

	app := iris.New()
	server.RegisterRoutes(app, deps)

	addr := cfg.Server.Addr()
	log.Printf("web server listening on %s", addr)
	if err := app.Run(iris.Addr(addr)); err != nil {
		log.Fatalf("failed to run web server: %v", err)
	}
}
