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
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	mqConn := mq.Init(&cfg.RabbitMQ)
	gw := gateway.NewXenditGateway(&cfg.Xendit)
	dispatcher := notify.NewDispatcher(mqConn, cfg.Notify.Queue)

	deps := server.BuildDeps(cfg, gw, dispatcher)

	app := iris.New()
	server.RegisterAdminRoutes(app, deps)

	addr := cfg.AdminServer.Addr()
	log.Printf("admin server listening on %s", addr)
	if err := app.Run(iris.Addr(addr)); err != nil {
		log.Fatalf("failed to run admin server: %v", err)
	}
}
