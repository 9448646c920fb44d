package main

import (
	"context"
	"log"

	"github.com/example/paygate/internal/config"
	"github.com/example/paygate/internal/datamodels/product"
	"github.com/example/paygate/internal/repository/mysql"
	"github.com/example/paygate/internal/service"
)

// 初始商品目录
var products = []*product.Product{
	{Name: "20mm x 20M Industrial Tape", Category: "industrial", Price: 20000, Status: 1},
	{Name: "15mm x 15M Black Tape", Category: "hard", Price: 9000, Status: 1},
	{Name: "10mm x 30M Clear Tape", Category: "clear", Price: 15000, Status: 1},
	{Name: "5mm x 10M Clear Tape", Category: "clear", Price: 12000, Status: 1},
	{Name: "10mm x 25M Yellow Tape", Category: "paper", Price: 25000, Status: 1},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db := mysql.Init(&cfg.MySQL)
	ctx := context.Background()

	seedProducts(ctx, mysql.NewProductRepository(db))

	// 后台接口只认管理员 JWT，初始管理员必须在这里落地
	admin, created, err := service.EnsureAdminUser(ctx, mysql.NewUserRepository(db), &cfg.Admin)
	if err != nil {
		log.Fatalf("failed to seed admin user: %v", err)
	}
	if created {
		log.Printf("seeded admin user %s", admin.Email)
	} else {
		log.Printf("admin user %s already present, skipping", admin.Email)
	}
}

func seedProducts(ctx context.Context, repo product.Repository) {
	existing, err := repo.ListAll(ctx)
	if err != nil {
		log.Fatalf("failed to list products: %v", err)
	}
	if len(existing) > 0 {
		log.Printf("products already seeded (%d found), skipping", len(existing))
		return
	}
	for _, p := range products {
		if err := repo.Create(ctx, p); err != nil {
			log.Fatalf("failed to seed product %q: %v", p.Name, err)
		}
	}
	log.Printf("seeded %d products", len(products))
}
