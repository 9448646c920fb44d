package server

import (
	"errors"
	"strconv"
	"strings"

	"github.com/kataras/iris/v12"

	"github.com/example/paygate/internal/auth"
	"github.com/example/paygate/internal/config"
	"github.com/example/paygate/internal/datamodels/order"
	"github.com/example/paygate/internal/datamodels/product"
	"github.com/example/paygate/internal/datamodels/user"
	"github.com/example/paygate/internal/service"
)

// productRequest 后台商品表单。指针字段区分「没传」和「传了零值」，
// 部分更新时只改请求里出现的字段。
type productRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Price       *int64  `json:"price"`
	Category    *string `json:"category"`
	ImageURL    *string `json:"image_url"`
	Status      *int    `json:"status"`
}

func (r *productRequest) applyTo(p *product.Product, partial bool) error {
	if r.Name != nil {
		if strings.TrimSpace(*r.Name) == "" {
			return errors.New("name is required")
		}
		p.Name = *r.Name
	} else if !partial {
		return errors.New("name is required")
	}
	if r.Price != nil {
		if *r.Price <= 0 {
			return errors.New("price must be positive")
		}
		p.Price = *r.Price
	} else if !partial {
		return errors.New("price is required")
	}
	if r.Description != nil {
		p.Description = *r.Description
	}
	if r.Category != nil {
		p.Category = *r.Category
	}
	if r.ImageURL != nil {
		p.ImageURL = *r.ImageURL
	}
	if r.Status != nil {
		p.Status = *r.Status
	}
	return nil
}

// RegisterAdminRoutes 注册后台管理端的 HTTP 路由。
// 端口通常是 8081，与前台 Web 服务分离，所有接口要求管理员身份。
func RegisterAdminRoutes(app *iris.Application, deps *Deps) {
	api := app.Party("/api", adminMiddleware(deps.Cfg, deps.TokenCache))

	// ---------- 商品管理 ----------

	api.Get("/products", func(ctx iris.Context) {
		list, err := deps.Products.ListAll(ctx.Request().Context())
		if err != nil {
			ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": "failed to list products"})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": list})
	})

	api.Post("/products", func(ctx iris.Context) {
		var req productRequest
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		p := &product.Product{Status: 1}
		if err := req.applyTo(p, false); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		if err := deps.Products.Create(ctx.Request().Context(), p); err != nil {
			ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": "failed to create product"})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": p})
	})

	api.Put("/products/{id:uint64}", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")
		p, err := deps.Products.GetByID(ctx.Request().Context(), int64(id))
		if err != nil {
			ctx.StopWithJSON(404, iris.Map{"code": 404, "msg": "product not found"})
			return
		}
		var req productRequest
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		if err := req.applyTo(p, true); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		if err := deps.Products.Update(ctx.Request().Context(), p); err != nil {
			ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": "failed to update product"})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": p})
	})

	api.Delete("/products/{id:uint64}", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")
		if err := deps.Products.Delete(ctx.Request().Context(), int64(id)); err != nil {
			ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": "failed to delete product"})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "deleted"})
	})

	// ---------- 订单管理 ----------

	api.Get("/orders", func(ctx iris.Context) {
		limitStr := ctx.URLParamDefault("limit", "20")
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			limit = 20
		}
		status := strings.ToUpper(ctx.URLParam("status"))
		if status != "" {
			if _, ok := service.MapStatus(status); !ok && status != order.StatusPending {
				ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": "unknown status filter"})
				return
			}
		}
		list, err := deps.Orders.List(ctx.Request().Context(), status, limit)
		if err != nil {
			ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": "failed to list orders"})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": list})
	})

	api.Get("/orders/{external_id:string}", func(ctx iris.Context) {
		o, err := deps.Orders.GetByExternalID(ctx.Request().Context(), ctx.Params().Get("external_id"))
		if err != nil {
			stopWithError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": o})
	})

	// ---------- 运营数据 ----------

	api.Get("/analytics", func(ctx iris.Context) {
		summary, err := deps.Orders.Analytics(ctx.Request().Context())
		if err != nil {
			ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": "failed to load analytics"})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": summary})
	})

	api.Get("/monitor", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"code": 0, "data": service.GetMonitor().Snapshot()})
	})
}

// adminMiddleware 管理端鉴权：要求合法 JWT 且 user_type 为 admin
func adminMiddleware(cfg *config.Config, cache *auth.TokenCache) iris.Handler {
	return func(ctx iris.Context) {
		if !authenticate(ctx, cfg, cache) {
			return
		}
		if ctx.Values().GetString("user_type") != user.TypeAdmin {
			ctx.StopWithJSON(403, iris.Map{"code": 403, "msg": "admin only"})
			return
		}
		ctx.Next()
	}
}
