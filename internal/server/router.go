package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/kataras/iris/v12"

	"github.com/example/paygate/internal/auth"
	"github.com/example/paygate/internal/config"
	"github.com/example/paygate/internal/datamodels/product"
	"github.com/example/paygate/internal/datamodels/user"
	"github.com/example/paygate/internal/errs"
	"github.com/example/paygate/internal/gateway"
	"github.com/example/paygate/internal/infra/redis"
	"github.com/example/paygate/internal/middleware"
	"github.com/example/paygate/internal/repository/mysql"
	"github.com/example/paygate/internal/service"
)

// Deps 路由依赖集合。网关、通知等外部客户端显式注入，
// 测试时替换为假实现。
type Deps struct {
	Cfg        *config.Config
	Checkout   *service.CheckoutService
	Reconcile  *service.ReconcileService
	Users      *service.UserService
	Products   *service.ProductService
	Orders     *service.OrderService
	TokenCache *auth.TokenCache
}

// BuildDeps 按生产配置组装依赖
func BuildDeps(cfg *config.Config, gw gateway.InvoiceGateway, dispatcher service.NotifyDispatcher) *Deps {
	db := mysql.Init(&cfg.MySQL)
	redisClient := redis.Init(&cfg.Redis)

	orderRepo := mysql.NewOrderRepository(db)
	productRepo := mysql.NewProductRepository(db)
	userRepo := mysql.NewUserRepository(db)

	verifier := service.NewStaticTokenVerifier(cfg.Xendit.CallbackToken)

	return &Deps{
		Cfg:        cfg,
		Checkout:   service.NewCheckoutService(orderRepo, gw, dispatcher, cfg.Notify.DefaultCountryCode),
		Reconcile:  service.NewReconcileService(orderRepo, dispatcher, verifier, cfg.Notify.DefaultCountryCode, &cfg.Webhook),
		Users:      service.NewUserService(userRepo, &cfg.JWT, redisClient, dispatcher, cfg.Notify.DefaultCountryCode),
		Products:   service.NewProductService(productRepo),
		Orders:     service.NewOrderService(orderRepo),
		TokenCache: auth.NewTokenCache(redisClient, 10*time.Minute),
	}
}

// RegisterRoutes 注册前台 HTTP 路由
func RegisterRoutes(app *iris.Application, deps *Deps) {
	cfg := deps.Cfg
	api := app.Party("/api")

	// 健康检查
	api.Get("/health", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"code": 0, "msg": "ok"})
	})

	// ---------- 注册 / 验证 / 登录 ----------

	api.Post("/signup", func(ctx iris.Context) {
		var req service.SignupRequest
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		u, err := deps.Users.Signup(ctx.Request().Context(), &req)
		if err != nil {
			stopWithError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": iris.Map{
			"user_id": u.ID,
			"message": "verification code sent to your WhatsApp",
		}})
	})

	api.Post("/verify", func(ctx iris.Context) {
		var req struct {
			UserID int64  `json:"user_id"`
			Code   string `json:"code"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		if err := deps.Users.Verify(ctx.Request().Context(), req.UserID, req.Code); err != nil {
			stopWithError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "verified"})
	})

	api.Post("/resend-verification", func(ctx iris.Context) {
		var req struct {
			UserID int64 `json:"user_id"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		if err := deps.Users.ResendVerification(ctx.Request().Context(), req.UserID); err != nil {
			stopWithError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "verification code resent"})
	})

	api.Post("/login", func(ctx iris.Context) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		token, err := deps.Users.Login(ctx.Request().Context(), req.Email, req.Password)
		if err != nil {
			stopWithError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": iris.Map{"token": token}})
	})

	// ---------- 商品目录 ----------

	api.Get("/products", func(ctx iris.Context) {
		category := ctx.URLParam("category")
		keyword := ctx.URLParam("q")
		var list []*product.Product
		var err error
		if category != "" {
			list, err = deps.Products.ListByCategory(ctx.Request().Context(), category)
		} else {
			list, err = deps.Products.ListOnline(ctx.Request().Context())
		}
		if err != nil {
			ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": "failed to list products"})
			return
		}

		// 带关键字时在内存中按名称做简单过滤
		if keyword != "" {
			kw := strings.ToLower(keyword)
			filtered := make([]*product.Product, 0, len(list))
			for _, p := range list {
				if strings.Contains(strings.ToLower(p.Name), kw) {
					filtered = append(filtered, p)
				}
			}
			list = filtered
		}

		ctx.JSON(iris.Map{"code": 0, "data": list})
	})

	api.Get("/products/{id:uint64}", func(ctx iris.Context) {
		pid, _ := ctx.Params().GetUint64("id")
		p, err := deps.Products.GetByID(ctx.Request().Context(), int64(pid))
		if err != nil || p == nil || p.Status != 1 {
			ctx.StopWithJSON(404, iris.Map{"code": 404, "msg": "product not found"})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": p})
	})

	// ---------- 下单 ----------

	// 响应体是与前端/网关的既有契约，不走 code/data 包装
	api.Post("/checkout", middleware.CheckoutRateLimit(), func(ctx iris.Context) {
		var req service.CheckoutRequest
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"error": "invalid request body"})
			return
		}
		result, err := deps.Checkout.Checkout(ctx.Request().Context(), &req)
		if err != nil {
			switch {
			case errs.IsValidation(err):
				ctx.StopWithJSON(400, iris.Map{"error": err.Error()})
			case errors.Is(err, errs.ErrGateway):
				ctx.StopWithJSON(502, iris.Map{"error": "failed to create payment invoice"})
			default:
				ctx.StopWithJSON(500, iris.Map{"error": "internal server error"})
			}
			return
		}
		ctx.JSON(result)
	})

	// ---------- 支付网关回调 ----------

	api.Post("/webhook/xendit", middleware.WebhookRateLimit(), webhookHandler(deps.Reconcile))

	// ---------- 需要登录的接口 ----------

	authAPI := api.Party("/", authMiddleware(cfg, deps.TokenCache))

	authAPI.Get("/orders/{external_id:string}", func(ctx iris.Context) {
		externalID := ctx.Params().Get("external_id")
		o, err := deps.Orders.GetByExternalID(ctx.Request().Context(), externalID)
		if err != nil {
			stopWithError(ctx, err)
			return
		}
		// 只有本人或管理员可以看单
		email := ctx.Values().GetString("email")
		userType := ctx.Values().GetString("user_type")
		if userType != user.TypeAdmin && !strings.EqualFold(o.CustomerEmail, email) {
			ctx.StopWithJSON(403, iris.Map{"code": 403, "msg": "forbidden"})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": o})
	})
}

// webhookHandler 对账回调入口。响应码语义：
// 2xx 处理完成（含幂等 no-op 与未知状态），网关不会重试；
// 4xx 载荷或凭证问题，重试无意义；5xx 存储故障，期待网关重试。
func webhookHandler(reconcile *service.ReconcileService) iris.Handler {
	return func(ctx iris.Context) {
		token := ctx.GetHeader("x-callback-token")

		var payload service.WebhookPayload
		if err := ctx.ReadJSON(&payload); err != nil {
			ctx.StopWithJSON(400, iris.Map{"message": "invalid webhook body"})
			return
		}

		result, err := reconcile.Reconcile(ctx.Request().Context(), token, &payload)
		if err != nil {
			switch {
			case errors.Is(err, errs.ErrUnauthorized):
				ctx.StopWithJSON(401, iris.Map{"message": "invalid callback token"})
			case errs.IsValidation(err):
				ctx.StopWithJSON(400, iris.Map{"message": err.Error()})
			case errors.Is(err, errs.ErrNotFound):
				ctx.StopWithJSON(404, iris.Map{
					"message":              "Order not found for the provided external_id",
					"received_external_id": payload.ExternalID,
				})
			default:
				ctx.StopWithJSON(500, iris.Map{"message": "internal server error during webhook processing"})
			}
			return
		}

		if result.Ignored {
			ctx.JSON(iris.Map{
				"message":      "Webhook received, unrecognized status ignored",
				"external_id":  result.ExternalID,
				"processed_at": time.Now().UTC().Format(time.RFC3339),
			})
			return
		}

		ctx.JSON(iris.Map{
			"message":                    "Webhook processed successfully",
			"order_id":                   strconv.FormatInt(result.OrderID, 10),
			"external_id":                result.ExternalID,
			"old_status":                 result.OldStatus,
			"new_status":                 result.NewStatus,
			"whatsapp_notification_sent": result.NotificationSent,
			"processed_at":               time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// authenticate 解析登录态并写入请求上下文，失败时已写好 401 响应
func authenticate(ctx iris.Context, cfg *config.Config, cache *auth.TokenCache) bool {
	token := strings.TrimPrefix(ctx.GetHeader("Authorization"), "Bearer ")
	if token == "" {
		ctx.StopWithJSON(401, iris.Map{"code": 401, "msg": "missing token"})
		return false
	}

	var claims *auth.Claims
	if cache != nil {
		if cached, ok, err := cache.Get(ctx.Request().Context(), token); err == nil && ok {
			claims = cached
		}
	}
	if claims == nil {
		parsed, err := auth.ParseToken(&cfg.JWT, token)
		if err != nil {
			ctx.StopWithJSON(401, iris.Map{"code": 401, "msg": "invalid token"})
			return false
		}
		claims = parsed
		if cache != nil {
			_ = cache.Set(ctx.Request().Context(), token, claims)
		}
	}

	ctx.Values().Set("user_id", claims.UserID)
	ctx.Values().Set("email", claims.Email)
	ctx.Values().Set("user_type", claims.UserType)
	return true
}

// authMiddleware 登录态校验，解析结果带 Redis 缓存
func authMiddleware(cfg *config.Config, cache *auth.TokenCache) iris.Handler {
	return func(ctx iris.Context) {
		if !authenticate(ctx, cfg, cache) {
			return
		}
		ctx.Next()
	}
}

// stopWithError 业务错误到 HTTP 状态码的统一映射，不透出内部细节
func stopWithError(ctx iris.Context, err error) {
	switch {
	case errs.IsValidation(err):
		ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
	case errors.Is(err, errs.ErrUnauthorized):
		ctx.StopWithJSON(401, iris.Map{"code": 401, "msg": "unauthorized"})
	case errors.Is(err, errs.ErrNotFound):
		ctx.StopWithJSON(404, iris.Map{"code": 404, "msg": "not found"})
	case errors.Is(err, errs.ErrConflict):
		ctx.StopWithJSON(409, iris.Map{"code": 409, "msg": "already exists"})
	case errors.Is(err, errs.ErrGateway):
		ctx.StopWithJSON(502, iris.Map{"code": 502, "msg": "upstream gateway error"})
	default:
		ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": "internal server error"})
	}
}
