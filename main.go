package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"PPGate/global"
	"PPGate/logger"
	mid "PPGate/middleware"
	midsec "PPGate/middleware/security"
	chatapi "PPGate/module/chat"
	"PPGate/module/user"
	usersvc "PPGate/module/user/service"
	"PPGate/service/chat"
	"PPGate/service/nacos"
)

func main() {
	cfg, src := loadConfig()
	logger.Setup(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	defer logger.Sync()

	if src != nil {
		defer src.Close()
		if err := global.WatchNacos(src); err != nil {
			logger.Warn("nacos watch failed", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := global.Build(ctx, cfg)
	if err != nil {
		logger.Log.Fatal("open resources", zap.Error(err))
	}

	// 1) gateway
	g, err := chat.NewServer(cfg.ChatOptions(), res.Verifier, res.Messages, res.Objects, res.Events)
	if err != nil {
		logger.Log.Fatal("create gateway", zap.Error(err))
	}

	// 2) middleware
	mid.Manager().Add(mid.Origin(cfg.HTTP.ClientURL))
	mid.Manager().SetAuth(midsec.Middleware(midsec.Options{
		Verifier:   res.Verifier,
		CookieName: cfg.Auth.CookieName,
	}))

	// 3) gRPC health
	gs, healthServer := startGRPC(cfg.GRPC.Addr)

	// 4) HTTP + WebSocket
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), mid.Manager().Use())

	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	svc := usersvc.New(res.Users, res.Auth)
	user.NewHandler(svc, cfg.Auth.CookieName, strings.HasPrefix(cfg.HTTP.ClientURL, "https://")).Routes(r)
	chatapi.NewHandler(res.Messages, res.Objects).Routes(r)
	r.GET("/ws", g.HandleWS)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(g.Metrics().Registry, promhttp.HandlerOpts{})))

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("[HTTP] listening", zap.String("addr", cfg.HTTP.Addr), zap.String("gateway", cfg.Gateway.ID))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	if healthServer != nil {
		healthServer.Shutdown()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", zap.Error(err))
	}
	// hijacked websocket connections are not covered by srv.Shutdown
	g.Close()
	if gs != nil {
		gs.GracefulStop()
	}
	if err := res.Close(shutdownCtx); err != nil {
		logger.Warn("close resources", zap.Error(err))
	}
}

// loadConfig reads Nacos when PPGATE_NACOS_ADDR is set, else the YAML file
// named by PPGATE_CONFIG (optional).
func loadConfig() (*global.AppConfig, *nacos.Source) {
	if opts, ok := nacos.OptionsFromEnv(os.Environ()); ok {
		src, err := nacos.NewSource(opts)
		if err != nil {
			logger.Log.Fatal("nacos client", zap.Error(err))
		}
		cfg, err := global.LoadFromNacos(src)
		if err != nil {
			logger.Log.Fatal("load nacos config", zap.Error(err))
		}
		return cfg, src
	}
	cfg, err := global.Load(os.Getenv("PPGATE_CONFIG"))
	if err != nil {
		logger.Log.Fatal("load config", zap.Error(err))
	}
	return cfg, nil
}

func startGRPC(addr string) (*grpc.Server, *health.Server) {
	if addr == "" {
		return nil, nil
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Log.Fatal("gRPC listen failed", zap.String("addr", addr), zap.Error(err))
	}
	gs := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(gs, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("ppgate.Gateway", healthpb.HealthCheckResponse_SERVING)

	go func() {
		logger.Info("[gRPC] listening", zap.String("addr", addr))
		if err := gs.Serve(lis); err != nil {
			logger.Error("gRPC server failed", zap.Error(err))
		}
	}()
	return gs, healthServer
}
