package cmd

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

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	authclient "github.com/vibast-solutions/lib-go-auth/client"
	authmiddleware "github.com/vibast-solutions/lib-go-auth/middleware"
	authlibservice "github.com/vibast-solutions/lib-go-auth/service"
	"github.com/vibast-solutions/ms-go-ajo/app/auth"
	"github.com/vibast-solutions/ms-go-ajo/app/controller"
	ajogrpc "github.com/vibast-solutions/ms-go-ajo/app/grpc"
	"github.com/vibast-solutions/ms-go-ajo/app/notifier"
	"github.com/vibast-solutions/ms-go-ajo/config"
	"google.golang.org/grpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  "Start both HTTP (Echo) and gRPC servers for the ajo service.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

type httpControllers struct {
	payments *controller.PaymentController
	groups   *controller.GroupController
	admin    *controller.AdminController
}

func runServe(_ *cobra.Command, _ []string) {
	app, cleanup := mustCreateApp()
	defer cleanup()
	cfg := app.cfg

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		logrus.Fatal("JWT_SECRET is required to serve client requests")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := notifier.NewHub()
	go func() {
		if err := app.broker.Run(ctx, hub.Dispatch); err != nil && !errors.Is(err, context.Canceled) {
			logrus.WithError(err).Error("Notifier broker stopped")
		}
	}()

	controllers := httpControllers{
		payments: controller.NewPaymentController(app.payments, hub),
		groups:   controller.NewGroupController(app.groups),
		admin:    controller.NewAdminController(app.payments),
	}
	grpcAjoServer := ajogrpc.NewServer(app.payments)

	authGRPCClient, err := authclient.NewGRPCClientFromAddr(context.Background(), cfg.InternalEndpoints.AuthGRPCAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize auth gRPC client")
	}
	defer authGRPCClient.Close()

	internalAuthService := authlibservice.NewInternalAuthService(authGRPCClient)
	echoInternalAuthMiddleware := authmiddleware.NewEchoInternalAuthMiddleware(internalAuthService)
	grpcInternalAuthMiddleware := authmiddleware.NewGRPCInternalAuthMiddleware(internalAuthService)

	verifier := auth.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	e := setupHTTPServer(controllers, verifier, app.registry, echoInternalAuthMiddleware, cfg.App.ServiceName)
	grpcSrv, lis := setupGRPCServer(cfg, grpcAjoServer, grpcInternalAuthMiddleware, cfg.App.ServiceName)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	go func() {
		logrus.WithField("addr", lis.Addr().String()).Info("Starting gRPC server")
		if err := grpcSrv.Serve(lis); err != nil {
			logrus.WithError(err).Fatal("gRPC server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}
	grpcSrv.GracefulStop()
	cancel()

	logrus.Info("Server stopped")
}

func setupHTTPServer(
	controllers httpControllers,
	verifier *auth.TokenVerifier,
	registry *prometheus.Registry,
	internalAuthMiddleware *authmiddleware.EchoInternalAuthMiddleware,
	appServiceName string,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(ensureRequestID())
	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
				"request_id": v.RequestID,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	requireIdentity := auth.RequireIdentity(verifier)

	e.GET("/health", controllers.payments.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))

	// The gateway authenticates with the body signature, not a bearer token.
	e.POST("/webhooks/paystack", controllers.payments.HandleWebhook)

	registerPaymentRoutes(e, controllers.payments, verifier)

	groups := e.Group("/groups", requireIdentity)
	groups.POST("", controllers.groups.CreateGroup)
	groups.GET("/:id", controllers.groups.GetGroup)
	groups.GET("/:id/slots", controllers.groups.ListSlots)
	groups.POST("/:id/join-requests", controllers.groups.RequestSlot)
	groups.GET("/:id/join-requests", controllers.groups.ListJoinRequests)
	groups.GET("/:id/contributions", controllers.groups.ListContributions)

	joinRequests := e.Group("/join-requests", requireIdentity)
	joinRequests.POST("/:id/approve", controllers.groups.ApproveJoinRequest)
	joinRequests.POST("/:id/reject", controllers.groups.RejectJoinRequest)
	joinRequests.POST("/:id/withdraw", controllers.groups.WithdrawJoinRequest)

	admin := e.Group("/admin", requireIdentity, auth.RequireAdmin())
	admin.GET("/reconciliations", controllers.admin.ListReconciliations)
	admin.POST("/reconciliations/:id/resolve", controllers.admin.ResolveReconciliation)

	internal := e.Group("/internal", internalAuthMiddleware.RequireInternalAccess(appServiceName))
	internal.POST("/payments/:reference/reprocess", controllers.payments.ReprocessPayment)

	return e
}

// registerPaymentRoutes mounts the client payment endpoints. Verify, status and
// subscribe accept an expired session so a client can still follow a payment
// whose activation was deferred; ownership is checked either way.
func registerPaymentRoutes(e *echo.Echo, payments *controller.PaymentController, verifier *auth.TokenVerifier) {
	allowExpired := auth.AllowExpiredIdentity(verifier)

	g := e.Group("/payments")
	g.POST("/initialize", payments.InitializePayment, auth.RequireIdentity(verifier))
	g.POST("/verify", payments.VerifyPayment, allowExpired)
	g.GET("/:reference", payments.GetPayment, allowExpired)
	g.GET("/:reference/subscribe", payments.Subscribe, allowExpired)
}

// ensureRequestID keeps a caller supplied X-Request-ID and mints one otherwise;
// gateway webhooks never carry one.
func ensureRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				requestID = uuid.NewString()
				ctx.Request().Header.Set(echo.HeaderXRequestID, requestID)
			}
			ctx.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(ctx)
		}
	}
}

func setupGRPCServer(
	cfg *config.Config,
	ajoServer *ajogrpc.Server,
	internalAuthMiddleware *authmiddleware.GRPCInternalAuthMiddleware,
	appServiceName string,
) (*grpc.Server, net.Listener) {
	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	grpcSrv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			ajogrpc.RecoveryInterceptor(),
			ajogrpc.RequestIDInterceptor(),
			ajogrpc.LoggingInterceptor(),
			internalAuthMiddleware.UnaryRequireInternalAccess(appServiceName),
		),
	)
	ajogrpc.RegisterAjoInternalServiceServer(grpcSrv, ajoServer)

	return grpcSrv, lis
}
