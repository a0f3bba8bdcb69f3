package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/chachabrian/rentcar-backend/internal/config"
	"github.com/chachabrian/rentcar-backend/internal/database"
	"github.com/chachabrian/rentcar-backend/internal/handlers"
	"github.com/chachabrian/rentcar-backend/internal/logger"
	"github.com/chachabrian/rentcar-backend/internal/middleware"
	"github.com/chachabrian/rentcar-backend/internal/models"
	"github.com/chachabrian/rentcar-backend/internal/services"
	"github.com/chachabrian/rentcar-backend/pkg/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/juju/clock"
	"go.uber.org/zap"
)

func main() {
	opts, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(opts.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, opts *config.Options, zl *zap.Logger) error {
	db, err := database.Open(opts.DSN(), zl)
	if err != nil {
		return err
	}
	if err := database.RunMigrations(db); err != nil {
		return err
	}

	clk := clock.WallClock

	// Settings cache (Redis or in-process fallback)
	var cache services.Cache
	if opts.RedisURL != "" {
		rdb, err := services.NewRedisClient(ctx, opts.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		cache = services.NewRedisCache(rdb, "rentcar:")
		zl.Info("settings cache backed by redis")
	} else {
		cache = services.NewMemoryCache(clk)
		zl.Info("REDIS_URL not set, caching settings in memory")
	}

	// Storage (S3 or local fallback)
	var files services.FileStore
	var localRoot string
	if opts.AWSBucket != "" {
		files, err = services.NewS3Store(services.S3Config{
			Region:    opts.AWSRegion,
			AccessKey: opts.AWSAccessKey,
			SecretKey: opts.AWSSecretKey,
			Bucket:    opts.AWSBucket,
		})
		if err != nil {
			return err
		}
	} else {
		local, err := services.NewLocalStore(opts.UploadDir, opts.BaseURL)
		if err != nil {
			return err
		}
		files, localRoot = local, local.Root()
		zl.Warn("AWS_S3_BUCKET not set, storing uploads on local disk", zap.String("dir", localRoot))
	}

	encrypter, err := services.NewAEADEncrypter(opts.AppKey)
	if err != nil {
		return err
	}
	tokens := utils.NewTokenManager(opts.JWTSecret, opts.TokenTTL)

	hub := services.NewHub(zl.Named("ws"))
	go hub.Run(ctx)

	listeners := []services.BookingListener{hub}
	if opts.FirebaseServiceAccountPath != "" {
		sender, err := services.NewMessagingClient(ctx, opts.FirebaseServiceAccountPath)
		if err != nil {
			// Push notifications are optional
			zl.Warn("firebase initialization failed", zap.Error(err))
		} else {
			listeners = append(listeners, services.NewPushNotifier(db, sender, zl.Named("push")))
		}
	}

	accounts := services.NewAccountService(db, tokens, zl)
	bookings := services.NewBookingService(db, clk, zl, listeners...)
	cars := services.NewCarService(db, files, clk, zl)
	payments := services.NewPaymentService(db, bookings, clk, zl)
	settings := services.NewSettingsStore(db, cache, encrypter, files, clk, zl)
	settings.SetCacheTTL(opts.SettingsCacheTTL)
	verifications := services.NewVerificationService(db, files, zl)
	promotions := services.NewPromotionService(db, zl)
	reports := services.NewReportService(db, clk, zl)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(zl.Named("http")))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOriginFunc = func(string) bool { return true }
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	r.Use(cors.New(corsConfig))

	if localRoot != "" {
		r.Static("/uploads", localRoot)
	}

	auth := middleware.AuthMiddleware(accounts)

	api := r.Group("/api")
	{
		// Public routes
		api.POST("/register", handlers.Register(accounts))
		api.POST("/login", handlers.Login(accounts))
		api.GET("/cars", handlers.ListCars(cars, files))
		api.GET("/cars/:id", handlers.GetCar(cars, files))

		// Renter routes
		protected := api.Group("/")
		protected.Use(auth)
		{
			protected.GET("/user", handlers.CurrentUser())
			protected.POST("/logout", handlers.Logout(accounts))
			protected.POST("/device-token", handlers.RegisterDevice(accounts))
			protected.GET("/my-bookings", handlers.GetMyBookings(bookings))
			protected.POST("/bookings", handlers.CreateBooking(bookings))
			protected.POST("/payments", handlers.CreatePayment(payments))
			protected.GET("/documents", handlers.GetMyDocuments(verifications, files))
			protected.POST("/documents", handlers.SubmitDocument(verifications, files))
		}

		api.POST("/admin/login", handlers.AdminLogin(accounts))

		staff := []models.Role{models.RoleAdmin, models.RoleOwner, models.RoleCashier}
		admin := api.Group("/admin")
		admin.Use(auth, middleware.RequireRole(staff...))
		{
			admin.GET("/ws", handlers.WebSocketHandler(hub))
			admin.POST("/logout", handlers.Logout(accounts))
			admin.GET("/dashboard", handlers.GetDashboard(reports))
			admin.GET("/reports", handlers.GetReport(reports))

			bk := admin.Group("/bookings")
			{
				bk.GET("", handlers.AdminListBookings(bookings))
				bk.POST("", handlers.AdminCreateBooking(bookings))
				bk.POST("/bulk-update-status", handlers.BulkUpdateBookingStatus(bookings))
				bk.GET("/:id", handlers.GetBooking(bookings))
				bk.PATCH("/:id/status", handlers.UpdateBookingStatus(bookings))
				bk.DELETE("/:id", handlers.DeleteBooking(bookings))
			}

			cr := admin.Group("/cars")
			{
				cr.GET("", handlers.AdminListCars(cars, files))
				cr.POST("", handlers.CreateCar(cars, files))
				cr.POST("/bulk-update-status", handlers.BulkUpdateCarStatus(cars))
				cr.GET("/:id", handlers.GetCar(cars, files))
				cr.POST("/:id", handlers.UpdateCar(cars, files))
				cr.PUT("/:id", handlers.UpdateCar(cars, files))
				cr.DELETE("/:id", handlers.DeleteCar(cars))
			}

			pm := admin.Group("/payments")
			{
				pm.GET("", handlers.AdminListPayments(payments))
				pm.PATCH("/:id/status", handlers.UpdatePaymentStatus(payments))
			}

			vf := admin.Group("/verifications")
			{
				vf.GET("", handlers.ListPendingDocuments(verifications, files))
				vf.PUT("/documents/:id", handlers.ReviewDocument(verifications))
			}

			pr := admin.Group("/promotions")
			{
				pr.GET("", handlers.ListPromotions(promotions))
				pr.POST("", handlers.CreatePromotion(promotions))
				pr.PUT("/:id", handlers.UpdatePromotion(promotions))
				pr.DELETE("/:id", handlers.DeletePromotion(promotions))
			}

			managers := middleware.RequireRole(models.RoleAdmin, models.RoleOwner)
			us := admin.Group("/users", managers)
			{
				us.GET("", handlers.ListUsers(accounts))
				us.POST("", handlers.CreateUser(accounts))
				us.PUT("/:id", handlers.UpdateUser(accounts))
				us.DELETE("/:id", handlers.DeleteUser(accounts))
			}

			st := admin.Group("/settings", managers)
			{
				st.GET("", handlers.GetSettings(settings))
				st.POST("", handlers.UpdateSettings(settings))
				st.PUT("", handlers.UpdateSettings(settings))
				st.GET("/changes", handlers.GetSettingChanges(settings))
				st.PUT("/password", middleware.RequireRole(models.RoleAdmin), handlers.ChangeAdminPassword(settings, accounts))
			}
		}
	}

	srv := &http.Server{
		Addr:    ":" + opts.Port,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
