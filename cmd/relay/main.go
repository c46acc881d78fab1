package main

import (
	"log/slog"
	"os"
	"time"

	httpapi "github.com/huddlekit/huddle/internal/api/http"
	"github.com/huddlekit/huddle/internal/config"
	"github.com/huddlekit/huddle/internal/repository"
	"github.com/huddlekit/huddle/internal/repository/model"
	"github.com/huddlekit/huddle/internal/service"
	"github.com/huddlekit/huddle/lib/logger/slogpretty"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	var (
		roomRepo repository.RoomRepository
		userRepo repository.UserRepository
	)
	if cfg.Database.DSN != "" {
		db, err := connectDatabase(cfg.Database)
		if err != nil {
			log.Error("failed to connect database", slog.Any("error", err))
			os.Exit(1)
		}
		roomRepo = repository.NewPostgresRoomRepository(db)
		userRepo = repository.NewPostgresUserRepository(db)
		log.Info("room registry backed by postgres")
	} else {
		roomRepo = repository.NewInMemoryRoomRepository()
		userRepo = repository.NewInMemoryUserRepository()
		log.Info("room registry kept in memory")
	}

	roomService := service.NewRoomService(roomRepo, userRepo, log, cfg.Relay.ReconnectGrace, cfg.Relay.RoomLifetime)
	userService := service.NewUserService(userRepo, log)

	roomController := httpapi.NewRoomController(roomService, userService)
	userController := httpapi.NewUserController(userService)
	sessions := httpapi.NewSessionHandler(roomService, userService, log)

	router := httpapi.SetupRouter(roomController, userController, sessions, cfg.HTTP.AllowedOrigins)

	log.Info("starting relay",
		slog.String("addr", cfg.HTTP.Address),
		slog.String("env", cfg.Env),
	)
	if err := router.Run(cfg.HTTP.Address); err != nil {
		log.Error("http server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

func connectDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&model.User{}, &model.Room{}, &model.Participant{}); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}
