package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/cppla/xkcdviews/config"
	"github.com/cppla/xkcdviews/models"
	"github.com/cppla/xkcdviews/routes"
	"github.com/cppla/xkcdviews/store"
	"github.com/cppla/xkcdviews/utils"
)

func main() {
	configPath := flag.String("config", "", "path to config.json (default $CONFIG_PATH or config/config.json)")
	issueToken := flag.String("issue-admin-token", "", "print an admin token for the given name and exit")
	flag.Parse()

	cfg := config.Load(*configPath)

	if *issueToken != "" {
		token, err := utils.GenerateToken(cfg.JWTSecret, *issueToken, utils.RoleAdmin, time.Duration(cfg.AdminTokenTTLHours)*time.Hour)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	if cfg.JWTSecret == "" {
		utils.Sugar.Warn("JWT_SECRET is not set; admin routes will reject every request")
	}

	db := config.InitDatabase(cfg, &models.ComicViewCounter{}, &models.ComicDailyView{})

	var s store.Store = store.NewGormStore(db)
	rc := utils.NewRedis(cfg)
	if rc != nil {
		s = store.NewCachedStore(s, rc, time.Duration(cfg.CacheTTLSeconds)*time.Second, utils.Logger.Named("cache"))
	}

	r := routes.SetupRouter(cfg, s)

	closeResources := func() {
		if rc != nil {
			_ = rc.Close()
		}
		if sqlDB, err := config.DB().DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	utils.Sugar.Infof("Starting server on port %s (graceful), db=%s cache=%t", cfg.AppPort, cfg.DBDriver, rc != nil)
	if err := utils.GraceServer(":"+cfg.AppPort, r, closeResources); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
