package main

import (
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sh-games/battleship-backend/pkg/config"
	"github.com/sh-games/battleship-backend/pkg/server"
)

var (
	configPath   = flag.String("config", getEnvOrDefault("CONFIG_PATH", "config.yaml"), "Path to the server config file")
	frontendHost = flag.String("frontendHost", os.Getenv("FRONTEND_HOST"), "The frontend host allowed to connect")
)

// getEnvOrDefault tries to get an Environment variable or returns a
// default if it doesn't exist
func getEnvOrDefault(key, def string) string {
	env, ok := os.LookupEnv(key)
	if ok {
		return env
	}
	return def
}

// checkOrigin checks a requests origin, returning true if the origin
// is valid. An unset frontend host allows any origin.
func checkOrigin(r *http.Request) bool {
	if *frontendHost == "" {
		return true
	}
	origin := r.Header.Get("Origin")
	return strings.Contains(origin, *frontendHost)
}

func main() {
	flag.Parse()
	rand.Seed(time.Now().UnixNano())

	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.ParseConfig(*configPath)

	// Start-up the server
	log.Info(fmt.Sprintf("Starting the Battleship server for %d players", cfg.MaxPlayers))
	s := server.NewServer(log, cfg, checkOrigin)
	s.Start()
}
