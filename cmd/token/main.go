package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"ledger-sync/internal/config"
	"ledger-sync/pkg/utils"
)

// Mints a signed bearer token for calling the sync API, e.g.
//
//	go run ./cmd/token -user ops-1 -roles operator -ttl 12h
func main() {
	userID := flag.String("user", "", "user id recorded as pushed_by")
	roles := flag.String("roles", utils.RoleOperator, "comma separated roles")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *userID == "" {
		log.Fatal("-user is required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	utils.SetSecret(cfg.JWTSecret)

	var roleList []string
	for _, r := range strings.Split(*roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roleList = append(roleList, r)
		}
	}

	token, err := utils.GenerateToken(*userID, roleList, *ttl)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(token)
}
