// Package main provides staff account management for CarKey.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"carkey/internal/config"
	"carkey/internal/database"
	"carkey/internal/models"
	"carkey/internal/repository"
	"carkey/internal/service"

	"gorm.io/gorm"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage:")
		fmt.Println("  go run ./cmd/admin promote <username>   - Grant staff access")
		fmt.Println("  go run ./cmd/admin demote <username>    - Revoke staff access")
		fmt.Println("  go run ./cmd/admin list-staff           - List staff accounts")
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	users := service.NewUserService(repository.NewUserRepository(db), nil)
	ctx := context.Background()

	switch command := os.Args[1]; command {
	case "promote", "demote":
		if len(os.Args) < 3 {
			fmt.Printf("Usage: go run ./cmd/admin %s <username>\n", command)
			os.Exit(1)
		}
		setStaff(ctx, users, os.Args[2], command == "promote")
	case "list-staff":
		listStaff(ctx, db)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}

func setStaff(ctx context.Context, users *service.UserService, username string, staff bool) {
	user, err := users.SetStaffByUsername(ctx, username, staff)
	if err != nil {
		if models.ErrorCode(err) == models.CodeNotFound {
			fmt.Printf("User %q not found\n", username)
			os.Exit(1)
		}
		log.Fatalf("Failed to update user: %v", err)
	}

	verb := "revoked staff access from"
	if staff {
		verb = "granted staff access to"
	}
	fmt.Printf("Successfully %s %s (ID: %d)\n", verb, user.Username, user.ID)
}

func listStaff(ctx context.Context, db *gorm.DB) {
	var staff []models.User
	if err := db.WithContext(ctx).Where("is_staff = ?", true).Order("id").Find(&staff).Error; err != nil {
		log.Fatalf("Failed to fetch staff: %v", err)
	}

	if len(staff) == 0 {
		fmt.Println("No staff accounts found")
		return
	}

	fmt.Println("Staff accounts:")
	for _, u := range staff {
		fmt.Printf("  ID: %d | Username: %s | Email: %s\n", u.ID, u.Username, u.Email)
	}
}
