package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/stemsi/schoolcbt/internal/config"
	"github.com/stemsi/schoolcbt/internal/database"
	"github.com/stemsi/schoolcbt/internal/logger"
	"github.com/stemsi/schoolcbt/internal/model"
	"github.com/stemsi/schoolcbt/internal/repository"
	"github.com/stemsi/schoolcbt/internal/service"
)

const minPasswordLength = 6

func main() {
	var in service.NewUser
	var role string
	flag.StringVar(&in.Name, "name", "", "Display name")
	flag.StringVar(&in.Email, "email", "", "Email (required for staff)")
	flag.StringVar(&role, "role", string(model.RoleTeacher), "student, teacher, admin or super_admin")
	flag.StringVar(&in.SchoolID, "school", "", "School id (not used for super_admin)")
	flag.StringVar(&in.ClassLevel, "class", "", "Class level (students)")
	flag.Parse()
	in.Role = model.Role(role)

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// Session bookkeeping lives in Redis and is not touched by provisioning.
	authService := service.NewAuthService(cfg, nil, repository.NewUserRepository(pool), log)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)
	fmt.Println("=== Create New User ===")

	if in.Name == "" {
		fmt.Print("Enter Name: ")
		name, _ := reader.ReadString('\n')
		in.Name = strings.TrimSpace(name)
	}
	if in.Name == "" {
		fmt.Println("Error: Name is required")
		os.Exit(1)
	}

	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading password")
		os.Exit(1)
	}
	in.Password = string(bytePassword)
	if len(in.Password) < minPasswordLength {
		fmt.Printf("Error: Password must be at least %d characters\n", minPasswordLength)
		os.Exit(1)
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	user, err := authService.CreateUser(ctx, in)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			for field, msg := range verr.Fields {
				fmt.Printf("Error: %s: %s\n", field, msg)
			}
			os.Exit(1)
		}
		log.Fatal().Err(err).Msg("Failed to create user")
	}

	fmt.Printf("\nSuccess! %s '%s' created with unique id %s\n", user.Role, user.Name, user.UniqueID)
}
