// Command admin provides user management and event utilities for operators.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"quill/internal/cache"
	"quill/internal/config"
	"quill/internal/database"
	"quill/internal/models"
	"quill/internal/notifications"
	"quill/internal/repository"
	"quill/internal/service"
)

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  go run ./cmd/admin set-role <user_id> <user|editor|admin>  - Change a user's role")
	fmt.Println("  go run ./cmd/admin list [role]                             - List users, optionally by role")
	fmt.Println("  go run ./cmd/admin watch                                   - Print published events")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	switch command := os.Args[1]; command {
	case "set-role":
		if len(os.Args) < 4 {
			printUsage()
			os.Exit(1)
		}
		setRole(ctx, users(cfg), os.Args[2], os.Args[3])

	case "list":
		role := ""
		if len(os.Args) > 2 {
			role = os.Args[2]
		}
		listUsers(ctx, cfg, role)

	case "watch":
		watch(cfg)

	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func users(cfg *config.Config) *service.UserService {
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	return service.NewUserService(repository.NewDatastore(db))
}

func setRole(ctx context.Context, svc *service.UserService, rawID, rawRole string) {
	id, err := strconv.ParseUint(rawID, 10, 32)
	if err != nil || id == 0 {
		log.Fatalf("Invalid user ID %q", rawID)
	}
	role, err := service.ParseRole(rawRole)
	if err != nil {
		log.Fatalf("%v", err)
	}

	user, err := svc.AssignRole(ctx, uint(id), role)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			fmt.Printf("User with ID %d not found\n", id)
			os.Exit(1)
		}
		log.Fatalf("Failed to change role: %v", err)
	}
	fmt.Printf("%s (ID: %d) is now %s\n", user.Name, user.ID, user.Role)
}

func listUsers(ctx context.Context, cfg *config.Config, rawRole string) {
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	filter := repository.UserFilter{Page: 1, PerPage: 100}
	if rawRole != "" {
		if filter.Role, err = service.ParseRole(rawRole); err != nil {
			log.Fatalf("%v", err)
		}
	}

	for {
		page, total, err := repository.NewDatastore(db).Users().List(ctx, filter)
		if err != nil {
			log.Fatalf("Failed to fetch users: %v", err)
		}
		if filter.Page == 1 && total == 0 {
			fmt.Println("No users found")
			return
		}
		for _, u := range page {
			fmt.Printf("ID: %d | %-6s | %s <%s>\n", u.ID, u.Role, u.Name, u.Email)
		}
		if int64(filter.Page*filter.PerPage) >= total {
			return
		}
		filter.Page++
	}
}

func watch(cfg *config.Config) {
	cache.InitRedis(cfg.RedisURL)
	notifier := notifications.NewNotifier(cache.GetClient())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := notifier.Subscribe(ctx, func(channel string, ev notifications.Event) {
		fmt.Printf("%s %-16s %s post=%d actor=%d comment=%d\n",
			ev.OccurredAt.Format("15:04:05"), ev.Type, channel, ev.PostID, ev.ActorID, ev.CommentID)
	})
	if err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}
	fmt.Println("Watching events, Ctrl+C to stop")
	<-ctx.Done()
}
