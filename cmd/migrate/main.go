package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"gatehouse.org/internal/auth"
	"gatehouse.org/internal/migrate"
	"gatehouse.org/internal/store/pg"
)

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv("GATEHOUSE_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "ops/migrations/sql", "Path to SQL migrations")
		seedsPath      = flag.String("seeds", "ops/migrations/seeds", "Path to SQL seeds")
		rootEmail      = flag.String("root-email", "root@localhost", "Email for the bootstrap root user")
		rootUsername   = flag.String("root-username", "root", "Username for the bootstrap root user")
		rootPassword   = flag.String("root-password", os.Getenv("GATEHOUSE_ROOT_PASSWORD"), "Password for the bootstrap root user")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or GATEHOUSE_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status|root]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer func() { _ = store.Close() }()

	mgr := migrate.NewManager(store.DB(), *migrationsPath, *seedsPath)

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	case "root":
		err = bootstrapRoot(ctx, store, *rootEmail, *rootUsername, *rootPassword)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

// bootstrapRoot creates the initial administrator holding the SUPERUSER
// role. Requires seeded permissions and roles.
func bootstrapRoot(ctx context.Context, store *pg.Store, email, username, password string) error {
	if password == "" {
		return fmt.Errorf("missing root password: provide via -root-password or GATEHOUSE_ROOT_PASSWORD")
	}

	rbac, err := auth.NewRBACService(store, store)
	if err != nil {
		return err
	}

	roles, _, err := rbac.ListRoles(ctx, auth.Page{Page: 1, Limit: 100, Search: auth.RoleSuperuser})
	if err != nil {
		return fmt.Errorf("list roles: %w", err)
	}
	var superuser *auth.Role
	for i := range roles {
		if roles[i].Code == auth.RoleSuperuser {
			superuser = &roles[i]
			break
		}
	}
	if superuser == nil {
		return fmt.Errorf("role %s not found, run seed first", auth.RoleSuperuser)
	}

	// The role is a label only. Root's authority comes from direct
	// permission rows, so every seeded permission is assigned here.
	perms, total, err := rbac.ListPermissions(ctx, auth.Page{Page: 1, Limit: 100})
	if err != nil {
		return fmt.Errorf("list permissions: %w", err)
	}
	if total == 0 {
		return fmt.Errorf("no permissions seeded, run seed first")
	}
	permIDs := make([]uuid.UUID, 0, len(perms))
	for _, p := range perms {
		permIDs = append(permIDs, p.ID)
	}
	identity, err := rbac.CreateUser(ctx, auth.NewUser{
		Name:        "root",
		Email:       email,
		Username:    username,
		Password:    password,
		Permissions: permIDs,
		Roles:       []uuid.UUID{superuser.ID},
	})
	if err != nil {
		return fmt.Errorf("create root user: %w", err)
	}
	log.Printf("created root user %s (%s)", identity.User.Username, identity.User.ID)
	return nil
}
