// Command admin manages shops and staff accounts directly in the store.
// The server must be stopped: badger allows a single writer.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"shop-chat/auth"
	"shop-chat/domain"
	"shop-chat/infrastructure/storage"
	"shop-chat/services"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
)

const usage = `usage: admin <command> [flags]

commands:
  create-shop    -name NAME
  shops
  activate       -shop ID -active=true|false
  add-staff      -shop ID -email EMAIL -password PASSWORD
  conversations  -shop ID
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "admin:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	_ = godotenv.Load()
	if len(args) == 0 {
		fmt.Print(usage)
		return nil
	}
	path := os.Getenv("BADGER_FILEPATH")
	if path == "" {
		return fmt.Errorf("BADGER_FILEPATH is not set")
	}
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return fmt.Errorf("open badger: %w", err)
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	shops := storage.NewShopRepository(db)
	command, flags := args[0], flag.NewFlagSet(args[0], flag.ExitOnError)

	switch command {
	case "create-shop":
		name := flags.String("name", "", "shop name")
		_ = flags.Parse(args[1:])
		if *name == "" {
			return fmt.Errorf("-name is required")
		}
		shop, err := shops.Create(ctx, *name)
		if err != nil {
			return err
		}
		renderShops([]domain.Shop{shop})
	case "shops":
		list, err := shops.List(ctx)
		if err != nil {
			return err
		}
		renderShops(list)
	case "activate":
		shopID := flags.String("shop", "", "shop id")
		active := flags.Bool("active", true, "accept connections")
		_ = flags.Parse(args[1:])
		if err := shops.SetActive(ctx, *shopID, *active); err != nil {
			return err
		}
		fmt.Printf("shop %s active=%t\n", *shopID, *active)
	case "add-staff":
		shopID := flags.String("shop", "", "shop id")
		email := flags.String("email", "", "staff email")
		password := flags.String("password", "", "staff password")
		_ = flags.Parse(args[1:])
		if _, err := shops.Get(ctx, *shopID); err != nil {
			return err
		}
		// Registration does not issue tokens, the secret is irrelevant here
		authService := services.NewAuthService(storage.NewStaffRepository(db), storage.NewSessionRepository(db),
			auth.NewTokenManager("unused", time.Hour))
		id, err := authService.Register(*shopID, *email, *password)
		if err != nil {
			return err
		}
		fmt.Printf("staff %s created for shop %s\n", id, *shopID)
	case "conversations":
		shopID := flags.String("shop", "", "shop id")
		_ = flags.Parse(args[1:])
		list, err := storage.NewConversationRepository(db).ListByShop(ctx, *shopID)
		if err != nil {
			return err
		}
		renderConversations(list)
	default:
		fmt.Print(usage)
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

func newTable(header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func renderShops(shops []domain.Shop) {
	table := newTable("ID", "Name", "Public key", "Active", "Created")
	for _, shop := range shops {
		table.Append([]string{shop.ID, shop.Name, shop.APIKey, strconv.FormatBool(shop.Active), shop.CreatedAt.Format(time.DateTime)})
	}
	table.Render()
}

func renderConversations(conversations []domain.Conversation) {
	table := newTable("ID", "Customer", "Status", "Last activity")
	for _, c := range conversations {
		table.Append([]string{c.ID, c.CustomerID, string(c.Status), c.LastActivityAt.Format(time.DateTime)})
	}
	table.Render()
}
