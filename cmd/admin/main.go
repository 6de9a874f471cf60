package main

import (
	"claimchat/backend/internal/config"
	"claimchat/backend/internal/models"
	"claimchat/backend/internal/storage"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
)

func main() {
	cfg := config.Load()

	if len(os.Args) < 2 {
		fmt.Println("Usage: admin <add-item|rooms|history> [args]")
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	if err := storage.Migrate(db); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}
	storageSvc := storage.NewStorageService(db)
	ctx := context.Background()

	command := os.Args[1]

	switch command {
	case "add-item":
		if len(os.Args) < 5 {
			fmt.Println("Usage: admin add-item <item_id> <reporter_id> <name> [contact_info...]")
			os.Exit(1)
		}
		item := models.Item{
			ID:          os.Args[2],
			ReporterID:  os.Args[3],
			Name:        os.Args[4],
			ContactInfo: strings.Join(os.Args[5:], " "),
		}
		if err := storageSvc.UpsertItem(ctx, &item); err != nil {
			log.Fatalf("Error saving item: %v", err)
		}
		fmt.Printf("Item %s saved.\n", item.ID)
	case "rooms":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin rooms <item_id>")
			os.Exit(1)
		}
		if err := listRooms(ctx, storageSvc, os.Args[2]); err != nil {
			log.Fatalf("Error listing rooms: %v", err)
		}
	case "history":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin history <room_id>")
			os.Exit(1)
		}
		if err := printHistory(ctx, storageSvc, os.Args[2]); err != nil {
			log.Fatalf("Error loading history: %v", err)
		}
	default:
		fmt.Println("Unknown command")
		os.Exit(1)
	}
}

func listRooms(ctx context.Context, s storage.Storage, itemID string) error {
	rooms, err := s.ListRoomsByItem(ctx, itemID)
	if err != nil {
		return err
	}
	for _, r := range rooms {
		fmt.Printf("%s\tclaimer=%s\tstatus=%s\tapproval=%s\tcreated=%s\n",
			r.ID, r.ClaimerID, r.Status, r.ApprovalStatus, r.CreatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Printf("%d room(s)\n", len(rooms))
	return nil
}

func printHistory(ctx context.Context, s storage.Storage, roomID string) error {
	history, err := s.GetChatHistory(ctx, roomID)
	if err != nil {
		return err
	}
	for _, m := range history {
		sender := m.SenderID
		if m.IsSystemMessage {
			sender = "system:" + sender
		}
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("15:04:05"), sender, m.Body)
	}
	return nil
}
