package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/annel0/shipgrid/internal/config"
	"github.com/annel0/shipgrid/internal/eventbus"
	"github.com/annel0/shipgrid/internal/storage"
	"github.com/google/uuid"
)

const (
	defaultNatsURL = "nats://localhost:4222"
	timeFormat     = "2006-01-02T15:04:05Z"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML config for storage commands")
		natsURL    = flag.String("nats", defaultNatsURL, "NATS server URL")
		stream     = flag.String("stream", "SHIPGRID", "JetStream stream name")
		command    = flag.String("cmd", "tail", "Command: tail, ships, dump")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		sources    = flag.String("sources", "", "Event sources filter (comma-separated)")
		limit      = flag.Int("limit", 0, "Stop after N events (0 = follow forever)")
		shipID     = flag.String("ship", "", "Ship ID for dump")
	)
	flag.Parse()

	// Выполняем команду
	switch *command {
	case "tail":
		if err := tailEvents(*natsURL, *stream, &TailOptions{
			EventTypes: parseStringList(*eventTypes),
			Sources:    parseStringList(*sources),
			Limit:      *limit,
		}); err != nil {
			log.Fatalf("❌ Tail failed: %v", err)
		}

	case "ships":
		if err := listShips(*configPath); err != nil {
			log.Fatalf("❌ Ships failed: %v", err)
		}

	case "dump":
		if err := dumpShip(*configPath, *shipID); err != nil {
			log.Fatalf("❌ Dump failed: %v", err)
		}

	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, ships, dump")
		os.Exit(1)
	}
}

type TailOptions struct {
	EventTypes []string
	Sources    []string
	Limit      int
}

// tailEvents выводит события сеток в реальном времени
func tailEvents(url, stream string, opts *TailOptions) error {
	fmt.Printf("🎬 Tailing %s on %s (limit: %d)\n", stream, url, opts.Limit)

	bus, err := eventbus.NewJetStreamBus(url, stream, 24*time.Hour)
	if err != nil {
		return err
	}
	defer bus.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	events := make(chan *eventbus.Envelope, 64)
	sub, err := bus.Subscribe(ctx, eventbus.Filter{Types: opts.EventTypes, Sources: opts.Sources}, func(ctx context.Context, ev *eventbus.Envelope) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	eventCount := 0
	for {
		select {
		case ev := <-events:
			printEvent(ev)
			eventCount++
			if opts.Limit > 0 && eventCount >= opts.Limit {
				fmt.Printf("\n📊 Total events: %d\n", eventCount)
				return nil
			}
		case <-ctx.Done():
			fmt.Printf("\n📊 Total events: %d\n", eventCount)
			return nil
		}
	}
}

// listShips выводит корабли, сохранённые в хранилище из конфигурации
func listShips(configPath string) error {
	repo, err := openRepo(configPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	ids, err := repo.List(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("📋 Stored ships: %d\n", len(ids))
	for _, id := range ids {
		fmt.Printf("  %s\n", id)
	}
	return nil
}

// dumpShip декодирует снимок корабля и печатает его структуру
func dumpShip(configPath, ship string) error {
	id, err := uuid.Parse(ship)
	if err != nil {
		return fmt.Errorf("invalid ship id %q: %v", ship, err)
	}

	repo, err := openRepo(configPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	data, err := repo.Load(context.Background(), id)
	if err != nil {
		return err
	}
	// Без реестра ассеты берутся из снимка как есть
	g, err := storage.DecodeGrid(data, nil, 0)
	if err != nil {
		return err
	}

	st := g.Stats()
	fmt.Printf("Ship %s: %d bytes, blocks=%d nodes=%d types=%d depth=%d\n",
		id, len(data), st.Blocks, st.Nodes, st.Types, st.Depth)
	fmt.Print(g.Dump())
	return nil
}

func openRepo(configPath string) (storage.GridRepo, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return storage.Open(context.Background(), cfg.Storage)
}

// printEvent выводит событие в читаемом формате
func printEvent(event *eventbus.Envelope) {
	fmt.Printf("[%s] %s [%s] %s\n",
		event.Timestamp.Format(timeFormat),
		event.Source,
		event.EventType,
		event.ID)

	// Добавляем детали в зависимости от типа события
	switch event.EventType {
	case eventbus.EventBlockPlaced:
		var e eventbus.BlockPlaced
		if event.Decode(&e) == nil {
			fmt.Printf("  Ship: %s Block: %s at %s rot=%d color=%d\n",
				e.ShipID, e.Asset, e.Pos, e.Rotation, e.Color)
		}
	case eventbus.EventBlockRemoved:
		var e eventbus.BlockRemoved
		if event.Decode(&e) == nil {
			fmt.Printf("  Ship: %s Cell: %s\n", e.ShipID, e.Pos)
		}
	case eventbus.EventGridSaved, eventbus.EventGridLoaded:
		var e eventbus.GridPersisted
		if event.Decode(&e) == nil {
			fmt.Printf("  Ship: %s Blocks: %d Bytes: %d\n", e.ShipID, e.Blocks, e.Bytes)
		}
	}
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
