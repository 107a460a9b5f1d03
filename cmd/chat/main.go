package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	companion "github.com/Protocol-Lattice/go-companion"
	"github.com/Protocol-Lattice/go-companion/src/bootstrap"
	"github.com/Protocol-Lattice/go-companion/src/config"
	"github.com/Protocol-Lattice/go-companion/src/memory/model"
)

func main() {
	_ = godotenv.Load()

	agentID := flag.String("agent", "", "Agent ID to talk to (defaults to the first configured agent)")
	userID := flag.String("user", "cli", "User identifier used to scope memory")
	name := flag.String("name", "Companion", "Agent name when no agents are configured")
	persona := flag.String("persona", "Friendly, curious and concise.", "Agent instructions when no agents are configured")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if len(cfg.Agents) == 0 {
		cfg.Agents = []model.AgentProfile{{ID: "default", Name: *name, Instructions: *persona}}
	}
	if *agentID == "" {
		*agentID = cfg.Agents[0].ID
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := context.Background()

	app, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialise companion: %v", err)
	}
	defer func() {
		_ = app.Service.Wait(ctx)
		_ = app.Close(ctx)
	}()

	agent, err := app.Agents.Agent(ctx, *agentID)
	if err != nil {
		log.Fatalf("unknown agent %q", *agentID)
	}

	fmt.Printf("Talking to %s. Commands: /profile, /history, /quit\n", agent.Name)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return
		case "/history":
			recent, err := app.Service.History(ctx, agent.ID, *userID)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Println(recent)
			continue
		case "/profile":
			view, err := app.Service.Profile(ctx, agent.ID, *userID)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Printf("Core traits: %s\nStyle: %s\nInterests: %s\n",
				strings.Join(view.Profile.CoreTraits, ", "),
				view.Profile.CommunicationStyle,
				strings.Join(view.Profile.Interests, ", "))
			continue
		}

		chunks, err := app.Service.StreamTurn(ctx, companion.TurnRequest{Prompt: line, AgentID: agent.ID, UserID: *userID}, nil)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		fmt.Printf("%s: ", agent.Name)
		for chunk := range chunks {
			if chunk.Err != nil {
				fmt.Printf("\nerror: %v", chunk.Err)
				break
			}
			if chunk.Done {
				if chunk.Delta != "" {
					fmt.Print(chunk.Delta)
				}
				break
			}
			fmt.Print(chunk.Delta)
		}
		fmt.Println()
	}
}
