package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/park285/cheese-chess-server/internal/chess"
	"github.com/park285/cheese-chess-server/internal/wsclient"
	"github.com/park285/cheese-chess-server/pkg/chessdto"
)

func main() {
	wsURL := strings.TrimSpace(os.Getenv("WS_URL"))
	token := strings.TrimSpace(os.Getenv("AUTH_TOKEN"))
	gameID, _ := strconv.Atoi(strings.TrimSpace(os.Getenv("GAME_ID")))
	move := strings.TrimSpace(os.Getenv("MOVE"))

	if wsURL == "" {
		wsURL = "ws://localhost:8080/ws"
	}
	if token == "" || gameID <= 0 {
		log.Fatal("AUTH_TOKEN and GAME_ID are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	c, err := wsclient.Dial(ctx, wsURL)
	if err != nil {
		log.Fatalf("dial error: %v", err)
	}
	defer func() { _ = c.Close() }()
	c.OnMessage(printMessage)

	if err := c.Send(ctx, &chessdto.Command{CommandType: chessdto.CommandConnect, AuthToken: token, GameID: gameID}); err != nil {
		log.Fatalf("connect send error: %v", err)
	}
	if _, err := c.Next(ctx); err != nil {
		log.Fatalf("connect reply error: %v", err)
	}

	if move != "" {
		mv, err := chess.ParseUCI(move)
		if err != nil {
			log.Fatalf("MOVE: %v", err)
		}
		if err := c.Send(ctx, &chessdto.Command{CommandType: chessdto.CommandMakeMove, AuthToken: token, GameID: gameID, Move: &mv}); err != nil {
			log.Fatalf("move send error: %v", err)
		}
	}

	// Observe for a short window
	wctx, wcancel := context.WithTimeout(ctx, 5*time.Second)
	defer wcancel()
	for {
		if _, err := c.Next(wctx); err != nil {
			return
		}
	}
}

func printMessage(msg *chessdto.ServerMessage) {
	switch msg.ServerMessageType {
	case chessdto.MessageLoadGame:
		g := msg.Game
		if g == nil {
			fmt.Println("LOAD_GAME (empty)")
			return
		}
		fmt.Printf("LOAD_GAME id=%d name=%q turn=%s status=%s fen=%s\n", g.GameID, g.Name, g.Turn, g.Status, g.FEN)
		if len(msg.Highlight) > 0 {
			moves := make([]string, 0, len(msg.Highlight))
			for _, m := range msg.Highlight {
				moves = append(moves, m.UCI())
			}
			fmt.Printf("  highlight: %s\n", strings.Join(moves, " "))
		}
	case chessdto.MessageNotification:
		fmt.Printf("NOTIFICATION %s\n", msg.Message)
	case chessdto.MessageError:
		fmt.Printf("ERROR %s\n", msg.ErrorMessage)
	}
}
