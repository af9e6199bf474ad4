// Command bot is a demo player: it subscribes to a game's event feed
// and submits a random walk of moves through the HTTP API. Useful for
// soaking a running server.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
)

type gameView struct {
	Status  string `json:"status"`
	Players []struct {
		ID string `json:"id"`
		X  int    `json:"x"`
		Y  int    `json:"y"`
	} `json:"players"`
	Map struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"map"`
}

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:8080", "server base url")
		wsURL    = flag.String("ws", "ws://localhost:8080/v1/ws", "event feed url")
		gameID   = flag.String("game", "", "game id")
		playerID = flag.String("player", "", "player id")
		interval = flag.Duration("interval", time.Second, "time between submitted moves")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	if *gameID == "" || *playerID == "" {
		logger.Fatalf("missing -game or -player")
	}

	go watchEvents(*wsURL, *gameID, logger)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if done := step(*baseURL, *gameID, *playerID, r, logger); done {
				return
			}
		}
	}
}

// step reads the current state and submits one random adjacent move.
func step(baseURL, gameID, playerID string, r *rand.Rand, logger *log.Logger) bool {
	resp, err := http.Get(fmt.Sprintf("%s/v1/games/%s", baseURL, gameID))
	if err != nil {
		logger.Printf("get state: %v", err)
		return false
	}
	defer resp.Body.Close()
	var view gameView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		logger.Printf("decode state: %v", err)
		return false
	}
	if view.Status == "finished" {
		logger.Printf("game finished")
		return true
	}
	if view.Status != "playing" {
		return false
	}

	var x, y int
	found := false
	for _, p := range view.Players {
		if p.ID == playerID {
			x, y = p.X, p.Y
			found = true
		}
	}
	if !found {
		logger.Printf("player %s not in game", playerID)
		return true
	}

	dirs := [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	d := dirs[r.Intn(len(dirs))]
	tx, ty := x+d[0], y+d[1]
	if tx < 0 || tx >= view.Map.Width || ty < 0 || ty >= view.Map.Height {
		return false
	}

	body, _ := json.Marshal(map[string]any{
		"playerId": playerID,
		"type":     "move",
		"payload":  map[string]any{"target": map[string]int{"x": tx, "y": ty}},
	})
	post, err := http.Post(fmt.Sprintf("%s/v1/games/%s/actions", baseURL, gameID), "application/json", bytes.NewReader(body))
	if err != nil {
		logger.Printf("submit: %v", err)
		return false
	}
	_ = post.Body.Close()
	if post.StatusCode != http.StatusAccepted {
		logger.Printf("submit rejected: %d", post.StatusCode)
	}
	return false
}

func watchEvents(wsURL, gameID string, logger *log.Logger) {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		logger.Printf("dial events: %v", err)
		return
	}
	defer conn.Close()

	sub, _ := json.Marshal(map[string]string{"type": "subscribe", "gameId": gameID})
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		logger.Printf("subscribe: %v", err)
		return
	}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		logger.Printf("event %s", msg)
	}
}
