package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"tidehunt.io/internal/persistence/snapshot"
	"tidehunt.io/internal/persistence/store"
	"tidehunt.io/internal/protocol"
	"tidehunt.io/internal/sim/engine"
	"tidehunt.io/internal/sim/game"
	"tidehunt.io/internal/sim/tuning"
)

type initializeRequest struct {
	Map      game.MapConfig    `json:"map"`
	Players  []game.PlayerInfo `json:"players"`
	Settings *tuning.Overrides `json:"settings,omitempty"`
}

type actionRequest struct {
	PlayerID string          `json:"playerId"`
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

func registerRoutes(mux *http.ServeMux, eng *engine.Engine, logger *log.Logger) {
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})

	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		games, err := eng.ListGames(r.Context())
		if err != nil {
			return
		}
		active := 0
		for _, g := range games {
			if g.SchedulerActive {
				active++
			}
		}
		fmt.Fprintf(rw, "# HELP tidehunt_games Stored game count.\n")
		fmt.Fprintf(rw, "# TYPE tidehunt_games gauge\n")
		fmt.Fprintf(rw, "tidehunt_games %d\n", len(games))
		fmt.Fprintf(rw, "# HELP tidehunt_games_active Games with a running tick scheduler.\n")
		fmt.Fprintf(rw, "# TYPE tidehunt_games_active gauge\n")
		fmt.Fprintf(rw, "tidehunt_games_active %d\n", active)
	})

	mux.HandleFunc("/v1/games", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		games, err := eng.ListGames(r.Context())
		if err != nil {
			writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, err.Error())
			return
		}
		writeJSON(rw, http.StatusOK, map[string]any{"games": games})
	})

	mux.HandleFunc("/v1/games/", gamesHandler(eng, logger))
}

// gamesHandler routes /v1/games/{id} and /v1/games/{id}/{op}.
func gamesHandler(eng *engine.Engine, logger *log.Logger) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/v1/games/")
		gameID, op, _ := strings.Cut(rest, "/")
		if gameID == "" || strings.Contains(op, "/") {
			writeError(rw, http.StatusNotFound, protocol.ErrNotFound, "no such route")
			return
		}

		switch {
		case op == "" && r.Method == http.MethodGet:
			st, err := eng.GetState(r.Context(), gameID)
			if err != nil {
				writeEngineError(rw, err)
				return
			}
			// Traps key on Position, so the wire form is the snapshot
			// encoding rather than the in-memory state.
			writeJSON(rw, http.StatusOK, snapshot.FromState(st))

		case op == "" && r.Method == http.MethodDelete:
			if err := eng.Delete(r.Context(), gameID); err != nil {
				writeEngineError(rw, err)
				return
			}
			writeJSON(rw, http.StatusOK, map[string]any{"ok": true})

		case op == "initialize" && r.Method == http.MethodPost:
			var req initializeRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(rw, http.StatusBadRequest, protocol.ErrBadAction, "bad request body")
				return
			}
			st, err := eng.Initialize(r.Context(), gameID, req.Map, req.Players, req.Settings)
			if err != nil {
				writeEngineError(rw, err)
				return
			}
			logger.Printf("http: initialized game %s", gameID)
			writeJSON(rw, http.StatusCreated, snapshot.FromState(st))

		case op == "start" && r.Method == http.MethodPost:
			if err := eng.Start(r.Context(), gameID); err != nil {
				writeEngineError(rw, err)
				return
			}
			writeJSON(rw, http.StatusOK, map[string]any{"ok": true})

		case op == "stop" && r.Method == http.MethodPost:
			if err := eng.Stop(r.Context(), gameID); err != nil {
				writeEngineError(rw, err)
				return
			}
			writeJSON(rw, http.StatusOK, map[string]any{"ok": true})

		case op == "actions" && r.Method == http.MethodPost:
			var req actionRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(rw, http.StatusBadRequest, protocol.ErrBadAction, "bad request body")
				return
			}
			id, err := eng.SubmitAction(r.Context(), gameID, req.PlayerID, req.Type, req.Payload)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					writeEngineError(rw, err)
					return
				}
				writeError(rw, http.StatusBadRequest, protocol.ErrBadAction, err.Error())
				return
			}
			writeJSON(rw, http.StatusAccepted, map[string]any{"actionId": id})

		default:
			rw.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func writeEngineError(rw http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(rw, http.StatusNotFound, protocol.ErrNotFound, "game not found")
	case errors.Is(err, engine.ErrGameExists):
		writeError(rw, http.StatusConflict, protocol.ErrExists, "game already exists")
	default:
		writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, err.Error())
	}
}

func writeError(rw http.ResponseWriter, status int, code, msg string) {
	writeJSON(rw, status, map[string]any{
		"error": map[string]string{"code": code, "message": msg},
	})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
