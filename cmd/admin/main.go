// Command admin operates directly on the game database: listing stored
// games, dumping one game's snapshot, and deleting games. It is an
// offline tool; running it against a live server goes through the same
// database file, where the busy timeout handles contention.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"tidehunt.io/internal/persistence/snapshot"
	"tidehunt.io/internal/persistence/store"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "state":
			stateCmd(os.Args[2:])
			return
		case "delete":
			deleteCmd(os.Args[2:])
			return
		case "list":
			listCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func openDB(fs *flag.FlagSet, args []string) *store.SQLite {
	dbPath := fs.String("db", "./data/games.db", "sqlite database path")
	_ = fs.Parse(args)
	db, err := store.OpenSQLite(*dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open db:", err)
		os.Exit(1)
	}
	return db
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	db := openDB(fs, args)
	defer db.Close()

	rows, err := db.List(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	for _, r := range rows {
		fmt.Printf("%s\tstatus=%s\tturn=%d\tplayers=%d\n", r.GameID, r.Status, r.CurrentTurn, r.PlayerCount)
	}
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	gameID := fs.String("game", "", "game id")
	db := openDB(fs, args)
	defer db.Close()

	if *gameID == "" {
		fmt.Fprintln(os.Stderr, "missing -game")
		os.Exit(2)
	}
	st, err := db.Load(context.Background(), *gameID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snapshot.FromState(st)); err != nil {
		fmt.Fprintln(os.Stderr, "encode:", err)
		os.Exit(1)
	}
}

func deleteCmd(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	gameID := fs.String("game", "", "game id")
	db := openDB(fs, args)
	defer db.Close()

	if *gameID == "" {
		fmt.Fprintln(os.Stderr, "missing -game")
		os.Exit(2)
	}
	if err := db.Delete(context.Background(), *gameID); err != nil {
		fmt.Fprintln(os.Stderr, "delete:", err)
		os.Exit(1)
	}
	fmt.Println("deleted", *gameID)
}
