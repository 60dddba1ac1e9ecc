// Package main provides the admin CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/guildbox/internal/api/connect"
)

var (
	app     = kingpin.New("guildbox-admincli", "guildbox admin client")
	server  = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token   = app.Flag("token", "Admin token (or set ADMIN_TOKEN env)").Envar("ADMIN_TOKEN").String()
	timeout = app.Flag("timeout", "Request timeout").Default("30s").Duration()

	// status command
	statusCmd = app.Command("status", "Show every active guild")

	// skip command
	skipCmd   = app.Command("skip", "Skip the current track of a guild")
	skipGuild = skipCmd.Arg("guild-id", "Guild ID").Required().String()

	// stop command
	stopCmd   = app.Command("stop", "Stop playback in a guild and clear its queue")
	stopGuild = stopCmd.Arg("guild-id", "Guild ID").Required().String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *token == "" {
		fmt.Println("Error: admin token is required (use --token or ADMIN_TOKEN env)")
		os.Exit(1)
	}

	client := apiconnect.NewDefaultAdminClient(*server, *token)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var err error
	switch command {
	case statusCmd.FullCommand():
		err = status(ctx, client)
	case skipCmd.FullCommand():
		err = printMessage(client.Skip(ctx, *skipGuild))
	case stopCmd.FullCommand():
		err = printMessage(client.Stop(ctx, *stopGuild))
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

func status(ctx context.Context, client *apiconnect.AdminClient) error {
	guilds, err := client.Status(ctx)
	if err != nil {
		return err
	}

	fmt.Println("\n=== ACTIVE GUILDS ===")
	if len(guilds) == 0 {
		fmt.Println("No active guilds")
		fmt.Println()
		return nil
	}

	for _, g := range guilds {
		fmt.Printf("\nGuild: %s\n", g.GuildID)
		fmt.Printf("  Session ID: %s\n", g.SessionID)
		fmt.Printf("  State: %s\n", g.State)
		if g.Connected {
			fmt.Printf("  Voice Channel: %s\n", g.ChannelID)
		} else {
			fmt.Println("  Voice Channel: (not connected)")
		}
		if g.Current != "" {
			fmt.Printf("  Current Track: %s\n", g.Current)
		} else {
			fmt.Println("  No track currently playing")
		}
		fmt.Printf("  Pending: %d\n", g.Pending)
	}
	fmt.Println()
	return nil
}

func printMessage(msg string, err error) error {
	if err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}
