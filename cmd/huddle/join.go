package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/huddlekit/huddle/internal/client"
	"github.com/spf13/cobra"
)

var joinCmd = &cobra.Command{
	Use:     "join <room id>",
	Aliases: []string{"j"},
	Short:   "Join an existing room",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid room id: %w", err)
		}

		opts, err := engineOptions()
		if err != nil {
			return err
		}

		eng := client.NewEngine(opts)
		defer eng.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		defer cancel()

		if err := eng.Connect(ctx); err != nil {
			return fmt.Errorf("connect: %w", err)
		}

		room, err := eng.JoinRoom(ctx, roomID)
		if err != nil {
			return fmt.Errorf("join room: %w", err)
		}

		fmt.Printf("joined %q (%d participant(s))\n", room.Name, len(room.Participants))
		return runSession(eng)
	},
}

func init() {
	rootCmd.AddCommand(joinCmd)
}
