package main

import (
	"context"
	"fmt"
	"time"

	"github.com/huddlekit/huddle/internal/client"
	"github.com/huddlekit/huddle/internal/domain"
	"github.com/spf13/cobra"
)

var (
	flagDescription string
	flagCapacity    int
	flagLifetime    time.Duration
	flagNoChat      bool
	flagNoShare     bool
	flagApproval    bool
	flagLocked      bool
)

var createCmd = &cobra.Command{
	Use:     "create <room name>",
	Aliases: []string{"c"},
	Short:   "Create a room and host it",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := engineOptions()
		if err != nil {
			return err
		}

		eng := client.NewEngine(opts)
		defer eng.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := eng.Connect(ctx); err != nil {
			return fmt.Errorf("connect: %w", err)
		}

		room, err := eng.CreateRoom(ctx, client.RoomConfig{
			Name:        args[0],
			Description: flagDescription,
			Capacity:    flagCapacity,
			Settings: domain.RoomSettings{
				AllowScreenShare: !flagNoShare,
				AllowChat:        !flagNoChat,
				RequireApproval:  flagApproval,
				Locked:           flagLocked,
			},
			Lifetime: flagLifetime,
		})
		if err != nil {
			return fmt.Errorf("create room: %w", err)
		}

		fmt.Printf("room %q created\n  id:   %s\n  link: %s\n", room.Name, room.ID, room.Link)
		return runSession(eng)
	},
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVarP(&flagDescription, "description", "d", "", "room description")
	createCmd.Flags().IntVarP(&flagCapacity, "capacity", "c", 8, "maximum participants")
	createCmd.Flags().DurationVar(&flagLifetime, "lifetime", 0, "room lifetime (0 = unlimited)")
	createCmd.Flags().BoolVar(&flagNoChat, "no-chat", false, "disable room chat")
	createCmd.Flags().BoolVar(&flagNoShare, "no-screen-share", false, "disable screen sharing")
	createCmd.Flags().BoolVar(&flagApproval, "require-approval", false, "joins wait for host approval")
	createCmd.Flags().BoolVar(&flagLocked, "locked", false, "start the room locked")
}
