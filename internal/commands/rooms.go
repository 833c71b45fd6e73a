package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var historyCursor string

func init() {
	historyCmd.Flags().StringVar(&historyCursor, "cursor", "", "history page cursor")
	rootCmd.AddCommand(roomsCmd)
	rootCmd.AddCommand(historyCmd)
}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List chat rooms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, configPath)
		if err != nil {
			return err
		}
		defer a.close()

		rooms, err := a.service.ListRooms(ctx)
		if err != nil {
			return err
		}

		sort.Slice(rooms, func(i, j int) bool {
			return rooms[i].UpdatedAt > rooms[j].UpdatedAt
		})
		for _, r := range rooms {
			name := r.Name
			if name == "" {
				name = r.ID
			}
			fmt.Printf("%-24s %s\n", r.ID, name)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <room-id>",
	Short: "Show a page of room history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, configPath)
		if err != nil {
			return err
		}
		defer a.close()

		messages, next, err := a.service.FetchHistory(ctx, args[0], historyCursor)
		if err != nil {
			return err
		}

		sort.Slice(messages, func(i, j int) bool {
			return messages[i].CreatedAt < messages[j].CreatedAt
		})
		for _, m := range messages {
			ts := time.Unix(m.CreatedAt, 0).Format("15:04:05")
			who := m.Sender.Nickname
			if m.IsMine {
				who = "me"
			}
			fmt.Printf("[%s] %s: %s\n", ts, who, m.Content)
		}
		if next != "" {
			fmt.Printf("next cursor: %s\n", next)
		}
		return nil
	},
}
