package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/smsrelay/internal/state"
	"github.com/user/smsrelay/internal/types"
)

func init() {
	rootCmd.AddCommand(subscriberCmd, channelCmd)
	subscriberCmd.AddCommand(subscriberListCmd, subscriberRemoveCmd)
	channelCmd.AddCommand(channelGetCmd)
}

// openStore opens the configured database for one-off CLI use.
func openStore() (*state.Store, error) {
	cfg := loadConfig()
	return state.Open(cfg.DBPath())
}

var subscriberCmd = &cobra.Command{
	Use:   "subscriber",
	Short: "Manage SMS subscribers",
}

var subscriberListCmd = &cobra.Command{
	Use:   "list <guild>",
	Short: "List subscribers of a guild (e.g. discord:1234)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		list, err := store.ListSubscribers(context.Background(), types.GuildID(args[0]))
		if err != nil {
			return fmt.Errorf("list subscribers: %w", err)
		}

		if len(list) == 0 {
			fmt.Println("No subscribers found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "USER\tPHONE\tSUBSCRIBED")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				s.UserID,
				s.Phone,
				s.CreatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var subscriberRemoveCmd = &cobra.Command{
	Use:   "remove <user> <guild>",
	Short: "Remove one subscription",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		removed, err := store.RemoveSubscriber(context.Background(), types.UserID(args[0]), types.GuildID(args[1]))
		if err != nil {
			return fmt.Errorf("remove subscriber: %w", err)
		}
		if !removed {
			return fmt.Errorf("%s is not subscribed in %s", args[0], args[1])
		}
		fmt.Printf("Removed %s from %s.\n", args[0], args[1])
		return nil
	},
}

var channelCmd = &cobra.Command{
	Use:   "channel",
	Short: "Inspect announcement channels",
}

var channelGetCmd = &cobra.Command{
	Use:   "get <guild>",
	Short: "Show a guild's announcement channel and subscriber count",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := context.Background()
		guild := types.GuildID(args[0])
		ch, ok, err := store.GetAnnouncementChannel(ctx, guild)
		if err != nil {
			return fmt.Errorf("get announcement channel: %w", err)
		}
		count, err := store.CountSubscribers(ctx, guild)
		if err != nil {
			return fmt.Errorf("count subscribers: %w", err)
		}

		if !ok {
			fmt.Printf("Channel:     not set\nSubscribers: %d\n", count)
			return nil
		}
		fmt.Printf("Channel:     %s\nSet by:      %s\nSet at:      %s\nSubscribers: %d\n",
			ch.ChannelID,
			ch.SetBy,
			ch.CreatedAt.Format("2006-01-02 15:04:05"),
			count,
		)
		return nil
	},
}
