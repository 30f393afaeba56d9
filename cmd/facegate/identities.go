package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"facegate/internal/util/timezone"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "List all registered identities",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIdentities(context.Background())
	},
}

var identitiesRemoveCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove an identity and its recognition history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRemoveIdentity(context.Background(), args[0])
	},
}

var identitiesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all identities and the whole recognition history",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runClearIdentities(context.Background())
	},
}

func init() {
	identitiesCmd.AddCommand(identitiesRemoveCmd)
	identitiesCmd.AddCommand(identitiesClearCmd)
	rootCmd.AddCommand(identitiesCmd)
}

func runIdentities(ctx context.Context) error {
	a, cleanup, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	identities := a.Gallery.Snapshot()
	if len(identities) == 0 {
		fmt.Println("No identities registered.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tRECOGNITIONS\tLAST SEEN\tREGISTERED")
	fmt.Fprintln(w, "--\t----\t-----\t------------\t---------\t----------")
	for _, id := range identities {
		lastSeen := "never"
		if id.LastSeen != nil {
			lastSeen = timezone.Format(*id.LastSeen, "2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			id.ID, id.Name, id.Email, id.RecognitionCount, lastSeen,
			timezone.Format(id.RegisteredAt, "2006-01-02 15:04"))
	}
	return w.Flush()
}

func runRemoveIdentity(ctx context.Context, id string) error {
	a, cleanup, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := a.Gallery.Remove(ctx, id); err != nil {
		return err
	}
	if err := a.Events.DeleteByIdentity(ctx, id); err != nil {
		log.WithError(err).Warn("Failed to delete recognition events")
	}
	fmt.Printf("Removed %s\n", id)
	return nil
}

func runClearIdentities(ctx context.Context) error {
	a, cleanup, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	count := a.Gallery.Len()
	if err := a.Gallery.Clear(ctx); err != nil {
		return err
	}
	events, err := a.Events.DeleteAll(ctx)
	if err != nil {
		log.WithError(err).Warn("Failed to delete recognition events")
	}
	fmt.Printf("Removed %d identities and %d recognition events\n", count, events)
	return nil
}
