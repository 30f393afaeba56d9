package main

import (
	"context"
	"fmt"
	"os"

	"facegate/internal/core/models"
	"facegate/internal/core/registration"

	"github.com/spf13/cobra"
)

var (
	registerName     string
	registerEmail    string
	registerImage    string
	registerImageURL string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new identity from a photo",
	Example: `  facegate register --name "Alice Smith" --email alice@example.com --image alice.jpg`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRegister(cmd.Context())
	},
}

func init() {
	registerCmd.Flags().StringVar(&registerName, "name", "", "Full name")
	registerCmd.Flags().StringVar(&registerEmail, "email", "", "E-mail address")
	registerCmd.Flags().StringVar(&registerImage, "image", "", "Path to a JPEG or PNG with exactly one clear face")
	registerCmd.Flags().StringVar(&registerImageURL, "image-url", "", "Picture URL to store instead of a generated thumbnail")
	_ = registerCmd.MarkFlagRequired("name")
	_ = registerCmd.MarkFlagRequired("email")
	_ = registerCmd.MarkFlagRequired("image")
	rootCmd.AddCommand(registerCmd)
}

func runRegister(ctx context.Context) error {
	data, err := os.ReadFile(registerImage)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	a, cleanup, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	identity, err := a.Registration.Register(ctx, registration.Request{
		Name:     registerName,
		Email:    registerEmail,
		Image:    data,
		ImageURL: registerImageURL,
	})
	if err != nil {
		return fmt.Errorf("registration failed (%s): %w", models.ReasonCode(err), err)
	}

	fmt.Printf("Registered %s <%s> as %s\n", identity.Name, identity.Email, identity.ID)
	return nil
}
