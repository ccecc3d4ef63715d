package commands

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"trustkit/internal/domain"
	"trustkit/internal/verification"
)

// startCmd opens an outbound verification handshake with one device and
// drives it through the event loop until it settles.
func startCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "start <user> <device>",
		Short: "Verify a user's device end to end",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user := domain.UserID(args[0])
			device := domain.DeviceID(args[1])

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			id, err := wire.Verifier.Start(ctx, user, device)
			if errors.Is(err, verification.ErrDeviceUnknown) {
				return fmt.Errorf("no keys known for %s/%s yet; a session bootstrap was requested, retry shortly: %w", user, device, err)
			}
			if err != nil {
				return fmt.Errorf("starting verification with %s/%s: %w", user, device, err)
			}
			fmt.Printf("Verification started with %s/%s (transaction %s). Waiting for the other device...\n", user, device, id)
			return driveVerifications(ctx, interval, &watchTarget{id: id, user: user, device: device})
		},
	}
	cmd.Flags().DurationVar(&interval, "poll-interval", 2*time.Second, "gateway poll interval")
	return cmd
}
