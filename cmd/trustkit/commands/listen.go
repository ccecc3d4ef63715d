package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"trustkit/internal/domain"
)

// listenCmd runs the long-lived event loop: it polls the gateway for inbound
// verification events, feeds them through the orchestrator, and prompts for
// short-code decisions. In unattended mode it auto-accepts instead.
func listenCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Poll the gateway and drive verification handshakes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			mode := "interactive"
			if wire.Config.Unattended {
				mode = "unattended"
			}
			fmt.Printf("Listening for verification events (%s mode). Ctrl-C to stop.\n", mode)
			return driveVerifications(ctx, interval, nil)
		},
	}
	cmd.Flags().DurationVar(&interval, "poll-interval", 2*time.Second, "gateway poll interval")
	return cmd
}

// watchTarget makes driveVerifications return once one transaction settles.
type watchTarget struct {
	id     domain.TransactionID
	user   domain.UserID
	device domain.DeviceID
}

// driveVerifications is the shared event loop behind listen and start. It
// also hosts the timeout sweeper, which needs a long-lived process to run in.
func driveVerifications(ctx context.Context, interval time.Duration, watch *watchTarget) error {
	go wire.Verifier.RunSweeper(ctx, wire.Config.SweepInterval)

	stdin := bufio.NewScanner(os.Stdin)
	prompted := map[domain.TransactionID]bool{}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		events, err := wire.Transport.FetchEvents(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "poll: %v\n", err)
			continue
		}
		for _, ev := range events {
			if err := wire.Verifier.HandleEvent(ctx, ev); err != nil {
				fmt.Fprintf(os.Stderr, "event: %v\n", err)
			}
		}

		if wire.Config.Unattended {
			done, err := wire.Verifier.AutoAcceptAll(ctx)
			for _, id := range done {
				fmt.Printf("Auto-accepted %s\n", id)
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "auto-accept: %v\n", err)
			}
		} else {
			for _, tx := range wire.Verifier.ListPending() {
				if tx.State != domain.KeyExchanged || prompted[tx.TransactionID] {
					continue
				}
				prompted[tx.TransactionID] = true
				promptShortCode(ctx, stdin, tx)
			}
		}

		if watch != nil && !stillPending(watch.id) {
			trusted, err := wire.Verifier.IsTrusted(watch.user, watch.device)
			if err != nil {
				return err
			}
			if trusted {
				fmt.Printf("%s/%s is verified.\n", watch.user, watch.device)
			} else {
				fmt.Printf("Verification with %s/%s did not complete.\n", watch.user, watch.device)
			}
			return nil
		}
	}
}

// promptShortCode accepts the handshake, shows the code, and asks the user
// whether the devices agree.
func promptShortCode(ctx context.Context, stdin *bufio.Scanner, tx domain.VerificationTransaction) {
	code, err := wire.Verifier.Accept(ctx, tx.TransactionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "accept %s: %v\n", tx.TransactionID, err)
		return
	}

	fmt.Printf("\nVerification %s with %s/%s. Compare with the other device:\n\n  %s\n\n",
		tx.TransactionID, tx.RemoteUser, tx.RemoteDevice, code)
	fmt.Print("Do the codes match? [y/N]: ")

	answer := ""
	if stdin.Scan() {
		answer = strings.TrimSpace(stdin.Text())
	}
	if strings.EqualFold(answer, "y") {
		if err := wire.Verifier.Confirm(ctx, tx.TransactionID); err != nil {
			fmt.Fprintf(os.Stderr, "confirm %s: %v\n", tx.TransactionID, err)
			return
		}
		fmt.Println("Confirmed. Waiting for the other device's MAC.")
		return
	}
	if err := wire.Verifier.Reject(ctx, tx.TransactionID); err != nil {
		fmt.Fprintf(os.Stderr, "reject %s: %v\n", tx.TransactionID, err)
		return
	}
	fmt.Println("Rejected.")
}

func stillPending(id domain.TransactionID) bool {
	for _, tx := range wire.Verifier.ListPending() {
		if tx.TransactionID == id {
			return true
		}
	}
	return false
}
