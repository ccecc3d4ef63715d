package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func verifiedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verified",
		Short: "List devices that completed verification",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := wire.Trust.ListVerified()
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No verified devices.")
				return nil
			}
			for _, r := range records {
				at := time.Unix(r.VerifiedUTC, 0).UTC().Format(time.RFC3339)
				fmt.Printf("%s/%s  %s  %s\n", r.UserID, r.DeviceID, r.Method, at)
			}
			return nil
		},
	}
}
