package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/radumarias/rencfs-desktop/client"
	"github.com/radumarias/rencfs-desktop/secret"
)

func daemonClient() *client.Client {
	return client.New("http://"+cfg.ListenAddr,
		client.WithTimeout(client.OperationTimeout(cfg.GracePeriod, cfg.StopTimeout)))
}

// withManager opens the vault store next to the daemon's and runs fn with a
// Manager that talks to the daemon.
func withManager(cmd *cobra.Command, fn func(ctx context.Context, m *client.Manager) error) error {
	repo, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer repo.Close()
	m := client.NewManager(repo, daemonClient(), client.WithPasswordStore(secret.NewKeyring()))
	return fn(cmd.Context(), m)
}

var lockCmd = &cobra.Command{
	Use:   "lock ID",
	Short: "Lock a vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withManager(cmd, func(ctx context.Context, m *client.Manager) error {
			return m.Lock(ctx, id)
		})
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock ID",
	Short: "Unlock a vault and mount it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withManager(cmd, func(ctx context.Context, m *client.Manager) error {
			if err := m.Unlock(ctx, id); err != nil {
				return err
			}
			v, err := m.Get(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("Vault %d mounted at %s\n", id, v.MountPoint)
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status ID",
	Short: "Show what the daemon tracks for a vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		st, err := daemonClient().Status(cmd.Context(), id)
		if err != nil {
			return err
		}
		if st.Unlocked {
			fmt.Printf("vault %d: unlocked at %s\n", st.ID, st.MountPoint)
		} else {
			fmt.Printf("vault %d: locked\n", st.ID)
		}
		return nil
	},
}

var helloCmd = &cobra.Command{
	Use:   "hello [NAME]",
	Short: "Check that the daemon is reachable",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := "rencfs-desktop"
		if len(args) == 1 {
			name = args[0]
		}
		msg, err := daemonClient().Hello(cmd.Context(), name)
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lockCmd, unlockCmd, statusCmd, helloCmd)
}
