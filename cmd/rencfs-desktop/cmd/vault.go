package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/radumarias/rencfs-desktop/client"
	"github.com/radumarias/rencfs-desktop/secret"
	"github.com/radumarias/rencfs-desktop/storage"
)

var (
	addMountPoint string
	addDataDir    string
	listLimit     int
)

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage vault records",
}

var vaultAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Create a locked vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(ctx context.Context, m *client.Manager) error {
			id, err := m.Create(ctx, storage.NewVault{Name: args[0], MountPoint: addMountPoint, DataDir: addDataDir})
			if err != nil {
				return err
			}
			fmt.Printf("Created vault %d\n", id)
			return nil
		})
	},
}

var vaultListCmd = &cobra.Command{
	Use:   "list",
	Short: "List vaults",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(ctx context.Context, m *client.Manager) error {
			vaults, err := m.List(ctx, listLimit)
			if err != nil {
				return err
			}
			showVaults(vaults, secret.NewKeyring())
			return nil
		})
	},
}

var vaultRenameCmd = &cobra.Command{
	Use:   "rename ID NAME",
	Short: "Rename a vault",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withManager(cmd, func(ctx context.Context, m *client.Manager) error {
			return m.Rename(ctx, id, args[1])
		})
	},
}

var vaultRemoveCmd = &cobra.Command{
	Use:     "rm ID",
	Aliases: []string{"delete"},
	Short:   "Lock a vault and delete its record",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withManager(cmd, func(ctx context.Context, m *client.Manager) error {
			return m.Delete(ctx, id)
		})
	},
}

var vaultMountPointCmd = &cobra.Command{
	Use:   "mount-point ID PATH",
	Short: "Change where a vault is mounted",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withManager(cmd, func(ctx context.Context, m *client.Manager) error {
			return m.ChangeMountPoint(ctx, id, args[1])
		})
	},
}

var vaultDataDirCmd = &cobra.Command{
	Use:   "data-dir ID PATH",
	Short: "Change where a vault keeps its encrypted data (contents are not moved)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withManager(cmd, func(ctx context.Context, m *client.Manager) error {
			return m.ChangeDataDir(ctx, id, args[1])
		})
	},
}

func init() {
	rootCmd.AddCommand(vaultCmd)
	vaultCmd.AddCommand(vaultAddCmd, vaultListCmd, vaultRenameCmd, vaultRemoveCmd, vaultMountPointCmd, vaultDataDirCmd)

	vaultAddCmd.Flags().StringVar(&addMountPoint, "mount-point", "", "Absolute mount point")
	vaultAddCmd.Flags().StringVar(&addDataDir, "data-dir", "", "Absolute directory for encrypted data")
	vaultAddCmd.MarkFlagRequired("mount-point")
	vaultAddCmd.MarkFlagRequired("data-dir")

	vaultListCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum number of vaults to show (0 for all)")
}

type passwordChecker interface {
	Has(vaultID int64) bool
}

func vaultRows(vaults []storage.Vault, pw passwordChecker) [][]string {
	rows := make([][]string, 0, len(vaults))
	for _, v := range vaults {
		state := "unlocked"
		if v.Locked {
			state = "locked"
		}
		stored := "no"
		if pw != nil && pw.Has(v.ID) {
			stored = "yes"
		}
		rows = append(rows, []string{strconv.FormatInt(v.ID, 10), v.Name, v.MountPoint, v.DataDir, state, stored})
	}
	return rows
}

func showVaults(vaults []storage.Vault, pw passwordChecker) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "Mount point", "Data dir", "State", "Password"})
	for _, row := range vaultRows(vaults, pw) {
		table.Append(row)
	}

	fmt.Println()
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	table.Render()
	fmt.Println()
}
