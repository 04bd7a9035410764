package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/PowerDNS/simpleblob"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/meshstream/meshstream/archive"
)

func init() {
	rootCmd.AddCommand(archivesCmd)

	archivesCmd.AddCommand(archivesListCmd)
	archivesListCmd.Flags().BoolP("long", "l", false, "Add extra information, like size and time")
	archivesListCmd.Flags().BoolP("all", "a", false, "List the captures of all scenes")

	archivesCmd.AddCommand(archivesRemoveCmd)

	archivesCmd.AddCommand(archivesGetCmd)
	archivesGetCmd.Flags().StringP("output", "o", "",
		"Output filename, if not the same as the remote name")

	archivesCmd.AddCommand(archivesPutCmd)
	archivesPutCmd.Flags().StringP("name", "n", "",
		"Name to store the capture as, if different from the local name")
	archivesPutCmd.Flags().Bool("force", false, "Force the use of an invalid capture name")
}

func storage(ctx context.Context) (simpleblob.Interface, error) {
	if conf.Storage.Type == "" {
		return nil, fmt.Errorf("no storage.type configured")
	}
	return simpleblob.GetBackend(ctx, conf.Storage.Type, conf.Storage.Options)
}

var archivesCmd = &cobra.Command{
	Use:   "archives",
	Short: "Stored capture operations (list, get, put, remove)",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var archivesListCmd = &cobra.Command{
	Use:          "list",
	Short:        "List the captures of the scene, oldest first",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(rootCtx, time.Minute)
		defer cancel()

		long, err := cmd.Flags().GetBool("long")
		if err != nil {
			return err
		}
		all, err := cmd.Flags().GetBool("all")
		if err != nil {
			return err
		}

		st, err := storage(ctx)
		if err != nil {
			return err
		}
		var infos []archive.NameInfo
		if all {
			list, err := st.List(ctx, "")
			if err != nil {
				return err
			}
			infos = lo.FilterMap(list, func(b simpleblob.Blob, _ int) (archive.NameInfo, bool) {
				ni, err := archive.ParseName(b.Name)
				ni.Size = b.Size
				return ni, err == nil
			})
		} else {
			infos, err = archive.List(ctx, st, conf.Scene.Name)
			if err != nil {
				return err
			}
		}

		for _, ni := range infos {
			if long {
				fmt.Printf("%12d\t%s\t%s\n", ni.Size, ni.Timestamp.Format(time.RFC3339), ni.FullName)
			} else {
				fmt.Printf("%s\n", ni.FullName)
			}
		}
		return nil
	},
}

var archivesRemoveCmd = &cobra.Command{
	Use:          "remove",
	Short:        "Remove a capture",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(rootCtx, time.Minute)
		defer cancel()

		st, err := storage(ctx)
		if err != nil {
			return err
		}
		return st.Delete(ctx, args[0])
	},
}

var archivesGetCmd = &cobra.Command{
	Use:          "get",
	Short:        "Download a capture",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(rootCtx, time.Minute)
		defer cancel()

		outName, err := cmd.Flags().GetString("output")
		if err != nil {
			return err
		}
		if outName == "" {
			outName = args[0]
		}

		st, err := storage(ctx)
		if err != nil {
			return err
		}
		data, err := st.Load(ctx, args[0])
		if err != nil {
			return err
		}
		return os.WriteFile(outName, data, 0666)
	},
}

var archivesPutCmd = &cobra.Command{
	Use:          "put",
	Short:        "Upload a capture",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(rootCtx, time.Minute)
		defer cancel()

		name, err := cmd.Flags().GetString("name")
		if err != nil {
			return err
		}
		if name == "" {
			name = filepath.Base(args[0])
		}
		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}

		if _, err = archive.ParseName(name); err != nil {
			if !force {
				return fmt.Errorf(
					"invalid capture name (use -n to specify a different one, or "+
						"--force to skip this check): %v", err)
			}
			logrus.WithError(err).Warn("Invalid capture name forced")
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		// Refuse to store something that cannot be loaded
		if _, err := archive.LoadData(data); err != nil {
			return fmt.Errorf("invalid capture file: %w", err)
		}

		st, err := storage(ctx)
		if err != nil {
			return err
		}
		return st.Store(ctx, name, data)
	},
}
