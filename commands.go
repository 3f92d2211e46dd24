package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tagkeep/registry"
	"tagkeep/store"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tagkeep",
	Short: "tagkeep - RFID tag registry",
	Long: `tagkeep binds RFID cards to item names and keeps the table in flash.

Run without a subcommand to start the registry daemon. Cards are registered,
identified and renamed from the console or the HTTP API.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cfgFile)
	},
}

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Inspect registry flash images",
}

var (
	dumpOffset int64
	dumpSlots  int
)

var imageDumpCmd = &cobra.Command{
	Use:   "dump FILE",
	Short: "Print the registry table stored in a flash image",
	Long: `Decode a registry image read from FILE, for example a copy of the
flash partition, and print every active slot.

Examples:
  tagkeep image dump registry.bin
  tagkeep image dump --offset 0x10000 /dev/mtd3`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return dumpImage(cmd.OutOrStdout(), args[0], dumpOffset, dumpSlots)
	},
}

// Execute runs the root command.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version shown by --version.
func SetVersionInfo(build string) {
	if build == "" {
		build = "dev"
	}
	rootCmd.Version = build
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "cfg", "tagkeep.yaml", "Config file")

	imageDumpCmd.Flags().Int64Var(&dumpOffset, "offset", 0, "Byte offset of the registry sector")
	imageDumpCmd.Flags().IntVar(&dumpSlots, "slots", registry.DefaultCapacity, "Slots in the image")
	imageCmd.AddCommand(imageDumpCmd)
	rootCmd.AddCommand(imageCmd)
}

func dumpImage(w io.Writer, path string, offset int64, slots int) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	if offset < 0 || offset > int64(len(raw)) {
		return fmt.Errorf("offset %#x outside %d byte image", offset, len(raw))
	}

	t, err := store.Decode(raw[offset:], slots)
	if err != nil {
		return err
	}

	green.Fprintf(w, "Valid image: %d/%d slots used\n", t.Count(), len(t.Records))
	for slot, rec := range t.Records {
		if !rec.Active {
			continue
		}
		fmt.Fprintf(w, "  %2d  %-29s  %s\n", slot, rec.ID, rec.Label)
	}
	if t.Count() == 0 {
		yellow.Fprintln(w, "  (empty)")
	}
	return nil
}
