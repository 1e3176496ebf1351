package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agusx1211/agentmail/internal/config"
	"github.com/agusx1211/agentmail/internal/cursor"
	"github.com/agusx1211/agentmail/internal/jsonfile"
	"github.com/agusx1211/agentmail/internal/registry"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the mailbox base directory",
	Long: `Create the mailbox base directory with an empty registry and cursor
document. Existing files are left untouched, so init is safe to re-run.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().Bool("write-config", false, "Also write the effective config to the config path if it does not exist")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Base, 0755); err != nil {
		return fmt.Errorf("creating base %s: %w", cfg.Base, err)
	}

	reg := registry.New(cfg.Base)
	if _, err := os.Stat(reg.Path()); os.IsNotExist(err) {
		if err := reg.Save(registry.Document{Agents: map[string]registry.Entry{}}); err != nil {
			return err
		}
	}
	cur := cursor.New(cfg.Base)
	if _, err := os.Stat(cur.Path()); os.IsNotExist(err) {
		if err := jsonfile.WriteAtomic(cur.Path(), cursor.Map{}); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	printHeader(out, "agentmail initialized")
	printField(out, "Base", cfg.Base)
	printField(out, "Registry", reg.Path())
	printField(out, "Cursors", cur.Path())

	if write, _ := cmd.Flags().GetBool("write-config"); write {
		path, _ := cmd.Flags().GetString("config")
		if path == "" {
			path = config.DefaultPath()
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := config.Save(path, cfg); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}
			printField(out, "Config", path)
		}
	}
	return nil
}
