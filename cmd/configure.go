/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/opentdf/drmpolicy/internal/config"
	"github.com/opentdf/drmpolicy/internal/tui"
	"github.com/spf13/cobra"
)

// configureCmd represents the configure command
var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Interactively write the drmpolicy config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := tea.NewProgram(tui.InitialModel(cfg), tea.WithInput(cmd.InOrStdin()), tea.WithOutput(cmd.OutOrStdout()))
		m, err := p.Run()
		if err != nil {
			return fmt.Errorf("the tea is rotten: %w", err)
		}
		model, ok := m.(tui.Model)
		if !ok {
			return errors.New("can't assert tui model")
		}
		if model.Quit {
			fmt.Fprintln(cmd.OutOrStdout(), "Not saving configuration...")
			return nil
		}
		model.Apply(&cfg)

		file := cfgFile
		if file == "" {
			dir, err := config.Dir()
			if err != nil {
				return err
			}
			file = filepath.Join(dir, config.FileName)
		}
		if err := config.Save(cfg, file); err != nil {
			return fmt.Errorf("could not save configuration: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Config saved!", file)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configureCmd)
}
