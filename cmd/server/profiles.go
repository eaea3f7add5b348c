package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amanullahtanweer/chapter-transcriber/internal/config"
)

func newProfilesCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the audio quality and compute profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFlag)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderProfiles(cfg.Profiles))
			return nil
		},
	}
}

func renderProfiles(p config.Profiles) string {
	var rows [][]string
	for _, name := range p.QualityNames() {
		model, _ := p.QualityModel(name)
		rows = append(rows, []string{"audio_quality", name, model, ""})
	}
	for _, name := range p.ComputeNames() {
		marker := ""
		if name == p.DefaultCompute {
			marker = "default"
		}
		rows = append(rows, []string{"compute_type", name, p.Compute[name], marker})
	}
	return renderTable([]string{"Field", "Profile", "Value", ""}, rows, nil)
}
