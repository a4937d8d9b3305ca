package cmd

import (
	"encoding/json"
	"os"

	"ScriptToVideo-server/config"
	"ScriptToVideo-server/rules"
	"ScriptToVideo-server/script"

	"github.com/spf13/cobra"
)

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "只解析剧本，输出结构化文档 JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  parseCommand,
}

func parseCommand(cmd *cobra.Command, args []string) error {
	text, err := readScript(args[0])
	if err != nil {
		return err
	}
	set := rules.Default()
	if path := config.AppConfig.Rules.Path; path != "" {
		if set, err = rules.Load(path); err != nil {
			return err
		}
	}
	doc := script.NewParser(set).Parse(text)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(doc)
}
