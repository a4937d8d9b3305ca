package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"ScriptToVideo-server/config"
	"ScriptToVideo-server/models"
	"ScriptToVideo-server/service"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var renderTitle string

var renderCmd = &cobra.Command{
	Use:   "render <file>",
	Short: "在本进程内渲染一个剧本文件，输出 Result JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  renderCommand,
}

func init() {
	renderCmd.Flags().StringVarP(&renderTitle, "title", "t", "", "标题，默认取文件名")
}

func renderCommand(cmd *cobra.Command, args []string) error {
	text, err := readScript(args[0])
	if err != nil {
		return err
	}
	title := renderTitle
	if title == "" && args[0] != "-" {
		title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	}

	// 单次渲染不走队列
	cfg := *config.AppConfig
	cfg.Pipeline.Dispatcher = "local"
	app, err := service.NewApp(cmd.Context(), &cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	run := &models.Run{ID: uuid.NewString(), Title: title, ScriptText: text, Stage: models.StageInit}
	if err := app.Store.Create(cmd.Context(), run); err != nil {
		return err
	}
	res := app.Runner.Execute(cmd.Context(), run)
	logrus.WithField("run_id", run.ID).Infof("渲染结束: %s", res.Status)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
