package cmd

import (
	"os/signal"
	"syscall"

	"ScriptToVideo-server/config"
	"ScriptToVideo-server/service"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "消费 Redis 队列中的渲染任务",
	RunE:  workerCommand,
}

func workerCommand(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.AppConfig
	app, err := service.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	p := service.NewProcessor(service.RedisOpt(cfg), app.Runner, cfg.Pipeline.Concurrency)
	if err := p.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	logrus.Info("正在停止消费者...")
	p.Shutdown()
	return nil
}
