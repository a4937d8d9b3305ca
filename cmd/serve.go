package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ScriptToVideo-server/config"
	"ScriptToVideo-server/routers"
	"ScriptToVideo-server/routers/api"
	"ScriptToVideo-server/service"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var withWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 服务",
	RunE:  serveCommand,
}

func init() {
	serveCmd.Flags().BoolVar(&withWorker, "with-worker", false, "队列模式下在同一进程内启动消费者")
}

func serveCommand(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.AppConfig
	app, err := service.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if withWorker && app.Local == nil {
		p := service.NewProcessor(service.RedisOpt(cfg), app.Runner, cfg.Pipeline.Concurrency)
		if err := p.Start(); err != nil {
			return err
		}
		defer p.Shutdown()
	}

	h := api.NewHandler(app.Service, app.Parser)
	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: routers.InitRouter(h, cfg.Pipeline.OutputDir),
	}
	go func() {
		logrus.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("HTTP 服务异常退出")
			stop()
		}
	}()

	<-ctx.Done()
	logrus.Info("正在关闭服务...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
