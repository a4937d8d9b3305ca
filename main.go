package main

import (
	"ScriptToVideo-server/cmd"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("未找到 .env，使用系统环境变量")
	}
	cmd.Execute()
}
