package config

import (
	"github.com/sirupsen/logrus"
)

// InitLogger 根据配置设置 logrus 全局格式与级别
func InitLogger(c Log) {
	if c.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		logrus.Warnf("未知日志级别 %q，使用 info", c.Level)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}
