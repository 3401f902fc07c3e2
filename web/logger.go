package web

import "github.com/sirupsen/logrus"

// log 对外服务模块的日志记录器
var log = logrus.WithField("module", "web")
