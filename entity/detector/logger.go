package detector

import "github.com/sirupsen/logrus"

// log 检测模块的日志记录器
var log = logrus.WithField("module", "detector")
