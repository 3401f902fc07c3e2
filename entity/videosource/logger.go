package videosource

import "github.com/sirupsen/logrus"

// log 视频源模块的日志记录器
var log = logrus.WithField("module", "videosource")
