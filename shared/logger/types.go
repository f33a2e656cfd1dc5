package logger

import (
	"github.com/sirupsen/logrus"
)

// Ctx is the logging context.
type Ctx logrus.Fields

// Log contains the logger used by all the logging functions.
var Log *logrus.Logger
