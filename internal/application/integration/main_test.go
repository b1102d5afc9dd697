package integration

import "go.uber.org/zap"

var zapNop = zap.NewNop()
