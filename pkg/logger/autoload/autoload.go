// Package autoload initializes the global logger from the LOG_* environment
// on import. Blank-import it from a binary's main package.
package autoload

import (
	configx "github.com/acpflow/email-orchestrator/pkg/config"
	logx "github.com/acpflow/email-orchestrator/pkg/logger"
)

func init() {
	logx.Init(*configx.MustNew[logx.Config]("LOG"))
}
