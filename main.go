package main

import (
	"github.com/acpflow/email-orchestrator/cli"
	_ "github.com/acpflow/email-orchestrator/pkg/logger/autoload"
)

func main() {
	cli.Execute()
}
