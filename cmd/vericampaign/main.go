package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/G-Research/vericampaign/cmd/vericampaign/cmd"
	"github.com/G-Research/vericampaign/internal/common/logging"
)

func main() {
	// Reconfigured from --log-level once flags are parsed.
	_ = logging.ConfigureCommandLineLogging(os.Stdout, "info")
	if err := cmd.RootCmd().Execute(); err != nil {
		log.Errorf("[ERROR] %s", err)
		log.Debugf("%+v", logging.TopmostWithCause(err))
		os.Exit(1)
	}
}
