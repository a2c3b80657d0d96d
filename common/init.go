package common

import (
	"flag"

	"github.com/leafdriven/mediadex/common/config"
)

var Version = "v0.1.0"

var (
	Port         = flag.Int("port", 3000, "the listening port")
	PrintVersion = flag.Bool("version", false, "print version and exit")
)

func Init() {
	flag.Parse()
	SQLitePath = config.SQLitePath
}
