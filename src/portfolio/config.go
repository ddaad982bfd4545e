package portfolio

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	HistorySize int    `envconfig:"PORTFOLIO_HISTORY_SIZE" default:"1000"`
	BoundaryTZ  string `envconfig:"PORTFOLIO_BOUNDARY_TZ" default:"UTC"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
