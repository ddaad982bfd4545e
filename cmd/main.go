package main

import (
	"fmt"
	"os"

	"riskengine/cmd/keys"
	"riskengine/cmd/riskengine"
	"riskengine/cmd/varreport"
	"riskengine/src/logging"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var Version string

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file found, using process environment")
	}

	closer, err := logging.Setup(logrus.StandardLogger(), logging.GetConfig())
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closer.Close()

	app := cli.NewApp()
	app.Name = "Risk Engine CMD"
	app.Usage = "Real-time portfolio risk and circuit breaker engine"
	app.Version = Version

	app.Commands = []cli.Command{
		engineCMD,
		varReportCMD,
		hashTokenCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		_ = closer.Close()
		os.Exit(1)
	}
}

var (
	engineCMD = cli.Command{
		Name:        "engine",
		Usage:       "run the risk engine",
		Action:      engineAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the evaluation loop with price feed, inbound channels, sinks and HTTP surface`,
	}
	varReportCMD = cli.Command{
		Name:        "varreport",
		Usage:       "run an offline VaR report",
		Action:      varReportAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Fetch Binance klines and log VaR, CVaR, entropy, ATR and the candle stop suggestion`,
	}
	hashTokenCMD = cli.Command{
		Name:        "hashtoken",
		Usage:       "hash an operator override token",
		Action:      hashTokenAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Read OVERRIDE_TOKEN or one line from stdin and print OVERRIDE_TOKEN_HASH`,
	}
)

func engineAction(_ *cli.Context) error {
	defer handlePanic()

	logrus.Info("Starting risk engine CMD")
	eng := &riskengine.RiskEngine{
		Log: logrus.WithField("cmd", "engine"),
	}
	if err := eng.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func varReportAction(_ *cli.Context) error {

	logrus.Info("Starting VaR report CMD")
	report := &varreport.VarReport{
		Log: logrus.WithField("cmd", "varreport"),
	}

	if err := report.Start(); err != nil {
		logrus.WithError(err).Error("Starting VaR report cmd")
		return err
	}

	return nil
}

func hashTokenAction(_ *cli.Context) error {
	return keys.HashOverrideToken(keys.GetConfig(), os.Stdin, os.Stdout)
}

func handlePanic() {
	if r := recover(); r != nil {
		logrus.WithError(fmt.Errorf("%+v", r)).Error("risk engine panic")
		panic(r)
	}
}
