// Command-line tool for handling RINEX files - TODO -
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/de-bkg/gnssd/pkg/filename"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Version:  "v0.0.1",
		Compiled: time.Now(),
		Authors: []*cli.Author{
			{
				Name:  "Erwin Wiesensarter",
				Email: "Erwin.Wiesensarter@bkg.bund.de",
			},
		},
		Copyright: "(c) 2020 BKG Frankfurt",
		HelpName:  "rnxgo",
		Usage:     "one more RINEX toolkit",
		ArgsUsage: "[args and such]",
		Commands: []*cli.Command{
			{
				Name:      "ident",
				Usage:     "Resolve the work-unit identity of an inbound file",
				UsageText: "ident - parse a filename and print its (site, year, doy, hour) identity",
				ArgsUsage: "<file>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						fmt.Fprintf(c.App.Writer, "ERROR: ident needs exactly one file\n\n")
						cli.ShowCommandHelpAndExit(c, "ident", 1)
					}

					desc, err := filename.Parse(c.Args().Get(0), filename.DefaultCountryResolver)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "site=%s year=%d doy=%03d hour=%c interval=%ds dialect=%s\n",
						desc.Site9, desc.Year, desc.Doy, desc.Hour, desc.Interval, desc.Dialect)
					return nil
				},
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
