package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "walletctl",
		Usage: "Inspect and repair Google Wallet event ticket passes",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Debug logging"},
		},
		Commands: []*cli.Command{
			{
				Name:  "classes",
				Usage: "Event ticket classes registered for the issuer",
				Subcommands: []*cli.Command{
					{Name: "list", Usage: "Print every class id", Action: listClasses},
					{Name: "print", Usage: "Print one class", ArgsUsage: "<classID>", Action: printClass},
				},
			},
			{
				Name:  "objects",
				Usage: "Event ticket objects (one per ticket)",
				Subcommands: []*cli.Command{
					{Name: "list", Usage: "Print the objects of a class", ArgsUsage: "<classID>", Action: listObjects},
					{Name: "print", Usage: "Print one object", ArgsUsage: "<objectID>", Action: printObject},
					{Name: "shred", Usage: "Deactivate an object", ArgsUsage: "<objectID>", Action: shredObject},
				},
			},
			{
				Name:  "settings",
				Usage: "Installation-wide wallet settings",
				Subcommands: []*cli.Command{
					{Name: "show", Usage: "Print the resolved settings", Action: showSettings},
					{
						Name:  "set",
						Usage: "Store settings in the global settings table",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "issuer-id", Usage: "Numeric issuer id"},
							&cli.StringFlag{Name: "credentials-file", Usage: "Service account JSON file"},
							&cli.StringFlag{Name: "maps-api-key", Usage: "Google Maps API key for geocoding"},
						},
						Action: setSettings,
					},
				},
			},
			{
				Name:  "events",
				Usage: "Per-event pass settings",
				Subcommands: []*cli.Command{
					{
						Name:      "configure",
						Usage:     "Update an event's pass settings and refresh its class",
						ArgsUsage: "<eventID>",
						Flags:     eventFlags(),
						Action:    configureEvent,
					},
				},
			},
			{
				Name:      "history",
				Usage:     "Print the audit trail of a class or object",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "limit", Value: 20},
				},
				Action: history,
			},
		},
	}
}

func eventFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "approve", Usage: "Approve transmitting attendee data to Google"},
		&cli.BoolFlag{Name: "show-disclaimer", Usage: "Show a privacy notice before saving"},
		&cli.StringSliceFlag{Name: "disclaimer", Usage: "Privacy notice text as locale=text, repeatable"},
		&cli.StringFlag{Name: "logo", Usage: "Logo image URL"},
		&cli.StringFlag{Name: "hero", Usage: "Hero image URL"},
		&cli.Float64Flag{Name: "latitude"},
		&cli.Float64Flag{Name: "longitude"},
	}
}
