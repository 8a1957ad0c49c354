package main

import (
	"bufio"
	"os"

	"github.com/urfave/cli/v2"

	dwarfhelper "dwarflayout/dwarf"
	"dwarflayout/logger"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "dwarflayout",
		Usage: "print the memory layout of the classes described by DWARF debug info",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "shared-object",
				Usage:   "binary to inspect, defaults to the game's libcoreclr.so under $HOME",
				EnvVars: []string{"LAYOUT_SHARED_OBJECT"},
			},
			&cli.StringFlag{
				Name:    "name",
				Usage:   "only classes with exactly this name",
				EnvVars: []string{"LAYOUT_NAME"},
			},
			&cli.StringFlag{
				Name:    "base-class",
				Usage:   "only classes with a direct base of this name",
				EnvVars: []string{"LAYOUT_BASE_CLASS"},
			},
			&cli.StringFlag{
				Name:    "contains",
				Usage:   "only classes with a data member of this (typedef-expanded) type",
				EnvVars: []string{"LAYOUT_CONTAINS"},
			},
			&cli.BoolFlag{
				Name:    "transitive-bases",
				Usage:   "let --base-class match any ancestor",
				EnvVars: []string{"LAYOUT_TRANSITIVE_BASES"},
			},
			&cli.BoolFlag{
				Name:    "include-structs",
				Usage:   "also print struct and union types",
				EnvVars: []string{"LAYOUT_INCLUDE_STRUCTS"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level written to stderr",
				Value:   "info",
				EnvVars: []string{"LAYOUT_LOG_LEVEL"},
			},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	if err := logger.SetupLogger(&logger.Config{Level: c.String("log-level")}); err != nil {
		return err
	}
	ipath := c.String("shared-object")
	if ipath == "" {
		var err error
		ipath, err = defaultSharedObjectPath()
		if err != nil {
			return err
		}
	}

	out := bufio.NewWriter(c.App.Writer)
	err := DwarfHelper(ipath, dumpOptions(c), out)
	// classes printed before a failure stay on stdout
	if flushErr := out.Flush(); err == nil {
		err = flushErr
	}
	return err
}

func dumpOptions(c *cli.Context) dwarfhelper.DumpOptions {
	return dwarfhelper.DumpOptions{
		Filter: &dwarfhelper.SearchFilter{
			ClassName:          c.String("name"),
			BaseClassName:      c.String("base-class"),
			ContainedClassName: c.String("contains"),
			TransitiveBases:    c.Bool("transitive-bases"),
		},
		IncludeStructs: c.Bool("include-structs"),
	}
}

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
