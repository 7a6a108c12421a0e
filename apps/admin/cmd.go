package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/maendeleo/core/progress"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db  *sqlx.DB
	svc *progress.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a migration command (up, down, status, ...)")
	fmt.Println("  recompute -user ID -course ID - recompute a learner's course summary from leaf progress")
	fmt.Println("  seed - insert a demo catalog for local development")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	recomputeCmd := flag.NewFlagSet("recompute", flag.ExitOnError)
	recomputeUser := recomputeCmd.String("user", "", "The learner's ID.")
	recomputeCourse := recomputeCmd.String("course", "", "The course ID.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "recompute":
		if err := recomputeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *recomputeUser == "" || *recomputeCourse == "" {
			recomputeCmd.Usage()
			return errHelp
		}
		return cli.recompute(*recomputeUser, *recomputeCourse)
	case "seed":
		return cli.seed()
	default:
		cli.printUsage()
		return errHelp
	}
}
