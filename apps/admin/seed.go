package main

import (
	"fmt"

	"github.com/trezcool/maendeleo/storage/database"
)

var seedRunFunc = database.SeedDemoCatalog // mockable

func (cli *commandLine) seed() error {
	if err := seedRunFunc(cli.db); err != nil {
		return err
	}
	fmt.Println("demo catalog seeded")
	return nil
}
