// Copyright 2025 The qwindex Authors
// This file is part of qwindex.
//
// qwindex is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// qwindex is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with qwindex. If not, see <http://www.gnu.org/licenses/>.

// qwindex is the multisig wallet indexer daemon. It follows the wallet
// factory and every wallet it deploys, projecting their events into a
// relational store.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/quaiwallet/indexer/internal/config"
)

const version = "0.1.0"

var app = &cli.App{
	Name:      "qwindex",
	Usage:     "multisig wallet event indexer",
	Version:   version,
	Copyright: "Copyright 2025 The qwindex Authors",
	Flags:     []cli.Flag{envFileFlag},
	Before: func(ctx *cli.Context) error {
		// Seed the environment before the subcommand's flags resolve
		// their EnvVars, so dotenv values flow through flag parsing.
		return config.LoadEnvFile(ctx.String(envFileFlag.Name), ctx.IsSet(envFileFlag.Name))
	},
	Commands: []*cli.Command{
		runCommand,
		backfillCommand,
	},
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "qwindex:", err)
		os.Exit(1)
	}
}
