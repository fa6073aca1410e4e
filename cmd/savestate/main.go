// Command savestate inspects and validates the on-disk save-state wire
// format without needing a running emulator.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/nkondo/pocketgb/internal/savestate"
)

func main() {
	app := &cli.App{
		Name:  "savestate",
		Usage: "inspect pocketgb save-state files",
		Commands: []*cli.Command{
			inspectCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "decode a save-state file and print the top-level JSON payload",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one path argument")
			}
			path := c.Args().First()
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			payload, err := savestate.Decode(data)
			if err != nil {
				return fmt.Errorf("decode %s: %w", path, err)
			}

			var pretty map[string]json.RawMessage
			if err := json.Unmarshal(payload, &pretty); err != nil {
				fmt.Println(string(payload))
				return nil
			}
			out, err := json.MarshalIndent(pretty, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
