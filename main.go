/*
Command anima-rc inspects a game's resource tree the way the engine sees it:
URI resolution, active mods, decoding and preload groups.
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "anima-rc",
		Short:         "Resolve, load and preload engine resources",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.bind(root)

	root.AddCommand(newResolveCmd(opts))
	root.AddCommand(newLoadCmd(opts))
	root.AddCommand(newModsCmd(opts))
	root.AddCommand(newPreloadCmd(opts))
	root.AddCommand(newWatchCmd(opts))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
