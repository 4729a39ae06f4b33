package commands

import (
	"fmt"

	"git.home.luguber.info/inful/metapipe/internal/config"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool `help:"Overwrite an existing configuration file"`
}

func (i *InitCmd) Run(_ *Global, root *CLI) error {
	path := root.Config
	if path == "" {
		path = config.DefaultPath
	}
	if err := config.Init(path, i.Force); err != nil {
		return err
	}
	fmt.Printf("Wrote starter configuration to %s\n", path)
	return nil
}
