package commands

import (
	"fmt"
	"os"

	"git.home.luguber.info/inful/metapipe/internal/normalize"
)

// CheckCmd implements the 'check' command. It exits with status 1 when any
// check raised a warning.
type CheckCmd struct {
	DatasetFlags
	Quiet bool `short:"q" help:"Print warnings only"`
}

func (c *CheckCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	c.apply(cfg)

	tbl, layout, err := loadDataset(cfg)
	if err != nil {
		return err
	}
	_, rep, err := normalize.Check(tbl, layout, cfg.CheckSpec())
	if err != nil {
		return err
	}

	for _, d := range rep.Diagnostics {
		if c.Quiet && d.Severity == normalize.SeverityOK {
			continue
		}
		fmt.Println(d)
	}
	fmt.Printf("%d checks, %d warnings\n", len(rep.Diagnostics), rep.WarningCount())
	if !rep.OK() {
		os.Exit(1)
	}
	return nil
}
