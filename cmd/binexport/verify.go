package main

import (
	"fmt"
	"os"

	"binexport/internal/config"
	"binexport/internal/container"
	"binexport/internal/diag"
	"binexport/internal/output"
)

type verifyReport struct {
	*container.Report
	OK    bool        `json:"ok"`
	Mode  string      `json:"mode"`
	Diags []diag.Diag `json:"diags"`
}

func cmdVerify(args []string) error {
	fs := newFlagSet("verify")
	in := fs.String("in", "", "path to a .BinExport file")
	strict := fs.Bool("strict", false, "decode every operand stream")
	configPath := fs.String("config", "", "YAML config file")
	asJSON := fs.Bool("json", false, "print JSON")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("--in is required")
	}

	mode, err := readMode(*configPath, *strict)
	if err != nil {
		return err
	}
	r, err := container.Open(*in, container.Options{Mode: mode})
	if err != nil {
		return err
	}
	defer r.Close()

	rep := container.Verify(r)
	if *asJSON {
		if err := output.WriteJSON(os.Stdout, verifyReport{
			Report: rep,
			OK:     rep.OK(),
			Mode:   mode.String(),
			Diags:  rep.Diags.Items(),
		}); err != nil {
			return err
		}
	} else {
		fmt.Printf("%s: %d/%d flow graphs decoded (%s)\n", *in, rep.Decoded, rep.FlowGraphs, mode)
		for _, d := range rep.Diags.Items() {
			fmt.Println(" ", d)
		}
	}
	if !rep.OK() {
		return fmt.Errorf("verify: %d problems", rep.Diags.Len())
	}
	return nil
}

// readMode picks the decode mode: strict when the flag is set or the
// loaded config asks for it.
func readMode(configPath string, strict bool) (diag.Mode, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return diag.ModeBestEffort, err
	}
	if strict || cfg.Strict {
		return diag.ModeStrict, nil
	}
	return diag.ModeBestEffort, nil
}
