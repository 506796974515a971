package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"spool/app"
)

func main() {
	var (
		inPath  = flag.String("in", "spool.toml", "Config file to read (check and dump modes).")
		outPath = flag.String("out", "", "Output file (init mode; stdout when empty).")
		mode    = flag.String("mode", "check", "check|dump|init.")
	)
	flag.Parse()

	var err error
	switch strings.ToLower(*mode) {
	case "check":
		err = check(os.Stdout, *inPath)
	case "dump":
		err = dump(os.Stdout, *inPath)
	case "init":
		err = initConfig(*outPath)
	default:
		fatalf("unknown mode: %s\nusage: spoolcfg -mode check|dump [-in spool.toml]\n       spoolcfg -mode init [-out spool.toml]", *mode)
	}
	if err != nil {
		fatalf("%s: %v", *mode, err)
	}
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(2)
}

// check validates the file and lists the scenarios it would start.
func check(w io.Writer, path string) error {
	cfg, err := app.LoadConfig(path, false)
	if err != nil {
		return err
	}
	scenarios := cfg.Scenarios
	if len(scenarios) == 0 {
		scenarios = app.DefaultScenarios
		fmt.Fprintln(w, "no scenarios configured, defaults apply")
	}
	for i, line := range scenarios {
		sc, err := app.ParseScenario(line)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%2d  %s\n", i, sc)
	}
	fmt.Fprintf(w, "%s: ok\n", path)
	return nil
}

// dump prints the effective config, defaults filled in.
func dump(w io.Writer, path string) error {
	cfg, err := app.LoadConfig(path, false)
	if err != nil {
		return err
	}
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func initConfig(path string) error {
	cfg := app.DefaultConfig()
	cfg.Scenarios = append([]string(nil), app.DefaultScenarios...)
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	return os.WriteFile(path, data, 0o644)
}
