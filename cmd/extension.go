package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"

	"github.com/etnz/vtrade/config"
)

// Environment passed to extensions.
const (
	EnvConfigFile = "VTRADE_CONFIG"
	EnvVerbose    = "VTRADE_VERBOSE"
)

// RunExtension attempts to find and execute an external vtrade-<subcommand> binary.
// It returns (true, exitCode) if an extension was found and executed,
// and (false, 0) if no extension was found.
//
// Global flags are passed in the environment, the data dir as
// config.EnvDataDir so that the extension loads the same configuration.
func RunExtension(subcommand string, args []string) (bool, int) {
	name := "vtrade-" + subcommand

	lp, err := exec.LookPath(name)
	if err != nil {
		log.Printf("External command %q not found in PATH: %v", name, err)
		return false, 0
	}

	cmd := exec.Command(lp, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	cmd.Env = os.Environ()
	cmd.Env = append(cmd.Env, EnvConfigFile+"="+*configFile)
	cmd.Env = append(cmd.Env, EnvVerbose+"="+strconv.FormatBool(*Verbose))
	if *dataDir != "" {
		cmd.Env = append(cmd.Env, config.EnvDataDir+"="+*dataDir)
	}

	if err := cmd.Run(); err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return true, exitError.ExitCode()
		}
		fmt.Fprintf(stderr, "Error executing external command %q: %v\n", name, err)
		return true, 1
	}
	return true, 0
}
