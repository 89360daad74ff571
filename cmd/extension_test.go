package cmd

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/etnz/vtrade/config"
)

func TestRunExtension(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("extension scripts need a unix shell")
	}
	tmp := t.TempDir()
	script := "#!/bin/sh\n" +
		"echo \"args=$*\"\n" +
		"echo \"" + EnvConfigFile + "=$" + EnvConfigFile + "\"\n" +
		"echo \"" + EnvVerbose + "=$" + EnvVerbose + "\"\n" +
		"echo \"" + config.EnvDataDir + "=$" + config.EnvDataDir + "\"\n" +
		"exit 3\n"
	if err := os.WriteFile(filepath.Join(tmp, "vtrade-hello"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", tmp+string(os.PathListSeparator)+os.Getenv("PATH"))
	out, _ := setup(t)
	*configFile = "/etc/vtrade.yaml"
	*Verbose = true

	found, code := RunExtension("hello", []string{"a", "b"})
	if !found || code != 3 {
		t.Fatalf("RunExtension() = %v, %d, want true, 3", found, code)
	}
	for _, want := range []string{
		"args=a b",
		EnvConfigFile + "=/etc/vtrade.yaml",
		EnvVerbose + "=true",
		config.EnvDataDir + "=" + *dataDir,
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("extension output does not contain %q:\n%s", want, out)
		}
	}

	if found, _ := RunExtension("missing", nil); found {
		t.Error("RunExtension(missing) found an extension")
	}
}
