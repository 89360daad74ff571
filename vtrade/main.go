package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/etnz/vtrade"
	"github.com/etnz/vtrade/cmd"
	"github.com/etnz/vtrade/docs"
	"github.com/google/subcommands"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
)

// currencyFlags take a currency code.
var currencyFlags = map[string]bool{"currency": true, "from": true, "to": true, "base": true}

func main() {
	name := path.Base(os.Args[0])
	commander := subcommands.NewCommander(flag.CommandLine, name)
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	cmd.Register(commander)

	// exits when invoked by the shell for completion
	completion().Complete(name)

	flag.Parse()
	cmd.SetupLogging()

	if sub := flag.Arg(0); sub != "" && !known(sub) {
		if found, code := cmd.RunExtension(sub, flag.Args()[1:]); found {
			os.Exit(code)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}

func known(name string) bool {
	switch name {
	case "help", "flags", "commands":
		return true
	}
	for _, cmds := range cmd.Commands() {
		for _, c := range cmds {
			if c.Name() == name {
				return true
			}
		}
	}
	return false
}

// completion describes the command line to the shell.
func completion() *complete.Command {
	var codes predict.Set
	for _, c := range vtrade.Codes() {
		codes = append(codes, string(c))
	}
	predictor := func(f *flag.Flag) complete.Predictor {
		if currencyFlags[f.Name] {
			return codes
		}
		if fv, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && fv.IsBoolFlag() {
			return predict.Nothing
		}
		return predict.Something
	}

	root := &complete.Command{
		Sub:   map[string]*complete.Command{},
		Flags: map[string]complete.Predictor{},
	}
	flag.VisitAll(func(f *flag.Flag) { root.Flags[f.Name] = predictor(f) })

	for _, cmds := range cmd.Commands() {
		for _, c := range cmds {
			fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
			c.SetFlags(fs)
			sub := &complete.Command{Flags: map[string]complete.Predictor{}}
			fs.VisitAll(func(f *flag.Flag) { sub.Flags[f.Name] = predictor(f) })
			root.Sub[c.Name()] = sub
		}
	}
	if topics, err := docs.GetAllTopics(); err == nil {
		root.Sub["topic"].Args = predict.Set(topics)
	}
	return root
}
