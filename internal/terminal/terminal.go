// Package terminal is the line based admin console of the device.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/chzyer/readline"

	"github.com/kuretru/hass-discovery-device/entity"
)

const defaultPrompt = "device> "

var errArguments = errors.New("wrong arguments")

// Module is the Home Assistant module as driven from the console.
type Module interface {
	Dump(w io.Writer)
	Send()
	Clear()
}

type Settings interface {
	Query(key string) (string, error)
	Set(key, value string) error
	Delete(key string) (bool, error)
	Reload()
}

// Runner executes fn on the device loop and waits for it.
type Runner func(fn func())

type command struct {
	help string
	fn   func(args []string, w io.Writer) error
}

type Console struct {
	module   Module
	settings Settings
	run      Runner
	commands map[string]command
	rl       *readline.Instance
}

func New(config entity.ConsoleConfig, module Module, settings Settings, run Runner) (*Console, error) {
	c := newConsole(module, settings, run)

	prompt := config.Prompt
	if prompt == "" {
		prompt = defaultPrompt
	}
	names := c.names()
	items := make([]readline.PrefixCompleterInterface, 0, len(names))
	for _, name := range names {
		items = append(items, readline.PcItem(name))
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		AutoComplete:    readline.NewPrefixCompleter(items...),
		InterruptPrompt: "^C",
		EOFPrompt:       "EXIT",
	})
	if err != nil {
		return nil, fmt.Errorf("Terminal: create readline failed, %w", err)
	}
	c.rl = rl
	return c, nil
}

func newConsole(module Module, settings Settings, run Runner) *Console {
	c := &Console{module: module, settings: settings, run: run}
	c.commands = map[string]command{
		"HA": {"Show the Home Assistant settings", func(_ []string, w io.Writer) error {
			c.run(func() { c.module.Dump(w) })
			return nil
		}},
		"HA.SEND": {"Advertise every entity", func([]string, io.Writer) error {
			c.run(c.module.Send)
			return nil
		}},
		"HA.CLEAR": {"Retract every entity", func([]string, io.Writer) error {
			c.run(c.module.Clear)
			return nil
		}},
		"GET": {"GET <key>, show a setting", c.get},
		"SET": {"SET <key> <value>, change a setting", c.set},
		"DEL": {"DEL <key>, reset a setting to its default", c.del},
		"RELOAD": {"Apply the settings", func([]string, io.Writer) error {
			c.run(c.settings.Reload)
			return nil
		}},
		"HELP": {"List the commands", c.help},
	}
	return c
}

// Stdout coordinates with the prompt, logs should go there.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run reads commands until EXIT, end of input or ctx is cancelled; cancel
// is called when the user leaves.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()
	go func() {
		<-ctx.Done()
		_ = c.rl.Close()
	}()

	for {
		line, err := c.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil || !c.Execute(line, c.rl.Stdout()) {
			if ctx.Err() == nil {
				_, _ = fmt.Fprintln(c.rl.Stdout(), "Exiting...")
				cancel()
			}
			return
		}
	}
}

// Execute runs a single command line and reports whether the console
// should keep going.
func (c *Console) Execute(line string, w io.Writer) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	name := strings.ToUpper(fields[0])
	if name == "EXIT" || name == "QUIT" {
		return false
	}

	cmd, ok := c.commands[name]
	if !ok {
		_, _ = fmt.Fprintf(w, "-ERROR: unknown command %v\n", fields[0])
		return true
	}
	if err := cmd.fn(fields[1:], w); err != nil {
		_, _ = fmt.Fprintf(w, "-ERROR: %v\n", err)
		return true
	}
	_, _ = fmt.Fprintln(w, "+OK")
	return true
}

func (c *Console) names() []string {
	names := make([]string, 0, len(c.commands)+1)
	for name := range c.commands {
		names = append(names, name)
	}
	names = append(names, "EXIT")
	sort.Strings(names)
	return names
}

func (c *Console) help(_ []string, w io.Writer) error {
	for _, name := range c.names() {
		if cmd, ok := c.commands[name]; ok {
			_, _ = fmt.Fprintf(w, "> %-10v %v\n", name, cmd.help)
		}
	}
	return nil
}

func (c *Console) get(args []string, w io.Writer) error {
	if len(args) != 1 {
		return errArguments
	}
	var value string
	var err error
	c.run(func() { value, err = c.settings.Query(args[0]) })
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "> %v => %q\n", args[0], value)
	return nil
}

func (c *Console) set(args []string, w io.Writer) error {
	if len(args) < 2 {
		return errArguments
	}
	value := strings.Join(args[1:], " ")
	var err error
	c.run(func() { err = c.settings.Set(args[0], value) })
	return err
}

func (c *Console) del(args []string, w io.Writer) error {
	if len(args) != 1 {
		return errArguments
	}
	var deleted bool
	var err error
	c.run(func() { deleted, err = c.settings.Delete(args[0]) })
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%v is not set", args[0])
	}
	return nil
}
