// Package console is the line-oriented front-end. Commands come from an
// input stream or a named pipe; results for console requests are printed
// when the engine reports them.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"tagkeep/coordinator"
	"tagkeep/registry"
	"tagkeep/uid"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Config holds console settings.
type Config struct {
	Disabled bool   `yaml:"disabled"`
	Path     string `yaml:"path"` // named pipe to read commands from; empty reads stdin
}

// Backend is the engine surface the console drives.
type Backend interface {
	Submit(ctx context.Context, req coordinator.Request) (uuid.UUID, error)
	Delete(ctx context.Context, id uid.ID) (registry.Entry, error)
	List(ctx context.Context) ([]registry.Entry, error)
	Status(ctx context.Context) (coordinator.Status, error)
}

// Console executes commands against a Backend.
type Console struct {
	backend Backend
	in      io.Reader
	path    string

	mu  sync.Mutex // guards out
	out io.Writer
}

var _ coordinator.Listener = (*Console)(nil)

// New creates a console. If cfg.Path is set a named pipe is created there
// and in is ignored.
func New(cfg Config, backend Backend, in io.Reader, out io.Writer) (*Console, error) {
	c := &Console{backend: backend, in: in, out: out, path: cfg.Path}
	if cfg.Path == "" {
		return c, nil
	}

	// Remove existing pipe if it exists
	os.Remove(cfg.Path)

	if err := syscall.Mkfifo(cfg.Path, 0666); err != nil {
		return nil, fmt.Errorf("create named pipe %s: %w", cfg.Path, err)
	}
	return c, nil
}

// Run reads commands until ctx is cancelled or the input ends. A named
// pipe is reopened each time its writer closes it.
func (c *Console) Run(ctx context.Context) error {
	if c.path == "" {
		c.println(cyan, "Type 'help' for commands")
		return c.serve(ctx, c.in)
	}

	log.Printf("Console listening on %s", c.path)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// blocks until a writer connects
		file, err := os.OpenFile(c.path, os.O_RDONLY, 0)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("Console pipe open error: %v", err)
			time.Sleep(time.Second)
			continue
		}

		err = c.serve(ctx, file)
		file.Close()
		if errors.Is(err, context.Canceled) {
			return err
		}
	}
}

func (c *Console) serve(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Exec(ctx, scanner.Text())
	}
	return scanner.Err()
}

// Close removes the named pipe, if any.
func (c *Console) Close() error {
	if c.path == "" {
		return nil
	}
	return os.Remove(c.path)
}

// Exec runs a single command line.
func (c *Console) Exec(ctx context.Context, line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	cmd, err := parseLine(line)
	if err != nil {
		c.println(red, err.Error())
		return
	}

	switch cmd.Name {
	case "help":
		c.help()
	case "list":
		c.list(ctx)
	case "status":
		c.status(ctx)
	case "delete":
		c.delete(ctx, cmd.Arg)
	case "register":
		c.submit(ctx, coordinator.Request{Intent: coordinator.IntentRegister, Label: cmd.Arg, Origin: coordinator.OriginConsole})
	case "identify":
		c.submit(ctx, coordinator.Request{Intent: coordinator.IntentIdentify, Origin: coordinator.OriginConsole})
	case "rename":
		c.submit(ctx, coordinator.Request{Intent: coordinator.IntentRename, Label: cmd.Arg, Origin: coordinator.OriginConsole})
	}
}

func (c *Console) submit(ctx context.Context, req coordinator.Request) {
	_, err := c.backend.Submit(ctx, req)
	switch {
	case err == nil:
		switch req.Intent {
		case coordinator.IntentRegister:
			c.printf(cyan, "Present card to register as %q", strings.TrimSpace(req.Label))
		case coordinator.IntentRename:
			c.printf(cyan, "Present card to rename to %q", strings.TrimSpace(req.Label))
		default:
			c.println(cyan, "Present card to identify")
		}
	case errors.Is(err, coordinator.ErrBusy):
		c.println(red, "Busy: another acquisition is in progress, try again later")
	case errors.Is(err, registry.ErrInvalidLabel):
		c.printf(red, "Invalid label: %v", err)
	default:
		c.printf(red, "Submit: %v", err)
	}
}

func (c *Console) list(ctx context.Context) {
	entries, err := c.backend.List(ctx)
	if err != nil {
		c.printf(red, "List: %v", err)
		return
	}
	if len(entries) == 0 {
		c.println(nil, "No items registered")
		return
	}
	c.printf(nil, "%d item(s):", len(entries))
	for _, e := range entries {
		c.printf(nil, "  %2d  %-29s  %s", e.Slot, e.ID, e.Label)
	}
}

func (c *Console) status(ctx context.Context) {
	st, err := c.backend.Status(ctx)
	if err != nil {
		c.printf(red, "Status: %v", err)
		return
	}
	if st.Pending == nil {
		c.println(nil, "Mode: idle")
	} else {
		c.printf(nil, "Mode: awaiting card for %s (%s), %v left",
			st.Mode, st.Pending.Request.Origin, st.Pending.Remaining.Round(100*time.Millisecond))
	}
	c.printf(nil, "Items: %d/%d", st.Total, st.Capacity)
	if st.LastItem != "" {
		c.printf(nil, "Last item: %s", st.LastItem)
	}
}

func (c *Console) delete(ctx context.Context, arg string) {
	id, err := uid.Parse(arg)
	if err != nil {
		c.printf(red, "Invalid identifier %q: %v", arg, err)
		return
	}
	entry, err := c.backend.Delete(ctx, id)
	switch {
	case err == nil:
		c.printf(green, "Deleted %q (%s)", entry.Label, entry.ID)
	case errors.Is(err, registry.ErrNotFound):
		c.printf(yellow, "No item with identifier %s", id)
	default:
		c.printf(red, "Delete %s: %v", id, err)
	}
}

func (c *Console) help() {
	c.println(nil, `Commands:
  register <label>   register the next card presented
  identify           show the label of the next card presented
  rename <label>     relabel the next card presented
  list               list registered items
  delete <uid>       remove an item, e.g. delete AA:BB:CC:DD
  status             show reader and registry state
  help               show this help`)
}

// Submitted implements coordinator.Listener.
func (c *Console) Submitted(coordinator.Pending) {}

// Deleted implements coordinator.Listener.
func (c *Console) Deleted(registry.Entry) {}

// Finished implements coordinator.Listener. Only results of console
// requests are printed.
func (c *Console) Finished(ev coordinator.Event) {
	if ev.Origin != coordinator.OriginConsole {
		return
	}

	switch ev.Outcome {
	case coordinator.Success:
		switch ev.Intent {
		case coordinator.IntentRegister:
			c.printf(green, "Registered %s as %q", ev.Entry.ID, ev.Entry.Label)
		case coordinator.IntentRename:
			c.printf(green, "Renamed %s to %q", ev.Entry.ID, ev.Entry.Label)
		default:
			c.printf(green, "Identified %s: %s", ev.Entry.ID, ev.Entry.Label)
		}
	case coordinator.NotFound:
		c.printf(yellow, "Card %s is not registered", ev.Entry.ID)
	case coordinator.AlreadyRegistered:
		c.printf(yellow, "Card %s is already registered as %q", ev.Entry.ID, ev.Entry.Label)
	case coordinator.Timeout:
		c.println(yellow, "Timed out waiting for a card")
	case coordinator.Rejected:
		c.printf(red, "Rejected: %v", ev.Err)
	case coordinator.PersistenceFailed:
		c.printf(red, "Could not save registry: %v", ev.Err)
	}
}

func (c *Console) printf(col *color.Color, format string, a ...any) {
	c.println(col, fmt.Sprintf(format, a...))
}

func (c *Console) println(col *color.Color, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if col == nil {
		fmt.Fprintln(c.out, msg)
		return
	}
	col.Fprintln(c.out, msg)
}
