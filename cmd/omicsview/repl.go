package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

var errQuit = errors.New("quit")

const helpText = `commands:
  page N                 go to page N
  next | prev            step one page
  sort FIELD [asc|desc]  order by a column
  filter KEY [VALUE]     set a filter; no value resets it
  search TEXT            search (applied once typing pauses)
  clear                  clear the search at once
  refresh                reload the current page
  network GENE           show the association network of GENE
  score N                minimum combined score of the network (1-1000)
  help                   show this help
  quit                   exit
`

// graphPanel is the part of network.Panel the prompt drives.
type graphPanel interface {
	SetGene(id string) error
	SetMinCombinedScore(n int) error
}

// lockedWriter serializes writes from the renderers and the prompt.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

type repl struct {
	table table
	panel graphPanel
	out   io.Writer
}

// run executes commands read from in until quit, end of input or ctx done.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := r.exec(line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				fmt.Fprintf(r.out, "error: %v\n", err)
			}
		}
	}
}

// exec runs one command line.
func (r *repl) exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit", "q":
		return errQuit
	case "help", "?":
		_, err := io.WriteString(r.out, helpText)
		return err
	case "page":
		if len(args) != 1 {
			return errors.New("usage: page N")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("page: %w", err)
		}
		return r.table.SetPage(n)
	case "next", "prev":
		page, count := r.table.Position()
		if cmd == "next" {
			if page >= count {
				return nil
			}
			return r.table.SetPage(page + 1)
		}
		if page <= 1 {
			return nil
		}
		return r.table.SetPage(page - 1)
	case "sort":
		if len(args) < 1 || len(args) > 2 {
			return errors.New("usage: sort FIELD [asc|desc]")
		}
		if !r.table.Sortable(args[0]) {
			return fmt.Errorf("cannot sort by %q", args[0])
		}
		asc := true
		if len(args) == 2 {
			switch strings.ToLower(args[1]) {
			case "asc":
			case "desc":
				asc = false
			default:
				return fmt.Errorf("sort direction must be asc or desc, got %q", args[1])
			}
		}
		return r.table.SetSort(args[0], asc)
	case "filter":
		if len(args) < 1 {
			return errors.New("usage: filter KEY [VALUE]")
		}
		return r.table.SetFilter(args[0], strings.Join(args[1:], " "))
	case "search":
		r.table.SetSearchText(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0])))
		return nil
	case "clear":
		return r.table.ClearSearch()
	case "refresh":
		return r.table.Refresh()
	case "network", "score":
		if r.panel == nil {
			return errors.New("network panel is not available")
		}
		if len(args) != 1 {
			return fmt.Errorf("usage: %s %s", cmd, map[string]string{"network": "GENE", "score": "N"}[cmd])
		}
		if cmd == "network" {
			return r.panel.SetGene(args[0])
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("score: %w", err)
		}
		return r.panel.SetMinCombinedScore(n)
	default:
		return fmt.Errorf("unknown command %q (try help)", fields[0])
	}
}
