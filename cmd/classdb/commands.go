package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hupe1980/classdb"
	"github.com/hupe1980/classdb/feature"
	"github.com/hupe1980/classdb/persistence"
)

// indexCommand registers and indexes the classpath, then prints a summary.
func indexCommand(c *cli.Context) (err error) {
	e, err := openEnv(c)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, e.Close()) }()

	paths, err := e.classpath(c.Args().Slice())
	if err != nil {
		return err
	}

	start := time.Now()
	cp, err := e.db.Classpath(c.Context, paths...)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, cp.Close()) }()

	stats, err := e.db.Stats(c.Context)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "indexed %d locations (%d runtime) in %s\n",
		len(cp.Locations()), len(e.db.RuntimeLocations()), time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(c.App.Writer, "records: %d total, %d processed, %d deprecated\n",
		stats.Records, stats.Processed, stats.Deprecated)
	return nil
}

// findCommand resolves a class on the classpath.
func findCommand(c *cli.Context) (err error) {
	if c.NArg() != 1 {
		return cli.Exit("find expects exactly one class name", 2)
	}
	fqn := c.Args().First()

	e, err := openEnv(c)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, e.Close()) }()

	paths, err := e.classpath(c.StringSlice("classpath"))
	if err != nil {
		return err
	}

	cp, err := e.db.Classpath(c.Context, paths...)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, cp.Close()) }()

	cls, err := cp.FindClass(fqn)
	if err != nil {
		return err
	}

	path := ""
	for _, loc := range cp.Locations() {
		if loc.ID == cls.Location() {
			path = loc.Location.Path()
			break
		}
	}
	fmt.Fprintf(c.App.Writer, "%s\t%d\t%s\n", cls.FullName(), cls.Location(), path)

	if out := c.String("output"); out != "" {
		b, err := cp.ClassBytes(c.Context, fqn)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, b, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// recordJSON is the JSON form of a persisted record.
type recordJSON struct {
	ID           uint64 `json:"id"`
	Path         string `json:"path"`
	Hash         string `json:"hash"`
	Runtime      bool   `json:"runtime"`
	State        string `json:"state"`
	SupersededBy uint64 `json:"superseded_by,omitempty"`
	Vanished     bool   `json:"vanished,omitempty"`
}

// recordsCommand lists the persisted records.
func recordsCommand(c *cli.Context) (err error) {
	e, err := openEnv(c)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, e.Close()) }()

	if c.Bool("cleanup") {
		if _, err := e.db.Cleanup(c.Context); err != nil {
			return err
		}
	}

	records, err := e.db.Records(c.Context)
	if err != nil {
		return err
	}

	if c.Bool("json") {
		out := make([]recordJSON, 0, len(records))
		for _, r := range records {
			out = append(out, recordJSON{
				ID:           uint64(r.ID),
				Path:         r.Path,
				Hash:         r.Hash,
				Runtime:      r.Runtime,
				State:        r.State.String(),
				SupersededBy: uint64(r.SupersededBy),
				Vanished:     r.Vanished,
			})
		}
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	return writeRecords(c.App.Writer, records)
}

func writeRecords(w io.Writer, records []persistence.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tRUNTIME\tSTATUS\tPATH")
	for _, r := range records {
		status := "live"
		switch {
		case r.SupersededBy != 0:
			status = fmt.Sprintf("superseded by %d", r.SupersededBy)
		case r.Vanished:
			status = "vanished"
		}
		fmt.Fprintf(tw, "%d\t%s\t%t\t%s\t%s\n", r.ID, r.State, r.Runtime, status, r.Path)
	}
	return tw.Flush()
}

// watchCommand keeps a classpath open until interrupted. Whenever a refresh
// indexed new locations the classpath is reopened, which releases the old
// snapshot so its superseded records are reclaimed.
func watchCommand(c *cli.Context) (err error) {
	changed := make(chan struct{}, 1)
	onSignal := feature.HandlerFunc(func(_ context.Context, sig feature.Signal) error {
		switch s := sig.(type) {
		case feature.AfterIndexing:
			if len(s.Locations) > 0 {
				select {
				case changed <- struct{}{}:
				default:
				}
			}
		case feature.LocationRemoved:
			fmt.Fprintf(c.App.Writer, "removed %d\t%s\n", s.Record.ID, s.Record.Path)
		}
		return nil
	})

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	e, err := openEnv(c,
		classdb.WithWatch(cfg.WatchDebounce()),
		classdb.WithRefreshInterval(cfg.RefreshInterval()),
		classdb.WithFeature("cli.watch", onSignal),
	)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, e.Close()) }()

	paths, err := e.classpath(c.Args().Slice())
	if err != nil {
		return err
	}

	var cp *classdb.Classpath
	defer func() {
		if cp != nil {
			err = errors.Join(err, cp.Close())
		}
	}()

	for {
		next, err := e.db.Classpath(c.Context, paths...)
		if err != nil {
			return err
		}
		// Indexing for the new classpath itself is not a change.
		select {
		case <-changed:
		default:
		}
		if cp != nil {
			if err := cp.Close(); err != nil {
				e.logger.Warn("releasing classpath failed", "snapshot", cp.Name(), "error", err)
			}
		}
		cp = next
		e.logger.Info("watching classpath", "snapshot", cp.Name(), "locations", len(cp.Locations()))

		select {
		case <-c.Context.Done():
			return nil
		case <-changed:
		}
	}
}
