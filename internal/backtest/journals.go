package backtest

import (
	"fmt"
	"path/filepath"

	"github.com/rustyeddy/barsim/config"
	"github.com/rustyeddy/barsim/journal"
)

// Journals hands out one journal sink per run. A SQLite database is opened
// once and shared; CSV journals are opened per run, in a directory per
// pair when PerPair is set so concurrent runs never share files.
type Journals struct {
	cfg     config.JournalConfig
	perPair bool
	sqlite  *journal.SQLite
}

// Sink is a journal plus the directory side files (Org reports) go to.
type Sink struct {
	Journal journal.Journal
	Dir     string

	release func() error
}

// Release closes a per-run journal. Shared journals stay open.
func (s *Sink) Release() error {
	if s.release == nil {
		return nil
	}
	return s.release()
}

func OpenJournals(jc config.JournalConfig, perPair bool) (*Journals, error) {
	js := &Journals{cfg: jc, perPair: perPair}
	if jc.Type == "sqlite" {
		db, err := journal.NewSQLite(jc.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		js.sqlite = db
	}
	return js, nil
}

func (js *Journals) dir(p config.Pair) string {
	if js.perPair {
		return filepath.Join(js.cfg.Dir, p.String())
	}
	return js.cfg.Dir
}

func (js *Journals) For(p config.Pair) (*Sink, error) {
	dir := js.dir(p)
	switch js.cfg.Type {
	case "csv":
		j, err := journal.NewCSV(dir)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		return &Sink{Journal: j, Dir: dir, release: j.Close}, nil
	case "sqlite":
		return &Sink{Journal: js.sqlite, Dir: dir}, nil
	default:
		return &Sink{Journal: journal.Nop{}, Dir: dir}, nil
	}
}

// SQLite returns the shared database, or nil for other journal types.
func (js *Journals) SQLite() *journal.SQLite { return js.sqlite }

func (js *Journals) Close() error {
	if js.sqlite == nil {
		return nil
	}
	return js.sqlite.Close()
}
