package db

import (
	"database/sql"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
}

// OpenSQLite opens the SQLite database at path with WAL journaling and a busy
// timeout. The pragmas ride on the DSN so every pooled connection gets them.
func OpenSQLite(path string) (*sql.DB, error) {
	q := url.Values{}
	for _, p := range sqlitePragmas {
		q.Add("_pragma", p)
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	conn, err := sql.Open("sqlite", path+sep+q.Encode())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return conn, nil
}
