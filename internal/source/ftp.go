// Package source picks up invoice PDFs from the FTP drop and stages them in
// the local invoices directory.
package source

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/farm-ledger/internal/atomicfile"
	"github.com/sells-group/farm-ledger/internal/pipeline"
)

// FTPOptions configures the FTP drop.
type FTPOptions struct {
	URL      string
	User     string
	Password string
	// Dir overrides the directory from the URL path.
	Dir     string
	Timeout time.Duration
}

// Result lists what one fetch did, by file name.
type Result struct {
	Downloaded []string `json:"downloaded"`
	Skipped    []string `json:"skipped"`
	Rejected   []string `json:"rejected"`
}

// FTPSource downloads new invoice PDFs from an FTP directory.
type FTPSource struct {
	opts FTPOptions
}

// NewFTPSource creates a new FTPSource with the given options.
func NewFTPSource(opts FTPOptions) *FTPSource {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User, opts.Password = "anonymous", "anonymous@"
	}
	return &FTPSource{opts: opts}
}

// parseFTPURL extracts host (with port) and directory from an FTP URL.
func parseFTPURL(rawURL string) (host string, dir string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "source: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("source: expected ftp scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", "", eris.New("source: empty host in ftp url")
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	dir = u.Path
	if dir == "" {
		dir = "/"
	}
	return host, dir, nil
}

// Fetch copies every PDF in the remote directory that is not already in
// destDir. Names that are not plain PDF file names, and files that do not
// start with a PDF header, are rejected. One bad file does not stop the
// rest.
func (s *FTPSource) Fetch(ctx context.Context, destDir string) (*Result, error) {
	host, dir, err := parseFTPURL(s.opts.URL)
	if err != nil {
		return nil, err
	}
	if s.opts.Dir != "" {
		dir = s.opts.Dir
	}
	log := zap.L().With(zap.String("host", host), zap.String("dir", dir))

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "source: create %s", destDir)
	}

	log.Debug("source: connecting")
	conn, err := ftp.Dial(host, ftp.DialWithTimeout(s.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "source: ftp dial")
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(s.opts.User, s.opts.Password); err != nil {
		return nil, eris.Wrap(err, "source: ftp login")
	}

	names, err := conn.NameList(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "source: list %s", dir)
	}
	sort.Strings(names)

	res := &Result{Downloaded: []string{}, Skipped: []string{}, Rejected: []string{}}
	for _, entry := range names {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "source: fetch cancelled")
		}

		name := path.Base(entry)
		if !pipeline.SafeFileName(name) {
			continue
		}
		dest := filepath.Join(destDir, name)
		if _, err := os.Stat(dest); err == nil {
			res.Skipped = append(res.Skipped, name)
			continue
		}

		if err := s.retrieve(conn, path.Join(dir, name), dest); err != nil {
			log.Warn("source: rejected remote file", zap.String("file", name), zap.Error(err))
			res.Rejected = append(res.Rejected, name)
			continue
		}
		log.Info("source: downloaded", zap.String("file", name))
		res.Downloaded = append(res.Downloaded, name)
	}

	log.Info("source: fetch complete",
		zap.Int("downloaded", len(res.Downloaded)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("rejected", len(res.Rejected)),
	)
	return res, nil
}

func (s *FTPSource) retrieve(conn *ftp.ServerConn, remote, dest string) error {
	resp, err := conn.Retr(remote)
	if err != nil {
		return eris.Wrap(err, "source: ftp retrieve")
	}
	data, readErr := io.ReadAll(resp)
	closeErr := resp.Close()
	if readErr != nil {
		return eris.Wrap(readErr, "source: read remote file")
	}
	if closeErr != nil {
		return eris.Wrap(closeErr, "source: close ftp response")
	}

	return atomicfile.Write(dest, data, func(b []byte) error {
		if !pipeline.HasPDFHeader(b) {
			return eris.New("source: not a PDF")
		}
		return nil
	})
}
