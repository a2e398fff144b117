package corpus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/schollz/progressbar/v3"
)

// ErrFetch indicates that a corpus could not be downloaded or read. This is
// fatal: the pipeline cannot start without its corpora.
var ErrFetch = errors.New("corpus fetch failed")

type Loader struct {
	client   *resty.Client
	cacheDir string
}

// NewLoader creates a corpus loader. If cacheDir is non-empty, downloaded
// corpora are written there so later runs can be pointed at the local copies.
func NewLoader(cacheDir string) *Loader {
	return &Loader{
		client:   resty.New(),
		cacheDir: cacheDir,
	}
}

// Load reads and parses an IOB corpus from an http(s) URL or a local path.
func (l *Loader) Load(ctx context.Context, source string) ([]Sentence, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		data, err = l.download(ctx, source)
	} else {
		data, err = os.ReadFile(source)
		if err != nil {
			err = fmt.Errorf("%w: reading %s: %v", ErrFetch, source, err)
		}
	}
	if err != nil {
		return nil, err
	}

	sentences, err := ParseIOB(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing corpus %s: %w", source, err)
	}

	slog.Info("corpus loaded", "source", source, "sentences", len(sentences))

	return sentences, nil
}

func (l *Loader) download(ctx context.Context, url string) ([]byte, error) {
	res, err := l.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("%w: downloading %s: %v", ErrFetch, url, err)
	}

	raw := res.RawBody()
	defer raw.Close()

	if !res.IsSuccess() {
		return nil, fmt.Errorf("%w: downloading %s: status %d", ErrFetch, url, res.StatusCode())
	}

	bar := progressbar.DefaultBytes(res.RawResponse.ContentLength, "downloading corpus")

	var buf bytes.Buffer
	if _, err := io.Copy(io.MultiWriter(&buf, bar), raw); err != nil {
		return nil, fmt.Errorf("%w: reading response for %s: %v", ErrFetch, url, err)
	}

	if l.cacheDir != "" {
		dest := filepath.Join(l.cacheDir, path.Base(url))
		if err := os.MkdirAll(l.cacheDir, os.ModePerm); err != nil {
			slog.Warn("unable to create corpus cache dir", "dir", l.cacheDir, "error", err)
		} else if err := os.WriteFile(dest, buf.Bytes(), 0644); err != nil {
			slog.Warn("unable to cache corpus", "dest", dest, "error", err)
		}
	}

	return buf.Bytes(), nil
}
