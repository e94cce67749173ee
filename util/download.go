package util

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"github.com/pkg/errors"
)

// Fetcher downloads files into a local cache directory.
type Fetcher struct {
	Client *http.Client
	// Retries is the number of extra attempts after the first failure.
	Retries uint64
	// NewBackOff builds the retry policy; nil means exponential.
	NewBackOff func() backoff.BackOff
	Log        logr.Logger
}

// Fetch returns dest, downloading url into it unless dest already exists.
// The file appears at dest only once fully written.
func (f *Fetcher) Fetch(ctx context.Context, url, dest string) (string, error) {
	if _, err := os.Stat(dest); err == nil {
		f.Log.V(DEBUG).Info("Using cached file", "path", dest)
		return dest, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", errors.Wrap(err, "creating cache directory")
	}

	newBackOff := f.NewBackOff
	if newBackOff == nil {
		newBackOff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), f.Retries), ctx)

	attempt := 0
	op := func() error {
		attempt++
		f.Log.Info("Downloading", "url", url, "attempt", attempt)
		return f.download(ctx, url, dest)
	}
	if err := backoff.Retry(op, policy); err != nil {
		return "", errors.Wrapf(err, "downloading %s", url)
	}
	return dest, nil
}

func (f *Fetcher) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %s", resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".part-*")
	if err != nil {
		return backoff.Permanent(err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
