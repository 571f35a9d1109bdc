package mailsift

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// LoadSamples reads spam and ham samples, one per line, empty lines skipped.
func LoadSamples(spam, ham io.Reader) ([]Sample, error) {
	var res []Sample

	read := func(r io.Reader, isSpam bool) error {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			res = append(res, Sample{Text: line, Spam: isSpam})
		}
		return scanner.Err()
	}

	if err := read(spam, true); err != nil {
		return nil, fmt.Errorf("can't read spam samples: %w", err)
	}
	if err := read(ham, false); err != nil {
		return nil, fmt.Errorf("can't read ham samples: %w", err)
	}
	return res, nil
}

// ReadSampleFiles loads a custom seed corpus from spam and ham sample files.
// Both files are attempted, failures are aggregated.
func ReadSampleFiles(spamFile, hamFile string) ([]Sample, error) {
	var errs *multierror.Error

	open := func(path string) io.ReadCloser {
		fh, err := os.Open(path) //nolint:gosec // path is controlled by the app
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("can't open samples %s: %w", path, err))
			return io.NopCloser(strings.NewReader(""))
		}
		return fh
	}

	spam := open(spamFile)
	defer spam.Close()
	ham := open(hamFile)
	defer ham.Close()

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return LoadSamples(spam, ham)
}
