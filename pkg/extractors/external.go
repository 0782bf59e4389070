// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package extractors

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
)

func init() {
	Register("external", func() Extractor { return &external{} })
}

// defaultExternalTimeout bounds a single external extractor run.
const defaultExternalTimeout = 5 * time.Minute

// external runs a configured command as the extraction. The command
// receives the subject location as its last argument and the subject
// identity in the environment; whatever it writes to stdout becomes the
// extracted metadata. A non-zero exit or a timeout is an external
// failure, reported per item and never aborting a pipeline run.
type external struct{}

func (*external) Name() string           { return "external" }
func (*external) Version() string        { return "1.0" }
func (*external) OutputMode() OutputMode { return ExternalFile }

func (*external) ID() uuid.UUID {
	return uuid.MustParse("8c0ee37c-9f3e-4c0a-8b3f-6f4b4fae0003")
}

func (*external) EnsureContentAvailable(ctx context.Context, subject Subject) (bool, error) {
	_, err := os.Stat(subject.AbsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, Error.Wrap(err)
	}
	return true, nil
}

func (extractor *external) Extract(ctx context.Context, subject Subject, parameters map[string]string, output io.Writer) (Result, error) {
	// no shell: the command is split on whitespace
	fields := strings.Fields(parameters["command"])
	if len(fields) == 0 {
		return Result{}, Error.New("external extractor needs a non-empty 'command' parameter")
	}

	timeout := defaultExternalTimeout
	if value := parameters["timeout"]; value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return Result{}, Error.New("invalid timeout %q: %v", value, err)
		}
		timeout = parsed
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(fields[1:], subject.AbsPath)

	cmd := exec.CommandContext(ctx, fields[0], args...)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("METATREE_TYPE=%s", subject.Type),
		fmt.Sprintf("METATREE_PATH=%s", subject.Path),
		fmt.Sprintf("METATREE_DATASET_ID=%s", subject.DatasetID),
		fmt.Sprintf("METATREE_DATASET_VERSION=%s", subject.DatasetVersion),
	)

	var stderr bytes.Buffer
	cmd.Stdout = output
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Result{}, ErrExternal.New("%s timed out after %s", fields[0], timeout)
		}
		return Result{}, ErrExternal.New("%s: %v: %s", fields[0], err, strings.TrimSpace(stderr.String()))
	}

	return Result{
		ExtractorVersion: "1.0",
		Parameters:       parameters,
	}, nil
}
