package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alnah/go-docpipe/internal/format"
	"github.com/alnah/go-docpipe/internal/orchestrator"
	"github.com/alnah/go-docpipe/internal/usage"
)

// warnNonMarkdownExtension writes a warning to w if path has an extension
// that is not .md. This alerts users that the output will be Markdown
// regardless of the file extension they specified.
func warnNonMarkdownExtension(w io.Writer, path string) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != "" && ext != ".md" {
		_, _ = fmt.Fprintf(w, "Warning: output is Markdown regardless of %s extension\n", ext)
	}
}

// deriveOutputName converts an input file name to an output name.
// Example: ("notes.md", "_zh") -> "notes_zh.md"
func deriveOutputName(inputPath, suffix string) string {
	base := filepath.Base(inputPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return base + suffix + ".md"
}

// batchOutputName names a directory-mode output: "<lang>_<name>".
func batchOutputName(target, name string) string {
	return target + "_" + filepath.Base(name)
}

// isMarkdown reports whether name has a .md extension.
func isMarkdown(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".md")
}

// fileExists reports whether path exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// readInput reads an input file. An empty file is valid input.
func readInput(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s: %w", path, ErrFileNotFound)
		}
		return "", fmt.Errorf("cannot access file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory: %w", path, ErrFileNotFound)
	}

	// #nosec G304 -- path is user-provided, validated above
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(content), nil
}

// writeFileAtomic writes content to path atomically.
// It fails if the file already exists (O_EXCL), preventing accidental overwrites.
// On write failure, the partial file is removed.
func writeFileAtomic(path, content string) error {
	// #nosec G302 G304 -- user-specified output file with standard permissions
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s: %w", path, ErrOutputExists)
		}
		return fmt.Errorf("cannot create output file: %w", err)
	}

	writeErr := func() error {
		defer func() { _ = f.Close() }()
		if _, err := f.WriteString(content); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}()

	if writeErr != nil {
		_ = os.Remove(path)
		return writeErr
	}

	return nil
}

// replaceFile writes content to a temporary file next to path, then renames
// it over path. Readers see the old file or the new one, never a partial write.
func replaceFile(path, content string) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("cannot create output file: %w", err)
	}
	tmp := f.Name()

	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write output: %w", err)
	}
	// #nosec G302 -- output file with standard permissions
	if err := os.Chmod(tmp, 0644); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace output: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Progress reporting
// ---------------------------------------------------------------------------

// progressPrinter writes one line per finished unit.
// Calls are serialized by the orchestrator.
type progressPrinter struct {
	w        io.Writer
	currency string
}

func (p *progressPrinter) update(pr orchestrator.Progress) {
	status := "done"
	if pr.Failed {
		status = "kept original"
	}
	_, _ = fmt.Fprintf(p.w, "  %s %s (%s)\n", format.Progress(pr.Done, pr.Total), status, usage.Short(pr.Usage, p.currency))
}

// printSummary writes the usage block of a run.
func printSummary(w io.Writer, s usage.Stats, currency string) {
	_, _ = fmt.Fprintln(w, usage.Format(s, currency))
}
