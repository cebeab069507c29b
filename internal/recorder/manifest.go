package recorder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"screencap/internal/fileutil"
)

// DedupeResult summarises one deduplication pass.
type DedupeResult struct {
	InputPath   string
	OutputPath  string
	InputLines  int
	OutputLines int
}

// Removed is the number of duplicate lines dropped.
func (r DedupeResult) Removed() int { return r.InputLines - r.OutputLines }

// DedupeLines keeps the last occurrence of each distinct line and preserves
// the relative order of the lines it keeps.
func DedupeLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	kept := make([]string, 0, len(lines))
	for i := len(lines) - 1; i >= 0; i-- {
		if _, ok := seen[lines[i]]; ok {
			continue
		}
		seen[lines[i]] = struct{}{}
		kept = append(kept, lines[i])
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

// Deduplicate writes inputPath + ".unique" and returns that path.
func Deduplicate(inputPath string) (string, error) {
	result, err := DeduplicateTo(inputPath, inputPath+UniqueSuffix)
	if err != nil {
		return "", err
	}
	return result.OutputPath, nil
}

// DeduplicateTo reads inputPath, drops earlier duplicates and writes the rest
// to outputPath. Line terminators are kept byte for byte.
func DeduplicateTo(inputPath, outputPath string) (DedupeResult, error) {
	lines, err := ReadLines(inputPath)
	if err != nil {
		return DedupeResult{}, err
	}
	kept := DedupeLines(lines)
	if err := fileutil.WriteFileAtomic(outputPath, []byte(strings.Join(kept, "")), 0o644); err != nil {
		return DedupeResult{}, fmt.Errorf("write deduplicated manifest: %w", err)
	}
	return DedupeResult{
		InputPath:   inputPath,
		OutputPath:  outputPath,
		InputLines:  len(lines),
		OutputLines: len(kept),
	}, nil
}

// ReadLines returns every line in path including its terminator. A final line
// without a newline is returned as is.
func ReadLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			lines = append(lines, line)
		}
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read manifest: %w", err)
		}
	}
}

// ParseEntries returns the segment names referenced by "file" directives, in
// manifest order.
func ParseEntries(path string) ([]string, error) {
	lines, err := ReadLines(path)
	if err != nil {
		return nil, err
	}
	var entries []string
	for _, line := range lines {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), "file ")
		if !ok {
			continue
		}
		if name := unquoteEntry(strings.TrimSpace(rest)); name != "" {
			entries = append(entries, name)
		}
	}
	return entries, nil
}

// unquoteEntry undoes ffconcat single quoting ('it'\''s' -> it's).
func unquoteEntry(value string) string {
	if !strings.HasPrefix(value, "'") {
		return value
	}
	var b strings.Builder
	quoted := false
	for i := 0; i < len(value); i++ {
		ch := value[i]
		switch {
		case ch == '\'':
			quoted = !quoted
		case ch == '\\' && !quoted && i+1 < len(value):
			i++
			b.WriteByte(value[i])
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}
