package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/torenunez/lerni/pkg/logger"
)

const headerFooter = "Lines starting with # will be removed."

// Editor collects text by opening a temporary markdown file in an external
// editor. Command may carry arguments, as in "code --wait".
type Editor struct {
	Command string
}

func (e Editor) Text(ctx context.Context, f Field) (string, error) {
	argv := strings.Fields(e.Command)
	if len(argv) == 0 {
		return "", errors.New("no editor configured")
	}

	tmp, err := os.CreateTemp("", "lerni-*.md")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	_, err = tmp.WriteString(Header(f) + "\n" + f.Initial)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}

	cmd := exec.CommandContext(ctx, argv[0], append(argv[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) || errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("editor not found: %s", argv[0])
		}
		logger.Warn("Editor exited with error", zap.String("editor", e.Command), zap.Error(err))
		return "", fmt.Errorf("%w: editor exited: %v", ErrAborted, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read temp file: %w", err)
	}
	return StripHeader(string(data)), nil
}

// Header renders f as a block of # comment lines followed by a blank line.
func Header(f Field) string {
	var b strings.Builder
	b.WriteString("# " + f.Title + "\n")
	for _, line := range f.Help {
		b.WriteString("# " + line + "\n")
	}
	b.WriteString("# " + headerFooter + "\n")
	return b.String()
}

// StripHeader drops the leading comment and blank lines and trims the
// rest. A # line after the first line of content is kept.
func StripHeader(content string) string {
	lines := strings.Split(content, "\n")
	i := 0
	for ; i < len(lines); i++ {
		line := lines[i]
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		break
	}
	return strings.TrimSpace(strings.Join(lines[i:], "\n"))
}
