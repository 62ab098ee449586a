// Package console handles the interactive side of the CLI: reading the
// license key and printing coloured progress lines.
package console

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"licensebeat/internal/errors"
	"licensebeat/internal/security"
)

const keyPrompt = "Enter a license key"

type styles struct {
	prompt  lipgloss.Style
	success lipgloss.Style
	notice  lipgloss.Style
	failure lipgloss.Style
	detail  lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		prompt:  r.NewStyle().Foreground(lipgloss.Color("6")),
		success: r.NewStyle().Foreground(lipgloss.Color("2")),
		notice:  r.NewStyle().Foreground(lipgloss.Color("3")),
		failure: r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		detail:  r.NewStyle().Faint(true),
	}
}

// Console writes user-facing output. It is safe for concurrent use; the
// heartbeat reports from its own goroutine.
type Console struct {
	in         *bufio.Reader
	out        io.Writer
	errOut     io.Writer
	readSecret func() ([]byte, error)
	debug      bool

	mu        sync.Mutex
	styles    styles
	errStyles styles
}

// Option configures a Console
type Option func(*Console)

// WithDebug enables verbose error output
func WithDebug(debug bool) Option {
	return func(c *Console) {
		c.debug = debug
	}
}

// WithSecretReader reads the key without echo instead of a plain line
func WithSecretReader(fn func() ([]byte, error)) Option {
	return func(c *Console) {
		c.readSecret = fn
	}
}

// New creates a Console over the given streams
func New(in io.Reader, out, errOut io.Writer, opts ...Option) *Console {
	c := &Console{
		in:        bufio.NewReader(in),
		out:       out,
		errOut:    errOut,
		styles:    newStyles(lipgloss.NewRenderer(out)),
		errStyles: newStyles(lipgloss.NewRenderer(errOut)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewStdio creates a Console on the process streams. The key is read with
// echo disabled when stdin is a terminal.
func NewStdio(debug bool) *Console {
	opts := []Option{WithDebug(debug)}
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		opts = append(opts, WithSecretReader(func() ([]byte, error) {
			return term.ReadPassword(fd)
		}))
	}
	return New(os.Stdin, os.Stdout, os.Stderr, opts...)
}

// PromptKey returns preset when it is non-empty, otherwise asks for the
// license key.
func (c *Console) PromptKey(preset string) (string, error) {
	if strings.TrimSpace(preset) != "" {
		return security.NormalizeLicenseKey(preset)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprint(c.out, c.styles.prompt.Render(keyPrompt+": "))

	var raw string
	if c.readSecret != nil {
		secret, err := c.readSecret()
		fmt.Fprintln(c.out)
		if err != nil {
			return "", fmt.Errorf("reading license key: %w", err)
		}
		raw = string(secret)
	} else {
		line, err := c.in.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("reading license key: %w", err)
		}
		raw = line
	}

	key, err := security.NormalizeLicenseKey(raw)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", errors.ErrEmptyLicenseKey
	}
	return key, nil
}

// Success prints a green line
func (c *Console) Success(format string, args ...any) {
	c.println(c.out, c.styles.success, format, args...)
}

// Notice prints a yellow line
func (c *Console) Notice(format string, args ...any) {
	c.println(c.out, c.styles.notice, format, args...)
}

// Warn prints a red line on the error stream without ending the run
func (c *Console) Warn(format string, args ...any) {
	c.println(c.errOut, c.errStyles.failure, format, args...)
}

// Error reports a fatal error. In debug mode the whole error chain follows.
func (c *Console) Error(err error) {
	if err == nil {
		return
	}
	c.println(c.errOut, c.errStyles.failure, "An error has occurred:\n%s", err.Error())
	if c.debug {
		c.println(c.errOut, c.errStyles.detail, "%s", errors.Describe(err))
	}
}

func (c *Console) println(w io.Writer, style lipgloss.Style, format string, args ...any) {
	// Style line by line; lipgloss pads multi-line blocks to a common width.
	lines := strings.Split(fmt.Sprintf(format, args...), "\n")
	for i, line := range lines {
		lines[i] = style.Render(line)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(w, strings.Join(lines, "\n"))
}
