package runner

import (
	"bufio"
	"bytes"
	"fmt"
	"hash/crc32"
	"io"
	"sync"

	"github.com/fatih/color"
)

// sessionWriter writes report lines prefixed with "[session]", colorized by session name.
// Writes from parallel sessions are serialized by the shared lock.
type sessionWriter struct {
	wr         io.Writer
	session    string
	monochrome bool
}

var writeLock sync.Mutex

func newSessionWriter(wr io.Writer, session string, monochrome bool) *sessionWriter {
	return &sessionWriter{wr: wr, session: session, monochrome: monochrome}
}

// Printf writes the given text with the colorized session prefix.
func (s *sessionWriter) Printf(format string, v ...any) {
	fmt.Fprintf(s, format, v...)
}

// Write writes the given byte slice with the colorized session prefix for each line.
// If the input does not end with a newline, one is added.
func (s *sessionWriter) Write(p []byte) (n int, err error) {
	colorizer := s.colorizer()
	scanner := bufio.NewScanner(bytes.NewReader(p))
	writeLock.Lock()
	defer writeLock.Unlock()
	for scanner.Scan() {
		if _, err = io.WriteString(s.wr, colorizer("[%s] %s\n", s.session, scanner.Text())); err != nil {
			return 0, err
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return len(p), nil
}

// colorizer returns a function that formats a string with a color picked by session name.
func (s *sessionWriter) colorizer() func(format string, a ...any) string {
	colors := []color.Attribute{
		color.FgHiRed, color.FgHiGreen, color.FgHiYellow,
		color.FgHiBlue, color.FgHiMagenta, color.FgHiCyan,
		color.FgRed, color.FgGreen, color.FgYellow,
		color.FgBlue, color.FgMagenta, color.FgCyan,
	}
	c := colors[crc32.ChecksumIEEE([]byte(s.session))%uint32(len(colors))]
	if s.monochrome {
		return fmt.Sprintf
	}
	return color.New(c).SprintfFunc()
}
