package terminal

import (
	"bufio"
	"io"
	"strings"
)

// Reader reads user input line by line
type Reader struct {
	r *bufio.Reader
}

func NewReader(in io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(in)}
}

// ReadLine returns the next line without its line ending. A final line
// without a newline is returned before io.EOF.
func (r *Reader) ReadLine() (string, error) {
	line, err := r.r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Confirm reads a yes/no answer. Anything but y or yes is a no.
func (r *Reader) Confirm() bool {
	answer, err := r.ReadLine()
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
