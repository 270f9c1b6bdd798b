package reporter

import (
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Eraser removes the previously printed progress line so the next one can be
// drawn in its place.
type Eraser interface {
	// Erase removes a line of n display cells that the cursor sits at the end
	// of.
	Erase(w io.Writer, n int)
}

// ANSIEraser clears the current terminal line with a carriage return and the
// erase-in-line control sequence. It does not depend on n, so it also clears
// a line drawn by another process sharing the terminal.
type ANSIEraser struct{}

func (ANSIEraser) Erase(w io.Writer, n int) {
	io.WriteString(w, "\r\x1b[K")
}

// BackspaceEraser steps back over the previous line with backspaces, blanks
// it and steps back again. It works on outputs that understand no control
// sequences besides backspace.
//
// With nothing drawn by this writer yet (n == 0) it returns to the start of
// the line, so the first line of a worker process replaces the line another
// process left behind instead of being appended to it. Lines of other
// processes drawn later are not known here and are erased best-effort.
type BackspaceEraser struct{}

func (BackspaceEraser) Erase(w io.Writer, n int) {
	if n <= 0 {
		io.WriteString(w, "\r")
		return
	}
	back := strings.Repeat("\b", n)
	io.WriteString(w, back+strings.Repeat(" ", n)+back)
}

// DetectEraser picks the erase strategy for w: ANSIEraser when w is a
// terminal that is not TERM=dumb, BackspaceEraser otherwise.
func DetectEraser(w io.Writer) Eraser {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return BackspaceEraser{}
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("TERM")), "dumb") {
		return BackspaceEraser{}
	}
	return ANSIEraser{}
}
