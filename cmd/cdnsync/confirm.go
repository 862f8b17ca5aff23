package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// confirmClean asks whether count expired files may be deleted. Without a
// terminal the answer is no unless yes was given.
func confirmClean(in io.Reader, out io.Writer, interactive, yes bool, count int) (bool, error) {
	if yes {
		return true, nil
	}
	if !interactive {
		fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("%d expired file(s) not deleted: pass --yes to clean without a terminal.", count)))
		return false, nil
	}

	fmt.Fprintf(out, "Delete %d expired file(s)? [y/N] ", count)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("reading answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
