package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// confirmAction prompts the user with a yes/no question on stdout/stdin
// and reports whether they answered yes.
func confirmAction(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)

	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
